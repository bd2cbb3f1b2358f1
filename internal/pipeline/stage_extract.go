package pipeline

import (
	"context"

	"sceneforge/internal/logging"
	"sceneforge/internal/perception"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// extractStage turns the scene request plus reference image into the
// object inventory (objects.json). Extraction is a single VLM call; the
// client validates the returned objects before this stage sees them.
type extractStage struct {
	vlm perception.VLMClient
}

func (s *extractStage) Name() types.StageName { return types.StageExtract }

func (s *extractStage) Complete(st *store.Store) bool {
	return allPresent(st, store.FileObjects)
}

func (s *extractStage) Hydrate(data *StageData) error {
	var set types.ObjectSet
	if err := data.Store.ReadJSON(store.FileObjects, &set); err != nil {
		return err
	}
	data.Objects = &set
	return nil
}

func (s *extractStage) Run(ctx context.Context, data *StageData) error {
	sceneRef := ""
	if data.SceneRefPath != "" {
		sceneRef = data.Store.Path(data.SceneRefPath)
	}

	set, err := s.vlm.ExtractObjects(ctx, data.SessionID, data.Request, sceneRef)
	if err != nil {
		return types.AsPipelineError(err, string(types.StageExtract))
	}

	if data.Request.Constraints != nil && data.Request.Constraints.MaxObjects > 0 {
		if limit := data.Request.Constraints.MaxObjects; len(set.Objects) > limit {
			logging.Pipeline("Object inventory truncated from %d to the requested cap of %d",
				len(set.Objects), limit)
			set.Objects = set.Objects[:limit]
		}
	}
	if len(set.Objects) == 0 {
		return types.NewError(types.ErrLLM, string(types.StageExtract),
			"object extraction returned an empty inventory").
			WithActions("rephrase the scene description with concrete furniture or props")
	}
	if err := set.Validate(); err != nil {
		return err
	}

	if err := data.Store.WriteJSON(store.FileObjects, set); err != nil {
		return err
	}
	data.Objects = set
	logging.Pipeline("Extracted %d objects (style %q)", len(set.Objects), set.SceneStyle)
	return nil
}

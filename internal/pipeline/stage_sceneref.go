package pipeline

import (
	"context"
	"fmt"

	"sceneforge/internal/executor"
	"sceneforge/internal/imaging"
	"sceneforge/internal/logging"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// sceneRefStage renders the whole-scene reference image and persists it as
// scene_ref.png. The single upstream call still goes through the bounded
// executor so it shares the image service's capacity with card jobs.
type sceneRefStage struct {
	client imaging.Client
	exec   *executor.Executor
}

func (s *sceneRefStage) Name() types.StageName { return types.StageSceneRef }

func (s *sceneRefStage) Complete(st *store.Store) bool {
	return allPresent(st, store.FileSceneRef)
}

func (s *sceneRefStage) Hydrate(data *StageData) error {
	if !data.Store.FilePresent(store.FileSceneRef) {
		return fmt.Errorf("scene_ref.png missing")
	}
	data.SceneRefPath = store.FileSceneRef
	return nil
}

func (s *sceneRefStage) Run(ctx context.Context, data *StageData) error {
	res := executor.Submit(ctx, s.exec, func(ctx context.Context) (*imaging.SceneReference, string, error) {
		ref, err := s.client.GenerateSceneReference(ctx, data.SessionID, data.Request.Text, data.Request.Style)
		return ref, "", err
	})
	if !res.Success {
		return types.AsPipelineError(res.Err, string(types.StageSceneRef))
	}

	ref := res.Value
	if len(ref.ImageBytes) == 0 {
		return types.NewError(types.ErrImageGeneration, string(types.StageSceneRef),
			fmt.Sprintf("image service returned no inline payload (url %q); cannot persist scene_ref.png", ref.ImageURL)).
			WithActions("configure the image adapter to return inline bytes")
	}
	if err := data.Store.WriteFileAtomic(store.FileSceneRef, ref.ImageBytes); err != nil {
		return err
	}
	data.SceneRefPath = store.FileSceneRef
	logging.Pipeline("Scene reference rendered in %.1fs (%d attempts)", res.Elapsed, res.Attempts)
	return nil
}

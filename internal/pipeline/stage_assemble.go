package pipeline

import (
	"context"

	"sceneforge/internal/assembly"
	"sceneforge/internal/logging"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// assembleStage writes the assembly instruction bundle: the object name
// map tying manifest entries to downstream host object names. The layout
// solution and manifest already exist; this stage only completes the
// triple. It fails when no object in the manifest has a usable asset.
type assembleStage struct{}

func (s *assembleStage) Name() types.StageName { return types.StageAssemble }

func (s *assembleStage) Complete(st *store.Store) bool {
	return allPresent(st, store.FileObjectMap)
}

func (s *assembleStage) Hydrate(data *StageData) error {
	var m types.ObjectNameMap
	return data.Store.ReadJSON(store.FileObjectMap, &m)
}

func (s *assembleStage) Run(ctx context.Context, data *StageData) error {
	m, err := assembly.WriteObjectMap(data.Store, data.Manifest)
	if err != nil {
		return err
	}
	logging.Pipeline("Assembly bundle complete: %d objects mapped", len(m.Mapping))
	return nil
}

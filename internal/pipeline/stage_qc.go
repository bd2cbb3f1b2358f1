package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"sceneforge/internal/logging"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// minCardBytes rejects truncated or blank card files. Real renders are
// tens of kilobytes; anything under 1 KiB is an upstream artifact of a
// failed or clipped response.
const minCardBytes = 1024

// qcReport is the quality gate's output artifact.
type qcReport struct {
	Checked int      `json:"checked"`
	Dropped []string `json:"dropped,omitempty"`
}

// qcStage is the optional card quality gate. It drops unusable card files
// so the asset stage falls back to text-only generation for those objects
// instead of conditioning on a broken image, and records what it checked
// in qc_report.json.
type qcStage struct{}

func (s *qcStage) Name() types.StageName { return types.StageQC }

func (s *qcStage) Complete(st *store.Store) bool {
	return allPresent(st, store.FileQCReport)
}

func (s *qcStage) Hydrate(data *StageData) error {
	// Dropped card files are gone from the cards directory, so the card
	// map rebuilt upstream already reflects the gate's outcome.
	return nil
}

func (s *qcStage) Run(ctx context.Context, data *StageData) error {
	report := qcReport{Checked: len(data.CardPaths)}
	for id, rel := range data.CardPaths {
		abs := data.Store.Path(rel)
		info, err := os.Stat(abs)
		if err != nil || info.Size() >= minCardBytes {
			continue
		}
		if err := os.Remove(abs); err != nil {
			return types.WrapError(types.ErrFilePermission, string(types.StageQC), err)
		}
		delete(data.CardPaths, id)
		report.Dropped = append(report.Dropped, id)
		logging.Pipeline("QC dropped card %s (%d bytes)", filepath.Base(rel), info.Size())
	}
	sort.Strings(report.Dropped)
	if len(report.Dropped) > 0 {
		logging.Pipeline("QC dropped %d unusable cards; affected objects fall back to text-only generation", len(report.Dropped))
	}
	return data.Store.WriteJSON(store.FileQCReport, report)
}

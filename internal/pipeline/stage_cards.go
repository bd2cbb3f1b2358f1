package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"sceneforge/internal/executor"
	"sceneforge/internal/imaging"
	"sceneforge/internal/logging"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// cardsStage renders one reference card per object into object_cards/.
// Each card is an independent executor job, so cards for a ten-object
// scene admit through the image service's capacity bound in FIFO order.
// A failed card is recorded and skipped; the asset stage falls back to
// text-only generation for cardless objects.
type cardsStage struct {
	client imaging.Client
	exec   *executor.Executor
}

func (s *cardsStage) Name() types.StageName { return types.StageCards }

func (s *cardsStage) Complete(st *store.Store) bool {
	return st.DirPresent(store.DirCards)
}

func (s *cardsStage) Hydrate(data *StageData) error {
	if data.Objects == nil {
		return fmt.Errorf("object inventory not loaded")
	}
	for _, obj := range data.Objects.Objects {
		rel := filepath.Join(store.DirCards, obj.ObjectID+".png")
		if data.Store.FilePresent(rel) {
			data.CardPaths[obj.ObjectID] = rel
		}
	}
	return nil
}

func (s *cardsStage) Run(ctx context.Context, data *StageData) error {
	sceneRef := data.Store.Path(data.SceneRefPath)
	objects := data.Objects.Objects

	jobs := make([]executor.Job[*imaging.CardResult], len(objects))
	for i, obj := range objects {
		obj := obj
		jobs[i] = func(ctx context.Context) (*imaging.CardResult, string, error) {
			cards, err := s.client.GenerateObjectCards(ctx, data.SessionID, []*types.Object{obj}, sceneRef)
			if err != nil {
				return nil, "", err
			}
			if len(cards) != 1 {
				return nil, "", types.NewError(types.ErrImageGeneration, string(types.StageCards),
					fmt.Sprintf("image service returned %d cards for 1 object", len(cards)))
			}
			return cards[0], "", nil
		}
	}

	results := executor.RunBatch(ctx, s.exec, jobs)

	failed := 0
	for i, res := range results {
		obj := objects[i]
		if !res.Success {
			failed++
			logging.Pipeline("Card for %s failed after %d attempts: %v", obj.ObjectID, res.Attempts, res.Err)
			continue
		}
		card := res.Value
		if len(card.CardBytes) == 0 {
			failed++
			logging.Pipeline("Card for %s returned no inline payload (url %q); treating as failed",
				obj.ObjectID, card.CardURL)
			continue
		}
		rel := filepath.Join(store.DirCards, obj.ObjectID+".png")
		if err := data.Store.WriteFileAtomic(rel, card.CardBytes); err != nil {
			return err
		}
		data.CardPaths[obj.ObjectID] = rel
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(data.CardPaths) == 0 {
		return types.NewError(types.ErrImageGeneration, string(types.StageCards),
			fmt.Sprintf("all %d card jobs failed", len(objects))).
			WithActions("check the image service credentials and quota, then resume from the cards stage")
	}
	logging.Pipeline("Rendered %d/%d object cards", len(data.CardPaths), len(objects))
	return nil
}

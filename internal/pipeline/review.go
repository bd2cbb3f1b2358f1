package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"sceneforge/internal/logging"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// waitForApproval blocks until review/<stage>.approved appears in the
// session directory, a rejection file appears, the timeout elapses, or the
// context is cancelled. An approval file persisted from an earlier run
// passes immediately, so resumed sessions are not re-gated.
func waitForApproval(ctx context.Context, st *store.Store, stage types.StageName, timeout time.Duration) error {
	approved := filepath.Join(store.DirReview, string(stage)+".approved")
	rejected := filepath.Join(store.DirReview, string(stage)+".rejected")

	// Markers are detected by existence: a touch-created empty file is a
	// valid approval.
	marker := func(rel string) bool {
		_, err := os.Stat(st.Path(rel))
		return err == nil
	}
	if marker(approved) {
		return nil
	}

	pending := filepath.Join(store.DirReview, string(stage)+".pending")
	note := fmt.Sprintf("stage %s awaiting review\ncreate %s to continue, %s to abort\n",
		stage, approved, rejected)
	if err := st.WriteFileAtomic(pending, []byte(note)); err != nil {
		return err
	}
	logging.Pipeline("Stage %s gated on review; waiting for %s", stage, approved)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return types.WrapError(types.ErrInternal, "review", err)
	}
	defer watcher.Close()
	if err := watcher.Add(st.Path(store.DirReview)); err != nil {
		return types.WrapError(types.ErrFilePermission, "review", err)
	}

	// Watch events drive the fast path; the ticker catches files created
	// before the watch was registered or dropped events.
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	check := func() (done bool, err error) {
		if marker(approved) {
			logging.Pipeline("Stage %s approved", stage)
			return true, nil
		}
		if marker(rejected) {
			return true, types.NewError(types.ErrInvalidInput, "review",
				fmt.Sprintf("stage %s rejected by reviewer", stage)).
				WithActions("inspect the stage outputs, adjust the request, and re-run")
		}
		return false, nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return types.NewError(types.ErrInvalidInput, "review",
				fmt.Sprintf("review of stage %s timed out after %s", stage, timeout)).
				WithActions(fmt.Sprintf("create %s and resume the session", approved))
		case ev := <-watcher.Events:
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), string(stage)+".") {
				continue
			}
			if done, err := check(); done {
				return err
			}
		case err := <-watcher.Errors:
			logging.Pipeline("Review watcher error: %v", err)
		case <-ticker.C:
			if done, err := check(); done {
				return err
			}
		}
	}
}

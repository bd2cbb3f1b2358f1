package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

func reviewStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(t.TempDir(), "sess-review")
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestWaitForApprovalPreApproved(t *testing.T) {
	st := reviewStore(t)
	if err := st.WriteFileAtomic(filepath.Join(store.DirReview, "cards.approved"), nil); err != nil {
		t.Fatal(err)
	}

	if err := waitForApproval(context.Background(), st, types.StageCards, time.Millisecond); err != nil {
		t.Fatalf("pre-existing approval must pass immediately: %v", err)
	}
}

func TestWaitForApprovalSeesApprovalFile(t *testing.T) {
	st := reviewStore(t)

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(st.Path(filepath.Join(store.DirReview, "layout.approved")), nil, 0644)
	}()

	if err := waitForApproval(context.Background(), st, types.StageLayout, 10*time.Second); err != nil {
		t.Fatalf("approval file not picked up: %v", err)
	}
	if !st.FilePresent(filepath.Join(store.DirReview, "layout.pending")) {
		t.Error("pending marker not written")
	}
}

func TestWaitForApprovalRejection(t *testing.T) {
	st := reviewStore(t)

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(st.Path(filepath.Join(store.DirReview, "cards.rejected")), nil, 0644)
	}()

	err := waitForApproval(context.Background(), st, types.StageCards, 10*time.Second)
	if types.CodeOf(err) != types.ErrInvalidInput {
		t.Fatalf("expected invalid_input on rejection, got %v", err)
	}
}

func TestWaitForApprovalTimeout(t *testing.T) {
	st := reviewStore(t)

	err := waitForApproval(context.Background(), st, types.StageCards, 100*time.Millisecond)
	if types.CodeOf(err) != types.ErrInvalidInput {
		t.Fatalf("expected invalid_input on timeout, got %v", err)
	}
}

func TestWaitForApprovalCancelled(t *testing.T) {
	st := reviewStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := waitForApproval(ctx, st, types.StageCards, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

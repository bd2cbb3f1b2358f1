package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sceneforge/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st := New(t.TempDir(), "2026-01-02T03-04-05Z_deadbeef")
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestWriteJSONPrettyPrintsWithTrailingNewline(t *testing.T) {
	st := newTestStore(t)
	if err := st.WriteJSON("sample.json", map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(st.Path("sample.json"))
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.Contains(s, "\n  \"a\": 1") {
		t.Errorf("expected 2-space indentation, got %q", s)
	}
	if !strings.HasSuffix(s, "\n") {
		t.Error("expected trailing newline")
	}
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	st := newTestStore(t)
	if err := st.WriteFileAtomic("scene_ref.png", []byte("png-bytes")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(st.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp") || strings.Contains(e.Name(), ".partial") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if !st.FilePresent("scene_ref.png") {
		t.Error("written file not present")
	}
}

func TestVersionedArtifacts(t *testing.T) {
	st := newTestStore(t)

	if v := st.LatestVersion(PatternConstraints); v != 0 {
		t.Fatalf("expected version 0 before any write, got %d", v)
	}

	v1, err := st.WriteVersioned(PatternConstraints, map[string]int{"version": 1})
	if err != nil {
		t.Fatal(err)
	}
	if v1 != 1 {
		t.Errorf("first write must be v1, got %d", v1)
	}
	v2, _ := st.WriteVersioned(PatternConstraints, map[string]int{"version": 2})
	if v2 != 2 {
		t.Errorf("second write must be v2, got %d", v2)
	}

	var out map[string]int
	n, err := st.ReadLatestVersioned(PatternConstraints, &out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || out["version"] != 2 {
		t.Errorf("expected latest v2, got v%d %+v", n, out)
	}

	// Older version stays intact.
	if err := st.ReadVersioned(PatternConstraints, 1, &out); err != nil {
		t.Fatal(err)
	}
	if out["version"] != 1 {
		t.Error("older version mutated")
	}
}

func TestLatestVersionIgnoresForeignFiles(t *testing.T) {
	st := newTestStore(t)
	st.WriteVersioned(PatternConstraints, map[string]int{})
	// A similarly named but non-matching file must not confuse parsing.
	os.WriteFile(filepath.Join(st.Dir(), "constraints_v2_backup.json"), []byte("{}"), 0644)
	if v := st.LatestVersion(PatternConstraints); v != 1 {
		t.Errorf("expected version 1, got %d", v)
	}
}

func TestArtifactPresentRejectsEmptyFilesAndDirs(t *testing.T) {
	st := newTestStore(t)

	os.WriteFile(st.Path("objects.json"), nil, 0644)
	if st.ArtifactPresent("objects.json") {
		t.Error("zero-byte file must not count as present")
	}

	os.MkdirAll(st.Path(DirCards), 0755)
	if st.ArtifactPresent(DirCards) {
		t.Error("empty directory must not count as present")
	}
	os.WriteFile(st.Path(DirCards, "obj.png"), []byte("x"), 0644)
	if !st.ArtifactPresent(DirCards) {
		t.Error("non-empty directory must count as present")
	}
}

func TestLastErrorRoundTrip(t *testing.T) {
	st := newTestStore(t)
	in := &types.FailureResponse{
		SessionID:   st.SessionID(),
		FailedStage: "layout",
		Error:       types.NewError(types.ErrSolverNoSolution, "layout", "stuck"),
	}
	if err := st.WriteLastError(in); err != nil {
		t.Fatal(err)
	}
	out, err := st.ReadLastError()
	if err != nil {
		t.Fatal(err)
	}
	if out.FailedStage != "layout" || out.Error.Code != types.ErrSolverNoSolution {
		t.Errorf("round trip lost data: %+v", out)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	ws := t.TempDir()
	for _, id := range []string{
		"2026-01-01T00-00-00Z_aaaaaaaa",
		"2026-01-03T00-00-00Z_cccccccc",
		"2026-01-02T00-00-00Z_bbbbbbbb",
	} {
		if err := New(ws, id).Init(); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := ListSessions(ws)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(ids))
	}
	if ids[0] != "2026-01-03T00-00-00Z_cccccccc" {
		t.Errorf("expected newest first, got %v", ids)
	}
}

// Package store implements the per-session artifact store: directory layout,
// atomic writes, versioned artifacts, and stage-completion probing.
//
// Every artifact lives under <workspace>/sessions/<session_id>/. Writes go
// to a temp file in the destination directory followed by a rename, so a
// crash never leaves a half-written artifact where a completion probe would
// find it. Stage completion is decided only by artifact presence; no status
// field is trusted.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// Artifact file and directory names within a session directory.
const (
	FileRequest        = "request.json"
	FileStatus         = "status.json"
	FileSceneRef       = "scene_ref.png"
	FileObjects        = "objects.json"
	FileManifest       = "asset_manifest.json"
	FileQCReport       = "qc_report.json"
	FileObjectMap      = "blender_object_map.json"
	FileLastError      = "last_error.json"
	DirCards           = "object_cards"
	DirAssets          = "assets"
	DirErrors          = "errors"
	DirReview          = "review"
	PatternConstraints = "constraints_v%d.json"
	PatternLayout      = "layout_solution_v%d.json"
	PatternTrace       = "dfs_trace_v%d.json"
	PatternFloorPlan   = "layout_floorplan_v%d.svg"
)

// Store is the artifact store rooted at one session directory. A Store is
// owned by a single pipeline run; artifact files within are created by at
// most one stage.
type Store struct {
	workspace string
	sessionID string
	dir       string
}

// New returns a Store for an existing or to-be-created session directory.
func New(workspace, sessionID string) *Store {
	return &Store{
		workspace: workspace,
		sessionID: sessionID,
		dir:       filepath.Join(workspace, "sessions", sessionID),
	}
}

// SessionID returns the session this store is bound to.
func (s *Store) SessionID() string { return s.sessionID }

// Dir returns the absolute session directory.
func (s *Store) Dir() string { return s.dir }

// Path resolves a session-relative artifact path.
func (s *Store) Path(parts ...string) string {
	return filepath.Join(append([]string{s.dir}, parts...)...)
}

// Init creates the session directory skeleton.
func (s *Store) Init() error {
	for _, d := range []string{s.dir, s.Path(DirCards), s.Path(DirAssets), s.Path(DirErrors)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return types.WrapError(types.ErrFilePermission, "store",
				fmt.Errorf("failed to create %s: %w", d, err))
		}
	}
	logging.StoreDebug("Initialized session directory %s", s.dir)
	return nil
}

// Exists reports whether the session directory is present on disk.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

// =============================================================================
// ATOMIC WRITES
// =============================================================================

// WriteFileAtomic writes data to the given session-relative path via a temp
// file in the same directory plus rename.
func (s *Store) WriteFileAtomic(rel string, data []byte) error {
	dst := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return types.WrapError(types.ErrFilePermission, "store",
			fmt.Errorf("failed to create parent of %s: %w", rel, err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp*")
	if err != nil {
		return types.WrapError(types.ErrFilePermission, "store",
			fmt.Errorf("failed to create temp file for %s: %w", rel, err))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return types.WrapError(types.ErrDiskSpace, "store",
			fmt.Errorf("failed to write %s: %w", rel, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file for %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file to %s: %w", rel, err)
	}

	logging.StoreDebug("Wrote %s (%d bytes)", rel, len(data))
	return nil
}

// WriteJSON marshals v pretty-printed (2-space indent) and writes it
// atomically at the session-relative path.
func (s *Store) WriteJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rel, err)
	}
	return s.WriteFileAtomic(rel, append(data, '\n'))
}

// ReadJSON reads the session-relative artifact into v.
func (s *Store) ReadJSON(rel string, v any) error {
	data, err := os.ReadFile(s.Path(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return types.WrapError(types.ErrFileNotFound, "store",
				fmt.Errorf("artifact %s not found: %w", rel, err))
		}
		return types.WrapError(types.ErrFilePermission, "store",
			fmt.Errorf("failed to read %s: %w", rel, err))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return types.WrapError(types.ErrSessionCorrupted, "store",
			fmt.Errorf("failed to parse %s: %w", rel, err))
	}
	return nil
}

// =============================================================================
// COMPLETION PROBES
// =============================================================================

// FilePresent reports whether the session-relative file exists and is
// non-empty.
func (s *Store) FilePresent(rel string) bool {
	info, err := os.Stat(s.Path(rel))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// DirPresent reports whether the session-relative directory exists and
// contains at least one entry.
func (s *Store) DirPresent(rel string) bool {
	entries, err := os.ReadDir(s.Path(rel))
	return err == nil && len(entries) > 0
}

// ArtifactPresent probes a declared stage output: a directory output is
// complete when non-empty, a file output when present and non-empty.
func (s *Store) ArtifactPresent(rel string) bool {
	info, err := os.Stat(s.Path(rel))
	if err != nil {
		return false
	}
	if info.IsDir() {
		return s.DirPresent(rel)
	}
	return info.Size() > 0
}

// =============================================================================
// VERSIONED ARTIFACTS
// =============================================================================

// LatestVersion scans for versioned artifacts matching the pattern (for
// example constraints_v%d.json) and returns the highest version present,
// or 0 when none exist.
func (s *Store) LatestVersion(pattern string) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	versions := make([]int, 0, 4)
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), pattern, &n); err == nil && n > 0 {
			// Sscanf is prefix-tolerant; demand an exact reconstruction.
			if fmt.Sprintf(pattern, n) == e.Name() {
				versions = append(versions, n)
			}
		}
	}
	if len(versions) == 0 {
		return 0
	}
	sort.Ints(versions)
	return versions[len(versions)-1]
}

// WriteVersioned writes v as the next version of the pattern and returns
// the version number written. Older versions are never mutated.
func (s *Store) WriteVersioned(pattern string, v any) (int, error) {
	next := s.LatestVersion(pattern) + 1
	if err := s.WriteJSON(fmt.Sprintf(pattern, next), v); err != nil {
		return 0, err
	}
	logging.Store("Wrote %s", fmt.Sprintf(pattern, next))
	return next, nil
}

// ReadVersioned reads the given version of the pattern into v.
func (s *Store) ReadVersioned(pattern string, version int, v any) error {
	return s.ReadJSON(fmt.Sprintf(pattern, version), v)
}

// ReadLatestVersioned reads the highest version into v and returns the
// version number, or file_not_found when no version exists.
func (s *Store) ReadLatestVersioned(pattern string, v any) (int, error) {
	latest := s.LatestVersion(pattern)
	if latest == 0 {
		return 0, types.NewError(types.ErrFileNotFound, "store",
			fmt.Sprintf("no versions of %s present", pattern))
	}
	return latest, s.ReadVersioned(pattern, latest, v)
}

// =============================================================================
// ERROR ARTIFACTS
// =============================================================================

// WriteLastError persists the most recent failure response under errors/.
func (s *Store) WriteLastError(resp *types.FailureResponse) error {
	return s.WriteJSON(filepath.Join(DirErrors, FileLastError), resp)
}

// ReadLastError loads the most recent failure response, if any.
func (s *Store) ReadLastError() (*types.FailureResponse, error) {
	var resp types.FailureResponse
	if err := s.ReadJSON(filepath.Join(DirErrors, FileLastError), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSessions returns all session ids under the workspace, newest first
// (ids sort chronologically by construction).
func ListSessions(workspace string) ([]string, error) {
	root := filepath.Join(workspace, "sessions")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

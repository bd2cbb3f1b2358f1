// Package session manages session identity, status progression, retry
// accounting, and snapshot notes. The status file is rewritten atomically
// through the artifact store on every mutation.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sceneforge/internal/logging"
	"sceneforge/internal/store"
	"sceneforge/internal/types"
)

// Manager owns session lifecycle for one workspace.
type Manager struct {
	mu         sync.Mutex
	workspace  string
	maxRetries int
}

// NewManager creates a session manager rooted at the workspace.
func NewManager(workspace string, maxRetries int) *Manager {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Manager{workspace: workspace, maxRetries: maxRetries}
}

// NewSessionID generates a session id of the form
// "<UTC timestamp>_<8-hex>". Timestamps use dashes so the id stays a valid
// path component on every platform.
func NewSessionID(now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15-04-05Z")
	return fmt.Sprintf("%s_%s", ts, uuid.New().String()[:8])
}

// CreateSession validates the request, allocates a session id, creates the
// directory skeleton, and persists request.json and the initial status.
func (m *Manager) CreateSession(req *types.SceneRequest) (*store.Store, *types.SessionState, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := NewSessionID(time.Now())
	st := store.New(m.workspace, id)
	if err := st.Init(); err != nil {
		return nil, nil, err
	}
	if err := st.WriteJSON(store.FileRequest, req); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	state := &types.SessionState{
		SessionID:  id,
		Status:     types.StatusInit,
		MaxRetries: m.maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.saveState(st, state); err != nil {
		return nil, nil, err
	}

	logging.Session("Created session %s", id)
	return st, state, nil
}

// Load opens an existing session and returns its store, state, and request.
func (m *Manager) Load(sessionID string) (*store.Store, *types.SessionState, *types.SceneRequest, error) {
	st := store.New(m.workspace, sessionID)
	if !st.Exists() {
		return nil, nil, nil, types.NewError(types.ErrSessionNotFound, "session",
			fmt.Sprintf("session %s not found under %s", sessionID, m.workspace))
	}

	var state types.SessionState
	if err := st.ReadJSON(store.FileStatus, &state); err != nil {
		return nil, nil, nil, types.WrapError(types.ErrSessionCorrupted, "session",
			fmt.Errorf("session %s has unreadable status: %w", sessionID, err))
	}
	var req types.SceneRequest
	if err := st.ReadJSON(store.FileRequest, &req); err != nil {
		return nil, nil, nil, types.WrapError(types.ErrSessionCorrupted, "session",
			fmt.Errorf("session %s has unreadable request: %w", sessionID, err))
	}
	return st, &state, &req, nil
}

// UpdateStatus moves the session to a new status and progress percent.
func (m *Manager) UpdateStatus(st *store.Store, state *types.SessionState, status types.SessionStatus, stage types.StageName, progress int) error {
	state.Status = status
	state.CurrentStage = stage
	if progress >= 0 {
		state.ProgressPercent = progress
	}
	logging.SessionDebug("Session %s -> %s (stage=%s, %d%%)", state.SessionID, status, stage, state.ProgressPercent)
	return m.saveState(st, state)
}

// AddError appends a timestamped record to the session error history.
func (m *Manager) AddError(st *store.Store, state *types.SessionState, stage types.StageName, err error) error {
	pe := types.AsPipelineError(err, "session")
	state.Errors = append(state.Errors, types.ErrorRecord{
		Stage:     string(stage),
		Code:      pe.Code,
		Message:   pe.Message,
		Timestamp: time.Now().UTC(),
	})
	return m.saveState(st, state)
}

// IncrementRetry bumps the retry counter; it fails once the cap is reached.
func (m *Manager) IncrementRetry(st *store.Store, state *types.SessionState) error {
	if state.RetryCount >= state.MaxRetries {
		return types.NewError(types.ErrInvalidInput, "session",
			fmt.Sprintf("session %s exhausted its %d retries", state.SessionID, state.MaxRetries))
	}
	state.RetryCount++
	logging.Session("Session %s retry %d/%d", state.SessionID, state.RetryCount, state.MaxRetries)
	return m.saveState(st, state)
}

// Snapshot appends a named note to the session status metadata. It does not
// copy artifacts; the on-disk version scheme already preserves history.
func (m *Manager) Snapshot(st *store.Store, state *types.SessionState, name, note string) error {
	state.Snapshots = append(state.Snapshots, types.SnapshotRecord{
		Name:      name,
		Note:      note,
		CreatedAt: time.Now().UTC(),
		Status:    state.Status,
	})
	return m.saveState(st, state)
}

func (m *Manager) saveState(st *store.Store, state *types.SessionState) error {
	state.UpdatedAt = time.Now().UTC()
	return st.WriteJSON(store.FileStatus, state)
}

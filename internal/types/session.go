package types

import "time"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusInit              SessionStatus = "INIT"
	StatusAnalyzing         SessionStatus = "ANALYZING"
	StatusGeneratingRef     SessionStatus = "GENERATING_REF"
	StatusExtractingObjects SessionStatus = "EXTRACTING_OBJECTS"
	StatusGeneratingCards   SessionStatus = "GENERATING_CARDS"
	StatusQCCards           SessionStatus = "QC_CARDS"
	StatusGeneratingAssets  SessionStatus = "GENERATING_ASSETS"
	StatusSolvingLayout     SessionStatus = "SOLVING_LAYOUT"
	StatusRendering         SessionStatus = "RENDERING"
	StatusCompleted         SessionStatus = "COMPLETED"
	StatusPartial           SessionStatus = "PARTIAL"
	StatusFailed            SessionStatus = "FAILED"
)

// Terminal reports whether the status is an end state.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// StageName identifies one node of the pipeline graph.
type StageName string

const (
	StageSceneRef    StageName = "scene_ref"
	StageExtract     StageName = "extract"
	StageCards       StageName = "cards"
	StageQC          StageName = "qc"
	StageConstraints StageName = "constraints"
	StageLayout      StageName = "layout"
	StageAssets      StageName = "assets"
	StageAssemble    StageName = "assemble"
)

// StageOrder is the canonical execution order of the pipeline.
// The qc stage is optional and skipped unless enabled in config.
var StageOrder = []StageName{
	StageSceneRef,
	StageExtract,
	StageCards,
	StageQC,
	StageConstraints,
	StageLayout,
	StageAssets,
	StageAssemble,
}

// StageStatus maps a stage to the session status reported while it runs.
var StageStatus = map[StageName]SessionStatus{
	StageSceneRef:    StatusGeneratingRef,
	StageExtract:     StatusExtractingObjects,
	StageCards:       StatusGeneratingCards,
	StageQC:          StatusQCCards,
	StageConstraints: StatusAnalyzing,
	StageLayout:      StatusSolvingLayout,
	StageAssets:      StatusGeneratingAssets,
	StageAssemble:    StatusRendering,
}

// SnapshotRecord is an operator note appended to the session status
// metadata. It never copies artifacts; the on-disk version scheme already
// preserves history for constraints and layout solutions.
type SnapshotRecord struct {
	Name      string        `json:"name"`
	Note      string        `json:"note"`
	CreatedAt time.Time     `json:"created_at"`
	Status    SessionStatus `json:"status"`
}

// SessionState is the mutable per-session record persisted as status.json.
type SessionState struct {
	SessionID       string           `json:"session_id"`
	Status          SessionStatus    `json:"status"`
	CurrentStage    StageName        `json:"current_stage,omitempty"`
	ProgressPercent int              `json:"progress_percent"`
	RetryCount      int              `json:"retry_count"`
	MaxRetries      int              `json:"max_retries"`
	Errors          []ErrorRecord    `json:"errors,omitempty"`
	Snapshots       []SnapshotRecord `json:"snapshots,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Resumable reports whether the session may be re-run.
func (s *SessionState) Resumable() bool {
	if s.Status != StatusPartial && s.Status != StatusFailed {
		return false
	}
	return s.RetryCount < s.MaxRetries
}

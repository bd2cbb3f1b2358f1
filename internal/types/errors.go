package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies a failure class. Codes are stable wire values; the
// CLI maps them to exit codes, the pipeline uses them to decide retryability.
type ErrorCode string

const (
	ErrInvalidInput ErrorCode = "invalid_input"
	ErrConfig       ErrorCode = "config_error"

	ErrUpstreamTransport   ErrorCode = "upstream_transport"
	ErrUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrUpstreamRefused     ErrorCode = "upstream_refused"
	ErrUpstreamAuth        ErrorCode = "upstream_auth"

	ErrAssetGeneration ErrorCode = "asset_generation_failed"
	ErrImageGeneration ErrorCode = "image_generation_failed"
	ErrLLM             ErrorCode = "llm_error"

	ErrSolverNoSolution ErrorCode = "solver_no_solution"
	ErrSolverTimeout    ErrorCode = "solver_timeout"
	ErrSolverConflict   ErrorCode = "solver_constraint_conflict"

	ErrFileNotFound   ErrorCode = "file_not_found"
	ErrFilePermission ErrorCode = "file_permission_denied"
	ErrDiskSpace      ErrorCode = "disk_space_insufficient"

	ErrSessionNotFound  ErrorCode = "session_not_found"
	ErrSessionCorrupted ErrorCode = "session_corrupted"

	ErrInternal ErrorCode = "internal_error"
)

// retryableCodes are the failure classes that may be retried by re-invoking
// the pipeline with the same session id.
var retryableCodes = map[ErrorCode]bool{
	ErrUpstreamTransport:   true,
	ErrUpstreamRateLimited: true,
	ErrSolverTimeout:       true,
	ErrAssetGeneration:     true,
	ErrImageGeneration:     true,
	ErrLLM:                 true,
}

// PipelineError is the structured error shape that crosses component
// boundaries. It is serialized into errors/last_error.json and returned to
// the CLI.
type PipelineError struct {
	Code             ErrorCode      `json:"code"`
	Component        string         `json:"component"`
	Message          string         `json:"message"`
	Retryable        bool           `json:"retryable"`
	SuggestedActions []string       `json:"suggested_actions,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	Details          map[string]any `json:"details,omitempty"`
	wrapped          error
}

// NewError creates a PipelineError with retryability derived from the code.
func NewError(code ErrorCode, component, message string) *PipelineError {
	return &PipelineError{
		Code:      code,
		Component: component,
		Message:   message,
		Retryable: retryableCodes[code],
		Timestamp: time.Now().UTC(),
	}
}

// WrapError creates a PipelineError wrapping an underlying cause.
func WrapError(code ErrorCode, component string, err error) *PipelineError {
	pe := NewError(code, component, err.Error())
	pe.wrapped = err
	return pe
}

// WithActions attaches fix suggestions and returns the receiver for chaining.
func (e *PipelineError) WithActions(actions ...string) *PipelineError {
	e.SuggestedActions = append(e.SuggestedActions, actions...)
	return e
}

// WithDetail attaches a structured detail and returns the receiver.
func (e *PipelineError) WithDetail(key string, value any) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Component, e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.wrapped }

// CodeOf extracts the error code from err, unwrapping as needed.
// Unrecognized errors map to internal_error.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrInternal
}

// IsRetryable reports whether err carries a retryable failure class.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// AsPipelineError coerces err into a PipelineError, wrapping unknown errors
// as internal_error under the given component.
func AsPipelineError(err error, component string) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return WrapError(ErrInternal, component, err)
}

// ErrorRecord is a timestamped entry in the session's error history.
type ErrorRecord struct {
	Stage     string    `json:"stage"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// FailureResponse is the user-visible failure shape written to
// errors/last_error.json and handed back to the CLI.
type FailureResponse struct {
	OK          bool           `json:"ok"`
	SessionID   string         `json:"session_id,omitempty"`
	FailedStage string         `json:"failed_stage,omitempty"`
	Error       *PipelineError `json:"error"`
	Logs        *FailureLogs   `json:"logs,omitempty"`
}

// FailureLogs points at the run log and solver trace for a failed session.
type FailureLogs struct {
	RunLog string `json:"run_log,omitempty"`
	Trace  string `json:"trace,omitempty"`
}

// SuccessResponse is returned by the pipeline on completion.
type SuccessResponse struct {
	OK              bool              `json:"ok"`
	SessionID       string            `json:"session_id"`
	WorkspacePath   string            `json:"workspace_path"`
	Artifacts       map[string]string `json:"artifacts"`
	StagesCompleted []string          `json:"stages_completed"`
	Message         string            `json:"message"`
}

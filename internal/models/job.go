package models

import "time"

// JobState is the lifecycle state of a submitted incident.
type JobState string

const (
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal reports whether the state is final. Terminal states never revert.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ErrorCode classifies job and submission failures for clients. Internal
// detail stays in server logs.
type ErrorCode string

const (
	ErrCodeInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrCodeDispatchUnavailable ErrorCode = "DISPATCH_UNAVAILABLE"
	ErrCodeStageInternal       ErrorCode = "STAGE_INTERNAL_ERROR"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeConflict            ErrorCode = "CONFLICT"
)

// ErrorInfo is the client-visible failure reason attached to a failed job.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// Job tracks one incident's processing to a terminal Decision or failure.
// Result is set only when State is JobCompleted, Error only when JobFailed.
type Job struct {
	ID        string     `json:"id"`
	State     JobState   `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	Incident  Incident   `json:"incident"`
	Result    *Decision  `json:"result,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

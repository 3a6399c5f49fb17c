package model

import "time"

// ExecutionResult records the terminal outcome of a tool call. Exactly one
// of Output or Error is meaningful, selected by Status.
//
// StartedAt/EndedAt are nil for calls aborted before they ever ran.
type ExecutionResult struct {
	CallID   string    `json:"call_id"`
	ToolName string    `json:"tool_name"`
	Status   CallState `json:"status"`

	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`

	StartedAt *time.Time    `json:"started_at,omitempty"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`

	// RetryCount is the number of retries consumed before this outcome.
	RetryCount int `json:"retry_count"`
}

// Succeeded returns true if the call completed normally.
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == CallStateCompleted
}

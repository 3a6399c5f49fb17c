// Package runlog persists finished runs so past executions can be listed
// and inspected from the CLI and the monitor API.
package runlog

import (
	"context"
	"time"

	"github.com/me/toolflow/pkg/model"
)

// Run is one recorded plan execution.
type Run struct {
	ID         string    `json:"id"`
	PlanName   string    `json:"plan_name"`
	Status     string    `json:"status"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Aborted    int       `json:"aborted"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunCall is the recorded outcome of one call within a run.
type RunCall struct {
	RunID      string          `json:"run_id"`
	CallID     string          `json:"call_id"`
	ToolName   string          `json:"tool_name"`
	Status     model.CallState `json:"status"`
	Output     any             `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	RetryCount int             `json:"retry_count"`
	Duration   time.Duration   `json:"duration"`
}

// Run status values.
const (
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
	RunStatusAborted   = "ABORTED"
)

// Store records runs and their call outcomes.
type Store interface {
	RecordRun(ctx context.Context, run *Run, results []*model.ExecutionResult) error
	GetRun(ctx context.Context, id string) (*Run, []RunCall, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

package model

import "time"

// EventType identifies a scheduler lifecycle event.
type EventType string

const (
	EventScheduled          EventType = "SCHEDULED"
	EventDependenciesMet    EventType = "DEPENDENCIES_MET"
	EventDependenciesFailed EventType = "DEPENDENCIES_FAILED"
	EventExecuting          EventType = "EXECUTING"
	EventRetrying           EventType = "RETRYING"
	EventCompleted          EventType = "COMPLETED"
	EventFailed             EventType = "FAILED"
	EventAborted            EventType = "ABORTED"
	EventAllCompleted       EventType = "ALL_COMPLETED"
	EventStatsUpdated       EventType = "STATS_UPDATED"
)

// Event is published for every state transition. Call and Result are set
// when the event concerns a single call; AllCompleted and StatsUpdated carry
// only the statistics snapshot.
type Event struct {
	Type   EventType        `json:"type"`
	CallID string           `json:"call_id,omitempty"`
	Call   *ToolCall        `json:"call,omitempty"`
	Result *ExecutionResult `json:"result,omitempty"`

	// Reason explains aborts and dependency failures.
	Reason string `json:"reason,omitempty"`

	// Attempt and Delay accompany RETRYING events.
	Attempt int           `json:"attempt,omitempty"`
	Delay   time.Duration `json:"delay,omitempty"`

	Stats     Statistics `json:"stats"`
	Timestamp time.Time  `json:"timestamp"`
}

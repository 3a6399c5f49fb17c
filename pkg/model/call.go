package model

import (
	"time"
)

// ToolCall is one schedulable unit of work: a named tool invocation with
// parameters, priority, dependencies, and retry/timeout policy.
//
// The policy fields are pointers so that "absent" is distinguishable from an
// explicit zero (e.g. max_retries: 0 disables retries). The scheduler fills
// nil policy fields with its configured defaults at registration time, so a
// registered call always has non-nil policy.
type ToolCall struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// Priority orders admission; higher runs first. Default 0.
	Priority int `json:"priority"`

	// DependsOn lists call IDs that must have a COMPLETED result before
	// this call becomes eligible. IDs never registered with the scheduler
	// are assumed to be satisfied externally once a result appears.
	DependsOn []string `json:"depends_on,omitempty"`

	MaxRetries *int           `json:"max_retries,omitempty"`
	RetryDelay *time.Duration `json:"retry_delay,omitempty"`
	Timeout    *time.Duration `json:"timeout,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DependsOnID reports whether id appears in the call's dependency list.
func (c *ToolCall) DependsOnID(id string) bool {
	for _, dep := range c.DependsOn {
		if dep == id {
			return true
		}
	}
	return false
}

// Clone returns a deep-enough copy for handing to an execution goroutine:
// the dependency slice and policy pointers are copied, the parameter map is
// shared (handlers treat it as read-only).
func (c *ToolCall) Clone() *ToolCall {
	cp := *c
	cp.DependsOn = append([]string(nil), c.DependsOn...)
	if c.MaxRetries != nil {
		v := *c.MaxRetries
		cp.MaxRetries = &v
	}
	if c.RetryDelay != nil {
		v := *c.RetryDelay
		cp.RetryDelay = &v
	}
	if c.Timeout != nil {
		v := *c.Timeout
		cp.Timeout = &v
	}
	return &cp
}

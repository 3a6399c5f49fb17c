package model

import (
	"fmt"
	"sort"
	"strings"
)

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	CallID string
	From   CallState
	To     CallState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid call state transition: %s → %s (call %s)", e.From, e.To, e.CallID)
}

// CycleError is returned when a dependency graph contains a cycle.
type CycleError struct {
	CallIDs []string
}

func (e *CycleError) Error() string {
	ids := append([]string(nil), e.CallIDs...)
	sort.Strings(ids)
	return fmt.Sprintf("dependency graph contains a cycle involving calls: %s", strings.Join(ids, ", "))
}

// UnknownToolError is returned by the handler registry when no handler is
// registered for a call's tool name. It is never retryable.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Tool)
}

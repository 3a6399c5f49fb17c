package model

// CallState represents the lifecycle state of a ToolCall.
//
// At any instant every registered call belongs to exactly one state; the
// three terminal states (COMPLETED, FAILED, ABORTED) are the only ones with
// a stored ExecutionResult.
type CallState string

const (
	CallStatePending   CallState = "PENDING"
	CallStateWaiting   CallState = "WAITING"
	CallStateRunning   CallState = "RUNNING"
	CallStateCompleted CallState = "COMPLETED"
	CallStateFailed    CallState = "FAILED"
	CallStateAborted   CallState = "ABORTED"
)

// AllCallStates lists every state in a fixed order (active first).
var AllCallStates = []CallState{
	CallStatePending,
	CallStateWaiting,
	CallStateRunning,
	CallStateCompleted,
	CallStateFailed,
	CallStateAborted,
}

// String returns the string representation of the call state.
func (s CallState) String() string {
	return string(s)
}

// IsTerminal returns true if the call is in a final state.
func (s CallState) IsTerminal() bool {
	switch s {
	case CallStateCompleted, CallStateFailed, CallStateAborted:
		return true
	}
	return false
}

// ValidCallTransitions defines the allowed state transitions for ToolCalls.
// RUNNING → PENDING covers a retried call re-entering the admission queue.
var ValidCallTransitions = map[CallState][]CallState{
	CallStatePending: {CallStateRunning, CallStateAborted},
	CallStateWaiting: {CallStatePending, CallStateAborted},
	CallStateRunning: {CallStateCompleted, CallStateFailed, CallStateAborted, CallStatePending},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s CallState) CanTransitionTo(next CallState) bool {
	for _, allowed := range ValidCallTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

package scheduler

import (
	"fmt"

	"github.com/me/toolflow/pkg/model"
)

// dependenciesSatisfiedLocked reports whether every dependency of the call
// has a COMPLETED result. A dependency with a FAILED or ABORTED result, or
// with no result yet, leaves the call unsatisfied.
func (s *Scheduler) dependenciesSatisfiedLocked(call *model.ToolCall) bool {
	for _, dep := range call.DependsOn {
		res, ok := s.results[dep]
		if !ok || res.Status != model.CallStateCompleted {
			return false
		}
	}
	return true
}

// promoteDependentsLocked re-checks every WAITING call that depends on the
// just-completed id and moves the now-satisfied ones to PENDING. Invoked
// synchronously right after a call transitions to COMPLETED; the caller is
// responsible for the follow-up admission pass.
func (s *Scheduler) promoteDependentsLocked(completedID string) {
	for _, id := range s.part.ids(model.CallStateWaiting) {
		call := s.calls[id]
		if !call.DependsOnID(completedID) {
			continue
		}
		if !s.dependenciesSatisfiedLocked(call) {
			continue
		}
		if err := s.part.move(id, model.CallStatePending); err != nil {
			s.logger.Error("promote dependent", "call_id", id, "error", err)
			continue
		}
		s.logger.Debug("dependencies met", "call_id", id, "completed", completedID)
		s.publishLocked(model.Event{Type: model.EventDependenciesMet, CallID: id, Call: call.Clone()})
	}
}

// cascadeAbortLocked aborts the entire not-yet-running downstream subgraph
// of a failed call. PENDING and WAITING dependents receive an ABORTED
// result; RUNNING dependents cannot be preempted and are only notified.
// The walk is an iterative worklist with a visited set, so dependency
// cycles terminate instead of recursing unboundedly.
func (s *Scheduler) cascadeAbortLocked(failedID string) {
	visited := map[string]bool{failedID: true}
	queue := []string{failedID}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		reason := fmt.Sprintf("dependency %s failed", cur)

		for id, call := range s.calls {
			if visited[id] || !call.DependsOnID(cur) {
				continue
			}
			state, ok := s.part.stateOf(id)
			if !ok {
				continue
			}

			switch state {
			case model.CallStatePending, model.CallStateWaiting:
				visited[id] = true
				res := &model.ExecutionResult{
					CallID:     id,
					ToolName:   call.Name,
					Status:     model.CallStateAborted,
					Error:      reason,
					RetryCount: s.attempts[id],
				}
				s.finalizeLocked(id, res)
				s.logger.Info("call aborted (cascade)", "call_id", id, "reason", reason)
				s.publishLocked(model.Event{Type: model.EventAborted, CallID: id, Call: call.Clone(), Result: res, Reason: reason})
				queue = append(queue, id)

			case model.CallStateRunning:
				// In-flight executions are disowned, not killed.
				s.logger.Warn("running call has failed dependency", "call_id", id, "dependency", cur)
				s.publishLocked(model.Event{Type: model.EventDependenciesFailed, CallID: id, Call: call.Clone(), Reason: reason})
			}
		}
	}
}

// bootstrapLocked pulls known, inactive, non-terminal dependencies of a
// newly scheduled call into PENDING so a chain becomes runnable regardless
// of registration order. Dependency ids unknown to the registry are assumed
// to be satisfied externally and are never auto-scheduled. Iterative with a
// visited set; a cycle terminates the walk.
func (s *Scheduler) bootstrapLocked(call *model.ToolCall) {
	visited := make(map[string]bool)
	queue := append([]string(nil), call.DependsOn...)

	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if visited[dep] {
			continue
		}
		visited[dep] = true

		depCall, known := s.calls[dep]
		if !known {
			continue
		}
		if _, tracked := s.part.stateOf(dep); tracked {
			continue
		}
		if _, terminal := s.results[dep]; terminal {
			continue
		}

		s.part.add(dep, model.CallStatePending)
		s.logger.Debug("dependency bootstrapped", "call_id", dep)
		s.publishLocked(model.Event{Type: model.EventScheduled, CallID: dep, Call: depCall.Clone()})
		queue = append(queue, depCall.DependsOn...)
	}
}

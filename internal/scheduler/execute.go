package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/me/toolflow/pkg/model"
)

// admitLocked fills free concurrency slots: among PENDING calls whose
// dependencies are satisfied and whose backoff window has elapsed, the
// highest-priority call runs first; ties break in registration order.
func (s *Scheduler) admitLocked() {
	for s.part.count(model.CallStateRunning) < s.cfg.MaxConcurrent {
		id := s.selectNextLocked()
		if id == "" {
			return
		}
		s.startLocked(id)
	}
}

// selectNextLocked returns the id of the next admissible PENDING call, or
// "" when none is eligible.
func (s *Scheduler) selectNextLocked() string {
	now := time.Now()
	best := ""
	for _, id := range s.part.ids(model.CallStatePending) {
		call := s.calls[id]
		if nb, ok := s.notBefore[id]; ok && now.Before(nb) {
			continue
		}
		if !s.dependenciesSatisfiedLocked(call) {
			continue
		}
		if best == "" {
			best = id
			continue
		}
		b := s.calls[best]
		if call.Priority > b.Priority ||
			(call.Priority == b.Priority && s.order[id] < s.order[best]) {
			best = id
		}
	}
	return best
}

// startLocked transitions one call PENDING → RUNNING and launches its
// execution goroutine. The goroutine captures the current generation and
// cancellation context; a later AbortAll disowns it.
func (s *Scheduler) startLocked(id string) {
	if err := s.part.move(id, model.CallStateRunning); err != nil {
		s.logger.Error("admit transition", "call_id", id, "error", err)
		return
	}

	call := s.calls[id]
	s.startedAt[id] = time.Now().UTC()
	attempt := s.attempts[id]

	s.logger.Info("call executing", "call_id", id, "tool", call.Name, "attempt", attempt)
	s.publishLocked(model.Event{Type: model.EventExecuting, CallID: id, Call: call.Clone(), Attempt: attempt})

	go s.runCall(s.runCtx, s.generation, call.Clone())
}

// runCall races the handler against the per-call timeout and the shared
// cancellation signal, then reports the outcome back under the lock.
func (s *Scheduler) runCall(ctx context.Context, gen uint64, call *model.ToolCall) {
	started := time.Now().UTC()
	timeout := *call.Timeout

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type settled struct {
		output any
		err    error
	}
	ch := make(chan settled, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- settled{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		out, err := s.handler(hctx, call)
		ch <- settled{output: out, err: err}
	}()

	select {
	case o := <-ch:
		s.handleOutcome(gen, call, started, o.output, o.err, false)
	case <-hctx.Done():
		if ctx.Err() != nil {
			// Global abort: the scheduler has already recorded an ABORTED
			// result under a newer generation; nothing to report.
			s.logger.Debug("execution cancelled by abort", "call_id", call.ID)
			return
		}
		err := fmt.Errorf("tool call timed out after %s", timeout)
		s.handleOutcome(gen, call, started, nil, err, true)
	}
}

// handleOutcome applies a settled execution to scheduler state. Outcomes
// from a stale generation are discarded so a disowned execution can never
// corrupt post-abort state.
func (s *Scheduler) handleOutcome(gen uint64, call *model.ToolCall, started time.Time, output any, err error, timedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.logger.Debug("stale outcome discarded", "call_id", call.ID, "generation", gen)
		return
	}
	if state, ok := s.part.stateOf(call.ID); !ok || state != model.CallStateRunning {
		s.logger.Debug("outcome for non-running call discarded", "call_id", call.ID)
		return
	}

	id := call.ID
	ended := time.Now().UTC()

	if err == nil {
		res := &model.ExecutionResult{
			CallID:     id,
			ToolName:   call.Name,
			Status:     model.CallStateCompleted,
			Output:     output,
			StartedAt:  &started,
			EndedAt:    &ended,
			Duration:   ended.Sub(started),
			RetryCount: s.attempts[id],
		}
		s.finalizeLocked(id, res)
		s.logger.Info("call completed", "call_id", id, "tool", call.Name, "duration", res.Duration.String())
		s.publishLocked(model.Event{Type: model.EventCompleted, CallID: id, Call: call.Clone(), Result: res})

		s.promoteDependentsLocked(id)
		s.admitLocked()
		s.maybeAllCompletedLocked()
		s.publishStatsLocked()
		return
	}

	retries := s.attempts[id]
	// Scheduler-imposed timeouts are terminal; only handler errors are
	// classified against the retryable vocabulary.
	if !timedOut && Retryable(err) && retries < *call.MaxRetries {
		s.retryLocked(id, call, err, retries)
		s.admitLocked()
		s.publishStatsLocked()
		return
	}

	res := &model.ExecutionResult{
		CallID:     id,
		ToolName:   call.Name,
		Status:     model.CallStateFailed,
		Error:      err.Error(),
		StartedAt:  &started,
		EndedAt:    &ended,
		Duration:   ended.Sub(started),
		RetryCount: retries,
	}
	s.finalizeLocked(id, res)
	s.logger.Info("call failed", "call_id", id, "tool", call.Name, "error", err, "retries", retries)
	s.publishLocked(model.Event{Type: model.EventFailed, CallID: id, Call: call.Clone(), Result: res})

	if s.cfg.CascadeAbort {
		s.cascadeAbortLocked(id)
	}
	s.admitLocked()
	s.maybeAllCompletedLocked()
	s.publishStatsLocked()
}

// retryLocked returns a transiently-failed call to PENDING with an
// exponential backoff window and arms a timer to re-run admission once the
// window elapses.
func (s *Scheduler) retryLocked(id string, call *model.ToolCall, cause error, retries int) {
	if err := s.part.move(id, model.CallStatePending); err != nil {
		s.logger.Error("retry transition", "call_id", id, "error", err)
		return
	}

	s.attempts[id] = retries + 1
	delay := BackoffDelay(*call.RetryDelay, retries)
	s.notBefore[id] = time.Now().Add(delay)
	delete(s.startedAt, id)

	gen := s.generation
	s.timers[id] = time.AfterFunc(delay, func() {
		s.retryReady(gen, id)
	})

	s.logger.Info("call retrying", "call_id", id, "tool", call.Name,
		"attempt", retries+1, "max_retries", *call.MaxRetries, "delay", delay.String(), "error", cause)
	s.publishLocked(model.Event{
		Type:    model.EventRetrying,
		CallID:  id,
		Call:    call.Clone(),
		Reason:  cause.Error(),
		Attempt: retries + 1,
		Delay:   delay,
	})
}

// retryReady runs an admission pass once a retry backoff expires.
func (s *Scheduler) retryReady(gen uint64, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	delete(s.timers, id)
	delete(s.notBefore, id)
	s.admitLocked()
}

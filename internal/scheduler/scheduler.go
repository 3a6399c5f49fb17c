// Package scheduler implements a dependency-aware, concurrency-bounded
// tool-call scheduler. Calls are admitted by priority once their
// dependencies have completed, executed against a caller-supplied handler
// under a per-call timeout, retried with exponential backoff on transient
// failures, and cascade-aborted when a dependency fails. Every state
// transition publishes a typed event carrying a statistics snapshot.
//
// All registry, partition, and statistics mutations are serialized behind a
// single mutex; only handler executions run concurrently, bounded by the
// configured ceiling.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/me/toolflow/pkg/model"
)

// Handler performs the actual work of one tool call. It must eventually
// settle: return an output value, or an error. The scheduler never
// interprets the output; retries are driven purely by error text
// classification.
type Handler func(ctx context.Context, call *model.ToolCall) (any, error)

// Config holds scheduler-wide defaults. Per-call policy fields override the
// retry/timeout values.
type Config struct {
	MaxConcurrent int           // concurrency ceiling for running calls
	MaxRetries    int           // default retry attempts per call
	RetryDelay    time.Duration // default base backoff delay
	Timeout       time.Duration // default per-attempt timeout
	CascadeAbort  bool          // abort dependents of a failed call
	AutoBootstrap bool          // pull known inactive dependencies into pending
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 5,
		MaxRetries:    2,
		RetryDelay:    time.Second,
		Timeout:       30 * time.Second,
		CascadeAbort:  true,
		AutoBootstrap: true,
	}
}

// Scheduler owns all scheduling state. Concurrent instances share nothing.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg     Config
	handler Handler
	logger  *slog.Logger

	calls   map[string]*model.ToolCall
	results map[string]*model.ExecutionResult
	part    *partition

	order map[string]int // registration sequence, stable admission tie-break
	seq   int

	attempts  map[string]int       // retries consumed by in-flight calls
	notBefore map[string]time.Time // earliest next admission (retry backoff)
	startedAt map[string]time.Time // admission time of running calls
	timers    map[string]*time.Timer

	totalScheduled int
	totalExec      time.Duration
	fastest        time.Duration
	slowest        time.Duration

	// generation distinguishes scheduler epochs; outcomes reported by
	// executions admitted under an older generation are discarded.
	generation uint64
	runCtx     context.Context
	cancelRun  context.CancelFunc

	subs    map[int]chan model.Event
	nextSub int
}

// New creates a Scheduler that executes calls with the given handler.
// Zero numeric config fields fall back to DefaultConfig values.
func New(cfg Config, handler Handler, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:       cfg,
		handler:   handler,
		logger:    logger.With("component", "scheduler"),
		calls:     make(map[string]*model.ToolCall),
		results:   make(map[string]*model.ExecutionResult),
		part:      newPartition(),
		order:     make(map[string]int),
		attempts:  make(map[string]int),
		notBefore: make(map[string]time.Time),
		startedAt: make(map[string]time.Time),
		timers:    make(map[string]*time.Timer),
		runCtx:    ctx,
		cancelRun: cancel,
		subs:      make(map[int]chan model.Event),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Schedule registers one tool call. Registration is idempotent: a call with
// an already-known id is a no-op. Admission is attempted immediately.
func (s *Scheduler) Schedule(call *model.ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked(call)
	s.admitLocked()
	s.publishStatsLocked()
}

// ScheduleAll registers a batch of calls sequentially. There is no
// transactional guarantee across the batch.
func (s *Scheduler) ScheduleAll(calls []*model.ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, call := range calls {
		s.scheduleLocked(call)
	}
	s.admitLocked()
	s.publishStatsLocked()
}

// TryAdmitNext runs one admission pass, filling any free concurrency slots.
// It is idempotent and safe to call at any time.
func (s *Scheduler) TryAdmitNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admitLocked()
}

// Result returns the terminal result for the given call id, if any.
func (s *Scheduler) Result(id string) (*model.ExecutionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[id]
	return res, ok
}

// Results returns a copy of the result map.
func (s *Scheduler) Results() map[string]*model.ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*model.ExecutionResult, len(s.results))
	for id, res := range s.results {
		out[id] = res
	}
	return out
}

// State returns the current status of the given call id.
func (s *Scheduler) State(id string) (model.CallState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.part.stateOf(id)
}

// CallStatus pairs a registered call with its current state and, once
// terminal, its result.
type CallStatus struct {
	Call   *model.ToolCall        `json:"call"`
	State  model.CallState        `json:"state"`
	Result *model.ExecutionResult `json:"result,omitempty"`
}

// Snapshot returns all registered calls in registration order.
func (s *Scheduler) Snapshot() []CallStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CallStatus, 0, len(s.calls))
	for id, call := range s.calls {
		st, _ := s.part.stateOf(id)
		out = append(out, CallStatus{Call: call.Clone(), State: st, Result: s.results[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		return s.order[out[i].Call.ID] < s.order[out[j].Call.ID]
	})
	return out
}

// Drained returns true when no call is pending, waiting, or running.
func (s *Scheduler) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drainedLocked()
}

// Stats returns the current statistics snapshot.
func (s *Scheduler) Stats() model.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

// Wait blocks until the scheduler is drained or ctx is cancelled.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for !s.drainedLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// Stalled returns the ids of Waiting calls that can never be promoted: a
// dependency is unknown to the registry and has no result, or has a
// terminal result other than COMPLETED. This surfaces the silent-hang
// failure mode of unregistered or failed dependencies.
func (s *Scheduler) Stalled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stalled []string
	for _, id := range s.part.ids(model.CallStateWaiting) {
		call := s.calls[id]
		for _, dep := range call.DependsOn {
			res, hasResult := s.results[dep]
			if hasResult && res.Status != model.CallStateCompleted {
				stalled = append(stalled, id)
				break
			}
			if _, known := s.calls[dep]; !known && !hasResult {
				stalled = append(stalled, id)
				break
			}
		}
	}
	sort.Strings(stalled)
	return stalled
}

// AbortAll invalidates the shared cancellation signal, gives every active
// call an ABORTED result, and installs a fresh signal for future
// scheduling. Executions in flight at the moment of abort are disowned:
// their late outcomes are discarded by the generation check.
func (s *Scheduler) AbortAll(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortAllLocked(reason)
	s.publishStatsLocked()
}

// Reset aborts everything and clears the registry, partition, and
// statistics back to initial values.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abortAllLocked("scheduler reset")

	s.calls = make(map[string]*model.ToolCall)
	s.results = make(map[string]*model.ExecutionResult)
	s.part = newPartition()
	s.order = make(map[string]int)
	s.seq = 0
	s.attempts = make(map[string]int)
	s.notBefore = make(map[string]time.Time)
	s.startedAt = make(map[string]time.Time)
	s.totalScheduled = 0
	s.totalExec = 0
	s.fastest = 0
	s.slowest = 0

	s.publishStatsLocked()
	s.cond.Broadcast()
}

// scheduleLocked registers one call: defaults applied, partition placement
// decided, SCHEDULED event published.
func (s *Scheduler) scheduleLocked(call *model.ToolCall) {
	if _, exists := s.calls[call.ID]; exists {
		s.logger.Debug("call already scheduled", "call_id", call.ID)
		return
	}

	c := call.Clone()
	if c.MaxRetries == nil {
		v := s.cfg.MaxRetries
		c.MaxRetries = &v
	}
	if c.RetryDelay == nil {
		v := s.cfg.RetryDelay
		c.RetryDelay = &v
	}
	if c.Timeout == nil {
		v := s.cfg.Timeout
		c.Timeout = &v
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	s.calls[c.ID] = c
	s.order[c.ID] = s.seq
	s.seq++
	s.totalScheduled++

	if s.cfg.AutoBootstrap && len(c.DependsOn) > 0 {
		s.bootstrapLocked(c)
	}

	if s.dependenciesSatisfiedLocked(c) {
		s.part.add(c.ID, model.CallStatePending)
	} else {
		s.part.add(c.ID, model.CallStateWaiting)
	}

	state, _ := s.part.stateOf(c.ID)
	s.logger.Debug("call scheduled", "call_id", c.ID, "tool", c.Name, "state", state)
	s.publishLocked(model.Event{Type: model.EventScheduled, CallID: c.ID, Call: c.Clone()})
}

func (s *Scheduler) drainedLocked() bool {
	return s.part.count(model.CallStatePending) == 0 &&
		s.part.count(model.CallStateWaiting) == 0 &&
		s.part.count(model.CallStateRunning) == 0
}

// abortAllLocked implements AbortAll with the mutex already held.
func (s *Scheduler) abortAllLocked(reason string) {
	s.generation++
	s.cancelRun()
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}

	now := time.Now().UTC()
	for _, state := range []model.CallState{model.CallStatePending, model.CallStateWaiting, model.CallStateRunning} {
		for _, id := range s.part.ids(state) {
			call := s.calls[id]
			res := &model.ExecutionResult{
				CallID:     id,
				ToolName:   call.Name,
				Status:     model.CallStateAborted,
				Error:      reason,
				RetryCount: s.attempts[id],
			}
			if state == model.CallStateRunning {
				if started, ok := s.startedAt[id]; ok {
					ended := now
					res.StartedAt = &started
					res.EndedAt = &ended
					res.Duration = ended.Sub(started)
				}
				s.logger.Info("running call disowned by abort", "call_id", id)
			}
			s.finalizeLocked(id, res)
			s.publishLocked(model.Event{Type: model.EventAborted, CallID: id, Call: call.Clone(), Result: res, Reason: reason})
		}
	}

	s.attempts = make(map[string]int)
	s.notBefore = make(map[string]time.Time)
	s.startedAt = make(map[string]time.Time)

	s.logger.Info("all calls aborted", "reason", reason, "generation", s.generation)
	s.cond.Broadcast()
}

// finalizeLocked moves a call to a terminal state and stores its result.
// Results exist if and only if the call is terminal.
func (s *Scheduler) finalizeLocked(id string, res *model.ExecutionResult) {
	if err := s.part.move(id, res.Status); err != nil {
		s.logger.Error("finalize transition", "call_id", id, "error", err)
		return
	}
	s.results[id] = res
	delete(s.attempts, id)
	delete(s.notBefore, id)
	delete(s.startedAt, id)
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}

	if res.Status == model.CallStateCompleted {
		s.totalExec += res.Duration
		if s.fastest == 0 || res.Duration < s.fastest {
			s.fastest = res.Duration
		}
		if res.Duration > s.slowest {
			s.slowest = res.Duration
		}
	}
	s.cond.Broadcast()
}

// maybeAllCompletedLocked publishes ALL_COMPLETED when the registry drains.
func (s *Scheduler) maybeAllCompletedLocked() {
	if s.totalScheduled > 0 && s.drainedLocked() {
		s.logger.Info("all calls terminal", "total", s.totalScheduled)
		s.publishLocked(model.Event{Type: model.EventAllCompleted})
	}
}

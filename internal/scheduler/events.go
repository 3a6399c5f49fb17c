package scheduler

import (
	"time"

	"github.com/me/toolflow/pkg/model"
)

// eventBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind loses events rather than stalling the scheduler.
const eventBuffer = 256

// Subscribe registers an event channel. The returned cancel function
// unsubscribes and closes the channel; it is safe to call more than once.
func (s *Scheduler) Subscribe() (<-chan model.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan model.Event, eventBuffer)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publishLocked stamps the event with the current statistics snapshot and
// delivers it to every subscriber without blocking.
func (s *Scheduler) publishLocked(ev model.Event) {
	ev.Stats = s.statsLocked()
	ev.Timestamp = time.Now().UTC()

	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("subscriber lagging, event dropped", "subscriber", id, "event", ev.Type)
		}
	}
}

// publishStatsLocked publishes a STATS_UPDATED event. Called once at the
// end of every mutating operation.
func (s *Scheduler) publishStatsLocked() {
	s.publishLocked(model.Event{Type: model.EventStatsUpdated})
}

package scheduler

import (
	"time"

	"github.com/me/toolflow/pkg/model"
)

// statsLocked recomputes the statistics snapshot from the status partition
// and the running timing aggregates.
func (s *Scheduler) statsLocked() model.Statistics {
	st := model.Statistics{
		TotalScheduled: s.totalScheduled,
		Pending:        s.part.count(model.CallStatePending),
		Waiting:        s.part.count(model.CallStateWaiting),
		Running:        s.part.count(model.CallStateRunning),
		Completed:      s.part.count(model.CallStateCompleted),
		Failed:         s.part.count(model.CallStateFailed),
		Aborted:        s.part.count(model.CallStateAborted),
	}

	if st.Completed > 0 {
		st.TotalExecution = s.totalExec
		st.AverageExecution = s.totalExec / time.Duration(st.Completed)
		st.Fastest = s.fastest
		st.Slowest = s.slowest
	}
	if terminal := st.Terminal(); terminal > 0 {
		st.SuccessRate = float64(st.Completed) / float64(terminal)
	}
	return st
}

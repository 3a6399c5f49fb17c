package model

import "time"

// Statistics is a derived snapshot of scheduler state, recomputed on every
// mutating operation and stamped onto every published event.
type Statistics struct {
	TotalScheduled int `json:"total_scheduled"`

	Pending   int `json:"pending"`
	Waiting   int `json:"waiting"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Aborted   int `json:"aborted"`

	// Execution timings cover COMPLETED calls only.
	TotalExecution   time.Duration `json:"total_execution"`
	AverageExecution time.Duration `json:"average_execution"`
	Fastest          time.Duration `json:"fastest_execution"`
	Slowest          time.Duration `json:"slowest_execution"`

	// SuccessRate = completed / (completed + failed + aborted),
	// 0 while no call is terminal.
	SuccessRate float64 `json:"success_rate"`
}

// Terminal returns the number of calls in a terminal state.
func (s Statistics) Terminal() int {
	return s.Completed + s.Failed + s.Aborted
}

// Active returns the number of calls still pending, waiting, or running.
func (s Statistics) Active() int {
	return s.Pending + s.Waiting + s.Running
}

package scheduler

import (
	"sort"

	"github.com/me/toolflow/pkg/model"
)

// partition tracks the six disjoint status sets. Every known id belongs to
// exactly one set at all times; moves are validated against the model
// transition table.
type partition struct {
	sets  map[model.CallState]map[string]struct{}
	state map[string]model.CallState
}

func newPartition() *partition {
	p := &partition{
		sets:  make(map[model.CallState]map[string]struct{}, len(model.AllCallStates)),
		state: make(map[string]model.CallState),
	}
	for _, st := range model.AllCallStates {
		p.sets[st] = make(map[string]struct{})
	}
	return p
}

// add places a new id into its initial set.
func (p *partition) add(id string, st model.CallState) {
	p.sets[st][id] = struct{}{}
	p.state[id] = st
}

// move transitions an id between sets, enforcing the transition table.
func (p *partition) move(id string, to model.CallState) error {
	from, ok := p.state[id]
	if !ok || !from.CanTransitionTo(to) {
		return &model.InvalidTransitionError{CallID: id, From: from, To: to}
	}
	delete(p.sets[from], id)
	p.sets[to][id] = struct{}{}
	p.state[id] = to
	return nil
}

// stateOf returns the current state of an id.
func (p *partition) stateOf(id string) (model.CallState, bool) {
	st, ok := p.state[id]
	return st, ok
}

// count returns the size of one status set.
func (p *partition) count(st model.CallState) int {
	return len(p.sets[st])
}

// ids returns a sorted snapshot of one status set, safe to iterate while
// the partition is mutated.
func (p *partition) ids(st model.CallState) []string {
	out := make([]string, 0, len(p.sets[st]))
	for id := range p.sets[st] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

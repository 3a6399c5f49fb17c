package plan

import (
	"sort"

	"github.com/me/toolflow/pkg/model"
)

// topoSort orders calls so every call appears after all of its in-plan
// dependencies, using Kahn's algorithm. Dependencies on ids outside the
// plan create no edges. Returns a CycleError naming the calls still
// blocked when no cycle-free order exists.
func topoSort(calls []Call) ([]string, error) {
	ids := make(map[string]bool, len(calls))
	for i := range calls {
		ids[calls[i].ID] = true
	}

	// forward[A] = [B, C] means A must complete before B and C.
	forward := make(map[string][]string, len(calls))
	inDegree := make(map[string]int, len(calls))
	for i := range calls {
		inDegree[calls[i].ID] = 0
	}

	for i := range calls {
		c := &calls[i]
		seen := make(map[string]bool)
		for _, dep := range c.DependsOn {
			if !ids[dep] || seen[dep] || dep == c.ID {
				continue
			}
			seen[dep] = true
			forward[dep] = append(forward[dep], c.ID)
			inDegree[c.ID]++
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(calls))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		successors := forward[node]
		sort.Strings(successors)
		for _, succ := range successors {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(calls) {
		var blocked []string
		for id, deg := range inDegree {
			if deg > 0 {
				blocked = append(blocked, id)
			}
		}
		sort.Strings(blocked)
		return nil, &model.CycleError{CallIDs: blocked}
	}
	return order, nil
}

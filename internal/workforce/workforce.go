// Package workforce proposes task reassignments that move work from
// over-capacity assignees to assignees with spare capacity.
package workforce

import (
	"sort"

	"github.com/marcus/opsdesk/internal/tasks"
)

// Defaults used when the caller does not override them.
const (
	DefaultCapacityMinutes = 480
	DefaultMaxSuggestions  = 10
)

// Unassigned labels the bucket of tasks without an assignee in reports.
const Unassigned = "(unassigned)"

// EstimateFunc returns the expected minutes of work for a task.
type EstimateFunc func(tasks.Task) int

// Suggestion proposes moving one task. It is advisory until a human
// approves it.
type Suggestion struct {
	TaskID         string `json:"task_id"`
	Title          string `json:"title,omitempty"`
	From           string `json:"from"`
	To             string `json:"to"`
	BenefitMinutes int    `json:"benefit_minutes"`
}

// Load is an assignee's estimated pending work against capacity.
type Load struct {
	Assignee string `json:"assignee"`
	Minutes  int    `json:"minutes"`
	Capacity int    `json:"capacity"`
	Tasks    int    `json:"tasks"`
}

// Over reports whether the assignee exceeds capacity.
func (l Load) Over() bool { return l.Minutes > l.Capacity }

// Under reports whether the assignee has spare capacity.
func (l Load) Under() bool { return l.Minutes < l.Capacity }

// Loads computes the pending load of every assignee in the tasks and the
// roster, sorted by assignee id. The empty id is the unassigned bucket.
func Loads(ts []tasks.Task, estimate EstimateFunc, capacity int, roster []string) []Load {
	minutes, counts := loadByAssignee(ts, estimate, roster)

	out := make([]Load, 0, len(minutes))
	for _, id := range sortedKeys(minutes) {
		out = append(out, Load{Assignee: id, Minutes: minutes[id], Capacity: capacity, Tasks: counts[id]})
	}
	return out
}

// Suggest runs a single balancing pass. Over-capacity assignees are handled
// heaviest first; each sheds its lowest-priority tasks to the receiver with
// the most spare capacity that can absorb the whole task. Simulated loads
// are updated after every move so no receiver is pushed past capacity.
// Input tasks are never modified.
func Suggest(ts []tasks.Task, estimate EstimateFunc, capacity, maxSuggestions int, roster []string) []Suggestion {
	suggestions := []Suggestion{}
	if maxSuggestions <= 0 {
		return suggestions
	}

	load, _ := loadByAssignee(ts, estimate, roster)

	var over []string
	under := make(map[string]bool)
	for _, id := range sortedKeys(load) {
		switch {
		case load[id] > capacity:
			over = append(over, id)
		case load[id] < capacity:
			under[id] = true
		}
	}
	sort.SliceStable(over, func(i, j int) bool {
		return load[over[i]] > load[over[j]]
	})

	byAssignee := make(map[string][]tasks.Task)
	for _, t := range ts {
		if t.IsPending() {
			byAssignee[t.AssignedTo] = append(byAssignee[t.AssignedTo], t)
		}
	}

	for _, from := range over {
		candidates := append([]tasks.Task(nil), byAssignee[from]...)
		sort.SliceStable(candidates, func(i, j int) bool {
			return rank(candidates[i]) < rank(candidates[j])
		})

		for _, t := range candidates {
			if len(suggestions) >= maxSuggestions {
				return suggestions
			}
			if load[from] <= capacity {
				break
			}

			minutes := estimate(t)
			if minutes <= 0 {
				continue
			}

			to, ok := pickReceiver(under, load, capacity, minutes)
			if !ok {
				continue
			}

			suggestions = append(suggestions, Suggestion{
				TaskID:         t.ID,
				Title:          t.Title,
				From:           from,
				To:             to,
				BenefitMinutes: minutes,
			})
			load[from] -= minutes
			load[to] += minutes
			if load[to] >= capacity {
				delete(under, to)
			}
		}
	}

	return suggestions
}

// pickReceiver returns the under-capacity assignee with the largest spare
// capacity that still fits minutes. Equal spare breaks by id.
func pickReceiver(under map[string]bool, load map[string]int, capacity, minutes int) (string, bool) {
	best := ""
	bestSpare := -1
	for id := range under {
		spare := capacity - load[id]
		if spare < minutes {
			continue
		}
		if spare > bestSpare || (spare == bestSpare && id < best) {
			best, bestSpare = id, spare
		}
	}
	return best, bestSpare >= 0
}

// rank orders tasks for shedding: the stored score when present, else the
// declared priority level.
func rank(t tasks.Task) float64 {
	if t.PriorityScore != nil {
		return *t.PriorityScore
	}
	return float64(t.Priority.Rank())
}

func loadByAssignee(ts []tasks.Task, estimate EstimateFunc, roster []string) (map[string]int, map[string]int) {
	minutes := make(map[string]int)
	counts := make(map[string]int)
	for _, id := range roster {
		if _, ok := minutes[id]; !ok {
			minutes[id] = 0
		}
	}
	for _, t := range ts {
		if !t.IsPending() {
			continue
		}
		minutes[t.AssignedTo] += estimate(t)
		counts[t.AssignedTo]++
	}
	return minutes, counts
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

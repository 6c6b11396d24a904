// Package forecast flags upcoming days whose expected workload exceeds
// daily capacity.
package forecast

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/marcus/opsdesk/internal/tasks"
)

// DefaultCapacityMinutes is the default daily capacity.
const DefaultCapacityMinutes = 480

// DayLayout formats calendar days.
const DayLayout = "2006-01-02"

// DayRisk is a day at risk of missed deadlines.
type DayRisk struct {
	Day             string  `json:"day"`
	ExpectedMinutes int     `json:"expected_minutes"`
	CapacityMinutes int     `json:"capacity_minutes"`
	Tasks           int     `json:"tasks"`
	Probability     float64 `json:"probability"`
	Reason          string  `json:"reason"`
}

// Forecast groups pending tasks due within [from, to] by their local due
// day and reports every day whose expected minutes exceed capacity, sorted
// by day. Days with no pending work never appear.
func Forecast(ts []tasks.Task, model *tasks.DurationModel, from, to time.Time, capacity int, loc *time.Location) []DayRisk {
	if loc == nil {
		loc = time.Local
	}

	expected := make(map[string]int)
	counts := make(map[string]int)
	for _, t := range ts {
		if !t.IsPending() || t.DueDate == nil {
			continue
		}
		if t.DueDate.Before(from) || t.DueDate.After(to) {
			continue
		}
		day := t.DueDate.In(loc).Format(DayLayout)
		expected[day] += model.Estimate(t)
		counts[day]++
	}

	risks := []DayRisk{}
	for day, minutes := range expected {
		p, ok := Probability(minutes, capacity)
		if !ok {
			continue
		}
		risks = append(risks, DayRisk{
			Day:             day,
			ExpectedMinutes: minutes,
			CapacityMinutes: capacity,
			Tasks:           counts[day],
			Probability:     p,
			Reason:          reason(minutes, capacity),
		})
	}

	sort.Slice(risks, func(i, j int) bool { return risks[i].Day < risks[j].Day })
	return risks
}

// Probability maps expected load against capacity to a breach probability.
// ok is false when the day is not overloaded. It starts at 0.5 just over
// capacity and saturates at 1 when load reaches twice capacity.
func Probability(expectedMinutes, capacityMinutes int) (float64, bool) {
	if expectedMinutes <= 0 {
		return 0, false
	}
	if capacityMinutes <= 0 {
		return 1, true
	}
	ratio := float64(expectedMinutes) / float64(capacityMinutes)
	if ratio <= 1 {
		return 0, false
	}
	return math.Min(1, 0.5+(ratio-1)*0.5), true
}

func reason(expected, capacity int) string {
	if capacity <= 0 {
		return fmt.Sprintf("%d min expected with no capacity available", expected)
	}
	overflow := (float64(expected)/float64(capacity) - 1) * 100
	return fmt.Sprintf("%d min expected vs %d min capacity (%.0f%% over)", expected, capacity, overflow)
}

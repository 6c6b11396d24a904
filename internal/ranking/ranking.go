// Package ranking picks the next few tasks worth doing now.
package ranking

import (
	"sort"
	"time"

	"github.com/marcus/opsdesk/internal/tasks"
)

// Defaults for Options.
const (
	DefaultLimit           = 5
	DefaultVIPMinSpend     = 10000.0
	DefaultVIPMinScore     = 80.0
	DefaultDurationMinutes = 30
)

// Horizon bounds how far ahead a dated task may be due to be eligible.
const Horizon = 7 * 24 * time.Hour

// Options tune the ranker.
type Options struct {
	Limit       int
	VIPMinSpend float64
	VIPMinScore float64
	Location    *time.Location
}

// DefaultOptions returns the standard ranking options in the local zone.
func DefaultOptions() Options {
	return Options{
		Limit:       DefaultLimit,
		VIPMinSpend: DefaultVIPMinSpend,
		VIPMinScore: DefaultVIPMinScore,
		Location:    time.Local,
	}
}

// Action is a ranked task with the terms that make up its value.
type Action struct {
	TaskID          string     `json:"task_id"`
	Title           string     `json:"title"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	Value           float64    `json:"value"`
	PriorityScore   float64    `json:"priority_score"`
	Urgency         float64    `json:"urgency"`
	Revenue         float64    `json:"revenue"`
	DurationMinutes int        `json:"duration_minutes"`
}

// IsVIP reports whether a client qualifies as VIP by spend or score.
func (o Options) IsVIP(c tasks.Client) bool {
	if c.TotalSpent > o.VIPMinSpend {
		return true
	}
	return c.Score != nil && *c.Score >= o.VIPMinScore
}

// Rank returns up to opts.Limit pending tasks ordered by value, shortest
// first among equal values. Eligible tasks are undated or due within the
// horizon (overdue included). clients is keyed by client id.
func Rank(ts []tasks.Task, clients map[string]tasks.Client, now time.Time, opts Options) []Action {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	tomorrow := tasks.StartOfDay(now, loc).AddDate(0, 0, 1)
	horizon := now.Add(Horizon)

	actions := []Action{}
	for _, t := range ts {
		if !t.IsPending() {
			continue
		}
		if t.DueDate != nil && t.DueDate.After(horizon) && !t.DueDate.Before(tomorrow) {
			continue
		}

		a := Action{
			TaskID:          t.ID,
			Title:           t.Title,
			DueDate:         t.DueDate,
			Urgency:         urgency(t.DueDate, now, tomorrow),
			Revenue:         revenue(t, clients, opts),
			DurationMinutes: DefaultDurationMinutes,
		}
		if t.PriorityScore != nil {
			a.PriorityScore = *t.PriorityScore
		}
		if t.EstimatedMinutes != nil {
			a.DurationMinutes = *t.EstimatedMinutes
		}
		a.Value = a.PriorityScore + a.Urgency + a.Revenue
		actions = append(actions, a)
	}

	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Value != actions[j].Value {
			return actions[i].Value > actions[j].Value
		}
		return actions[i].DurationMinutes < actions[j].DurationMinutes
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(actions) > limit {
		actions = actions[:limit]
	}
	return actions
}

func urgency(due *time.Time, now, tomorrow time.Time) float64 {
	if due == nil {
		return 0
	}
	until := due.Sub(now)
	switch {
	case due.Before(tomorrow):
		return 50
	case until <= 24*time.Hour:
		return 35
	case until <= 72*time.Hour:
		return 20
	default:
		return 10
	}
}

func revenue(t tasks.Task, clients map[string]tasks.Client, opts Options) float64 {
	if t.SourceModule == tasks.SourceSale {
		return 25
	}
	if t.ClientID == "" {
		return 0
	}
	if c, ok := clients[t.ClientID]; ok && opts.IsVIP(c) {
		return 15
	}
	return 0
}

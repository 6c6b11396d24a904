package tasks

import "time"

// Weights are the points awarded by each scoring term.
type Weights struct {
	DueWithin24h   float64
	DueWithin48h   float64
	DueThisWeek    float64
	PriorityHigh   float64
	PriorityMedium float64
	PriorityLow    float64
	Blocking       float64
	SLA            float64
	Pending        float64
}

// DefaultWeights returns the standard point table.
func DefaultWeights() Weights {
	return Weights{
		DueWithin24h:   200,
		DueWithin48h:   120,
		DueThisWeek:    60,
		PriorityHigh:   150,
		PriorityMedium: 80,
		PriorityLow:    0,
		Blocking:       180,
		SLA:            120,
		Pending:        40,
	}
}

// Breakdown holds the contribution of each scoring term.
type Breakdown struct {
	DueDate  float64 `json:"due_date"`
	Priority float64 `json:"priority"`
	Blocking float64 `json:"blocking"`
	SLA      float64 `json:"sla"`
	Pending  float64 `json:"pending"`
}

// Total is the priority score.
func (b Breakdown) Total() float64 {
	return b.DueDate + b.Priority + b.Blocking + b.SLA + b.Pending
}

// Scorer computes priority scores. It is pure: the same task and instant
// always produce the same score.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// DefaultScorer uses DefaultWeights.
func DefaultScorer() *Scorer {
	return NewScorer(DefaultWeights())
}

// Score returns the priority score of t evaluated at now.
// Formula: due_urgency + declared_priority + blocking + sla + pending
func (s *Scorer) Score(t Task, now time.Time) float64 {
	return s.Explain(t, now).Total()
}

// Explain returns the per-term breakdown of the score.
func (s *Scorer) Explain(t Task, now time.Time) Breakdown {
	var b Breakdown

	if t.DueDate != nil {
		b.DueDate = s.dueUrgency(*t.DueDate, now)
	}

	switch t.Priority {
	case PriorityHigh:
		b.Priority = s.weights.PriorityHigh
	case PriorityMedium:
		b.Priority = s.weights.PriorityMedium
	default:
		b.Priority = s.weights.PriorityLow
	}

	if t.IsBlocking {
		b.Blocking = s.weights.Blocking
	}

	// Any SLA counts, whatever time is left on it.
	if t.SLAMinutes != nil && *t.SLAMinutes > 0 {
		b.SLA = s.weights.SLA
	}

	if t.Status == StatusPending {
		b.Pending = s.weights.Pending
	}

	return b
}

func (s *Scorer) dueUrgency(due, now time.Time) float64 {
	until := due.Sub(now)
	switch {
	case until <= 24*time.Hour:
		return s.weights.DueWithin24h
	case until <= 48*time.Hour:
		return s.weights.DueWithin48h
	}

	weekStart := StartOfISOWeek(now)
	weekEnd := weekStart.AddDate(0, 0, 7)
	if !due.Before(weekStart) && due.Before(weekEnd) {
		return s.weights.DueThisWeek
	}
	return 0
}

// Score evaluates t with the default weights.
func Score(t Task, now time.Time) float64 {
	return DefaultScorer().Score(t, now)
}

// StartOfISOWeek returns Monday 00:00 of the week containing t, in t's
// location.
func StartOfISOWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -offset)
}

// StartOfDay returns 00:00 of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

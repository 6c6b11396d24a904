package tasks

import "math"

// DefaultFallbackMinutes is used when neither an explicit estimate nor a
// type average is available.
const DefaultFallbackMinutes = 30

// DurationModel estimates task workload from explicit estimates and the
// historical resolution time of completed tasks of the same type.
type DurationModel struct {
	averages map[string]int
	samples  map[string]int
	fallback int
}

// NewDurationModel builds per-type averages from completed tasks, using
// completed_at - created_at. Negative durations (clock anomalies) are
// discarded. A non-positive fallback selects DefaultFallbackMinutes.
func NewDurationModel(history []Task, fallback int) *DurationModel {
	if fallback <= 0 {
		fallback = DefaultFallbackMinutes
	}

	totals := make(map[string]float64)
	counts := make(map[string]int)
	for _, t := range history {
		if t.Status != StatusDone || t.CompletedAt == nil || t.CreatedAt.IsZero() {
			continue
		}
		minutes := t.CompletedAt.Sub(t.CreatedAt).Minutes()
		if minutes < 0 {
			continue
		}
		totals[t.Type] += minutes
		counts[t.Type]++
	}

	averages := make(map[string]int, len(totals))
	for typ, total := range totals {
		averages[typ] = int(math.Round(total / float64(counts[typ])))
	}

	return &DurationModel{
		averages: averages,
		samples:  counts,
		fallback: fallback,
	}
}

// TypeAverage returns the historical average minutes for a task type.
func (m *DurationModel) TypeAverage(taskType string) (int, bool) {
	if m == nil {
		return 0, false
	}
	avg, ok := m.averages[taskType]
	return avg, ok
}

// Samples returns how many completed tasks informed the type average.
func (m *DurationModel) Samples(taskType string) int {
	if m == nil {
		return 0
	}
	return m.samples[taskType]
}

// Estimate returns the expected minutes of work for t: the explicit
// estimate, else the type average, else the fallback.
func (m *DurationModel) Estimate(t Task) int {
	if t.EstimatedMinutes != nil && *t.EstimatedMinutes > 0 {
		return *t.EstimatedMinutes
	}
	if avg, ok := m.TypeAverage(t.Type); ok {
		return avg
	}
	if m == nil {
		return DefaultFallbackMinutes
	}
	return m.fallback
}

// AverageEstimatedMinutes is the mean explicit estimate across ts, rounded
// to whole minutes. ok is false when no task carries an estimate.
func AverageEstimatedMinutes(ts []Task) (int, bool) {
	var total, count int
	for _, t := range ts {
		if t.EstimatedMinutes == nil || *t.EstimatedMinutes <= 0 {
			continue
		}
		total += *t.EstimatedMinutes
		count++
	}
	if count == 0 {
		return 0, false
	}
	return int(math.Round(float64(total) / float64(count))), true
}

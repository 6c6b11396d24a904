// Package interval implements merging of time intervals and free-time
// computation inside a bounded window.
package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns End-Start, or 0 for empty or inverted intervals.
func (iv Interval) Duration() time.Duration {
	if !iv.End.After(iv.Start) {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Empty reports whether the interval covers no time.
func (iv Interval) Empty() bool {
	return !iv.End.After(iv.Start)
}

// Intersect returns the overlap of iv and other. The result is empty when
// they do not overlap.
func (iv Interval) Intersect(other Interval) Interval {
	start := iv.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := iv.End
	if other.End.Before(end) {
		end = other.End
	}
	if !end.After(start) {
		return Interval{Start: start, End: start}
	}
	return Interval{Start: start, End: end}
}

// Merge sorts intervals by start and coalesces overlapping or adjacent
// ones. Empty intervals are dropped. The input slice is not modified.
func Merge(intervals []Interval) []Interval {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Busy returns how much of window is covered by the busy intervals,
// counting overlaps once.
func Busy(window Interval, busy []Interval) time.Duration {
	if window.Empty() {
		return 0
	}
	var total time.Duration
	for _, iv := range Merge(busy) {
		total += window.Intersect(iv).Duration()
	}
	return total
}

// Free returns the part of window not covered by busy. It is never negative.
func Free(window Interval, busy []Interval) time.Duration {
	free := window.Duration() - Busy(window, busy)
	if free < 0 {
		return 0
	}
	return free
}

// FreeMinutes is Free expressed in whole minutes.
func FreeMinutes(window Interval, busy []Interval) int {
	return int(Free(window, busy) / time.Minute)
}

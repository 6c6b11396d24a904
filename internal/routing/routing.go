// Package routing orders a technician's geolocated visits with a greedy
// nearest-neighbor tour.
package routing

import (
	"math"

	"github.com/marcus/opsdesk/internal/geo"
	"github.com/marcus/opsdesk/internal/tasks"
)

// DefaultSpeedKmh is the assumed average travel speed.
const DefaultSpeedKmh = 30.0

// Stop is one visit in the optimized order.
type Stop struct {
	TaskID     string    `json:"task_id"`
	Point      geo.Point `json:"point"`
	LegKm      float64   `json:"leg_km"`
	LegMinutes float64   `json:"leg_minutes"`
}

// Result is an advisory visit order. It is never persisted by Optimize.
type Result struct {
	Order         []string `json:"order"`
	TravelMinutes float64  `json:"travel_minutes"`
	Stops         []Stop   `json:"stops,omitempty"`
	ReturnMinutes float64  `json:"return_minutes,omitempty"`
	Skipped       int      `json:"skipped,omitempty"`
}

// Optimize visits the nearest unvisited stop from the current position
// until none remain. With a base, the tour starts there and a closing leg
// back to base is charged; otherwise the first geolocated task is the start.
// Tasks without a valid location are skipped.
func Optimize(ts []tasks.Task, base *geo.Point, speedKmh float64) Result {
	type candidate struct {
		id    string
		point geo.Point
	}

	remaining := make([]candidate, 0, len(ts))
	for _, t := range ts {
		p, ok := t.Location()
		if !ok {
			continue
		}
		remaining = append(remaining, candidate{id: t.ID, point: p})
	}

	res := Result{
		Order:   []string{},
		Skipped: len(ts) - len(remaining),
	}
	if len(remaining) == 0 {
		return res
	}

	var current geo.Point
	var total float64
	if base != nil {
		current = *base
	} else {
		first := remaining[0]
		remaining = remaining[1:]
		res.Order = append(res.Order, first.id)
		res.Stops = append(res.Stops, Stop{TaskID: first.id, Point: first.point})
		current = first.point
	}

	for len(remaining) > 0 {
		best := 0
		bestKm := geo.DistanceKm(current, remaining[0].point)
		for i := 1; i < len(remaining); i++ {
			// Strict comparison keeps the first candidate on ties.
			if d := geo.DistanceKm(current, remaining[i].point); d < bestKm {
				best, bestKm = i, d
			}
		}

		next := remaining[best]
		legMinutes := geo.TravelMinutes(bestKm, speedKmh)
		total += legMinutes
		res.Order = append(res.Order, next.id)
		res.Stops = append(res.Stops, Stop{
			TaskID:     next.id,
			Point:      next.point,
			LegKm:      round2(bestKm),
			LegMinutes: round2(legMinutes),
		})
		current = next.point
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	if base != nil {
		back := geo.TravelMinutesBetween(current, *base, speedKmh)
		res.ReturnMinutes = round2(back)
		total += back
	}

	res.TravelMinutes = round2(total)
	return res
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

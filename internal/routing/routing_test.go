package routing

import (
	"math"
	"sort"
	"testing"

	"github.com/marcus/opsdesk/internal/geo"
	"github.com/marcus/opsdesk/internal/tasks"
	"pgregory.net/rapid"
)

func at(id string, lat, lon float64) tasks.Task {
	return tasks.Task{ID: id, Status: tasks.StatusPending, Latitude: &lat, Longitude: &lon}
}

func TestOptimize_StraightLine(t *testing.T) {
	ts := []tasks.Task{at("a", 0, 0), at("c", 0, 3), at("b", 0, 1)}

	got := Optimize(ts, nil, 30)

	wantOrder := []string{"a", "b", "c"}
	if len(got.Order) != len(wantOrder) {
		t.Fatalf("Order = %v, want %v", got.Order, wantOrder)
	}
	for i := range wantOrder {
		if got.Order[i] != wantOrder[i] {
			t.Fatalf("Order = %v, want %v", got.Order, wantOrder)
		}
	}

	leg1 := geo.DistanceKm(geo.Point{Lat: 0, Lon: 0}, geo.Point{Lat: 0, Lon: 1}) / 30 * 60
	leg2 := geo.DistanceKm(geo.Point{Lat: 0, Lon: 1}, geo.Point{Lat: 0, Lon: 3}) / 30 * 60
	want := math.Round((leg1+leg2)*100) / 100
	if got.TravelMinutes != want {
		t.Errorf("TravelMinutes = %v, want %v", got.TravelMinutes, want)
	}
	if got.ReturnMinutes != 0 {
		t.Errorf("ReturnMinutes = %v, want 0 without base", got.ReturnMinutes)
	}
}

func TestOptimize_Empty(t *testing.T) {
	noLocation := tasks.Task{ID: "x"}
	got := Optimize([]tasks.Task{noLocation}, nil, 30)
	if len(got.Order) != 0 || got.TravelMinutes != 0 {
		t.Errorf("Optimize() = %+v, want empty", got)
	}
	if got.Order == nil {
		t.Error("Order should be an empty slice, not nil")
	}
	if got.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", got.Skipped)
	}
}

func TestOptimize_SingleTask(t *testing.T) {
	task := at("a", 0, 1)

	if got := Optimize([]tasks.Task{task}, nil, 30); got.TravelMinutes != 0 {
		t.Errorf("without base TravelMinutes = %v, want 0", got.TravelMinutes)
	}

	base := geo.Point{Lat: 0, Lon: 0}
	oneWay := geo.TravelMinutesBetween(base, geo.Point{Lat: 0, Lon: 1}, 30)
	want := math.Round(2*oneWay*100) / 100
	if got := Optimize([]tasks.Task{task}, &base, 30); got.TravelMinutes != want {
		t.Errorf("with base TravelMinutes = %v, want %v", got.TravelMinutes, want)
	}
}

func TestOptimize_TieKeepsInputOrder(t *testing.T) {
	base := geo.Point{Lat: 0, Lon: 0}
	ts := []tasks.Task{at("east", 0, 1), at("west", 0, -1)}
	got := Optimize(ts, &base, 30)
	if got.Order[0] != "east" {
		t.Errorf("Order = %v, want east first", got.Order)
	}
}

func TestOptimize_ZeroSpeed(t *testing.T) {
	got := Optimize([]tasks.Task{at("a", 0, 0), at("b", 1, 1)}, nil, 0)
	if got.TravelMinutes != 0 {
		t.Errorf("TravelMinutes = %v, want 0 at zero speed", got.TravelMinutes)
	}
}

func TestOptimize_Permutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 25).Draw(t, "n")
		var ts []tasks.Task
		var located []string
		for i := 0; i < n; i++ {
			id := string(rune('a' + i))
			if rapid.Bool().Draw(t, "located") {
				lat := rapid.Float64Range(-60, 60).Draw(t, "lat")
				lon := rapid.Float64Range(-170, 170).Draw(t, "lon")
				ts = append(ts, at(id, lat, lon))
				located = append(located, id)
			} else {
				ts = append(ts, tasks.Task{ID: id})
			}
		}

		var base *geo.Point
		if rapid.Bool().Draw(t, "hasBase") {
			base = &geo.Point{Lat: rapid.Float64Range(-60, 60).Draw(t, "baseLat"), Lon: 0}
		}

		got := Optimize(ts, base, 30)
		if got.TravelMinutes < 0 {
			t.Fatalf("negative travel time %v", got.TravelMinutes)
		}

		order := append([]string(nil), got.Order...)
		sort.Strings(order)
		sort.Strings(located)
		if len(order) != len(located) {
			t.Fatalf("order %v is not a permutation of %v", got.Order, located)
		}
		for i := range order {
			if order[i] != located[i] {
				t.Fatalf("order %v is not a permutation of %v", got.Order, located)
			}
		}
	})
}

package engine

import (
	"context"
	"time"

	"github.com/marcus/opsdesk/internal/audit"
	"github.com/marcus/opsdesk/internal/geo"
	"github.com/marcus/opsdesk/internal/routing"
	"github.com/marcus/opsdesk/internal/store"
	"github.com/marcus/opsdesk/internal/tasks"
)

// RouteRequest selects the day to plan. SpeedKmh 0 uses the configured
// speed.
type RouteRequest struct {
	Day      time.Time
	Base     *geo.Point
	SpeedKmh float64
}

// RoutePlan is an advisory visit order for one day.
type RoutePlan struct {
	Day string `json:"day"`
	routing.Result
}

// RouteApplied reports which ids received a route order.
type RouteApplied struct {
	Day     string   `json:"day"`
	Applied []string `json:"applied"`
	Ignored []string `json:"ignored,omitempty"`
}

// dayTasks returns the user's pending tasks anchored on the day.
func (s *Service) dayTasks(ctx context.Context, userID string, start, end time.Time) ([]tasks.Task, error) {
	return s.pending(ctx, tasks.Query{UserID: userID, AnchorFrom: &start, AnchorTo: &end})
}

// OptimizeRoute orders the day's geolocated pending tasks. Nothing is
// persisted.
func (s *Service) OptimizeRoute(ctx context.Context, userID string, req RouteRequest) (RoutePlan, error) {
	o, err := s.begin("optimize_route", userID)
	if err != nil {
		return RoutePlan{}, err
	}
	start, end, err := s.day(req.Day)
	if err != nil {
		return RoutePlan{}, o.fail(err)
	}
	if req.Base != nil && !req.Base.Valid() {
		return RoutePlan{}, o.fail(invalid("base", "coordinates out of range"))
	}
	speed := req.SpeedKmh
	switch {
	case speed < 0:
		return RoutePlan{}, o.fail(invalid("speed_kmh", "must be positive"))
	case speed == 0:
		speed = s.opts.SpeedKmh
	}

	ts, err := s.dayTasks(ctx, userID, start, end)
	if err != nil {
		return RoutePlan{}, o.fail(err)
	}
	plan := RoutePlan{
		Day:    formatDay(start, s.opts.Location),
		Result: routing.Optimize(ts, req.Base, speed),
	}
	o.done().Str("day", plan.Day).Int("stops", len(plan.Order)).Float64("travel_minutes", plan.TravelMinutes).Msg("route optimized")
	return plan, nil
}

// ApplyRoute stores an approved visit order. Ids that are not pending
// tasks of the user on that day, and repeats, are ignored. Accepted ids
// receive route orders 0..n-1 in the given sequence, and every other task
// of the day loses its order, within one transaction.
func (s *Service) ApplyRoute(ctx context.Context, userID string, day time.Time, ids []string) (RouteApplied, error) {
	o, err := s.begin("apply_route", userID)
	if err != nil {
		return RouteApplied{}, err
	}
	start, end, err := s.day(day)
	if err != nil {
		return RouteApplied{}, o.fail(err)
	}

	ts, err := s.dayTasks(ctx, userID, start, end)
	if err != nil {
		return RouteApplied{}, o.fail(err)
	}
	onDay := make(map[string]bool, len(ts))
	for _, t := range ts {
		onDay[t.ID] = true
	}

	res := RouteApplied{Day: formatDay(start, s.opts.Location), Applied: []string{}}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !onDay[id] || seen[id] {
			res.Ignored = append(res.Ignored, id)
			continue
		}
		seen[id] = true
		res.Applied = append(res.Applied, id)
	}

	err = s.store.WithinTx(ctx, func(w store.Writer) error {
		for _, t := range ts {
			if seen[t.ID] || t.RouteOrder == nil {
				continue
			}
			if err := w.ClearRouteOrder(ctx, userID, t.ID); err != nil {
				return err
			}
		}
		for i, id := range res.Applied {
			if err := w.SetRouteOrder(ctx, userID, id, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RouteApplied{}, o.fail(err)
	}
	o.audit(ctx, audit.Event{
		Type:     audit.EventRouteApplied,
		TaskIDs:  res.Applied,
		Count:    len(res.Applied),
		Metadata: map[string]string{"day": res.Day},
	})
	o.done().Str("day", res.Day).Int("applied", len(res.Applied)).Int("ignored", len(res.Ignored)).Msg("route applied")
	return res, nil
}

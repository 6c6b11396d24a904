package engine

import (
	"context"
	"time"

	"github.com/marcus/opsdesk/internal/audit"
	"github.com/marcus/opsdesk/internal/forecast"
	"github.com/marcus/opsdesk/internal/store"
	"github.com/marcus/opsdesk/internal/tasks"
	"github.com/marcus/opsdesk/internal/workforce"
)

// RedistributionRequest bounds the tasks considered for balancing.
// Zero capacity or max suggestions use the configured values.
type RedistributionRequest struct {
	From            time.Time
	To              time.Time
	CapacityMinutes int
	MaxSuggestions  int
}

// RedistributionPlan holds per-assignee loads and the proposed moves.
type RedistributionPlan struct {
	From            string                 `json:"from"`
	To              string                 `json:"to"`
	CapacityMinutes int                    `json:"capacity_minutes"`
	Loads           []workforce.Load       `json:"loads"`
	Suggestions     []workforce.Suggestion `json:"suggestions"`
}

// RiskRequest bounds the forecast. Zero capacity uses the configured value.
type RiskRequest struct {
	From            time.Time
	To              time.Time
	CapacityMinutes int
}

// SuggestRedistribution proposes moving pending work anchored in the range
// from over-capacity assignees to ones with room. It never writes.
func (s *Service) SuggestRedistribution(ctx context.Context, userID string, req RedistributionRequest) (RedistributionPlan, error) {
	o, err := s.begin("suggest_redistribution", userID)
	if err != nil {
		return RedistributionPlan{}, err
	}
	start, end, err := s.dayRange(req.From, req.To)
	if err != nil {
		return RedistributionPlan{}, o.fail(err)
	}
	capacity, err := positiveOr("capacity_minutes", req.CapacityMinutes, s.opts.AssigneeCapacityMinutes)
	if err != nil {
		return RedistributionPlan{}, o.fail(err)
	}
	limit, err := positiveOr("max_suggestions", req.MaxSuggestions, s.opts.MaxSuggestions)
	if err != nil {
		return RedistributionPlan{}, o.fail(err)
	}

	ts, err := s.pending(ctx, tasks.Query{UserID: userID, AnchorFrom: &start, AnchorTo: &end})
	if err != nil {
		return RedistributionPlan{}, o.fail(err)
	}
	model, err := s.durationModel(ctx, userID)
	if err != nil {
		return RedistributionPlan{}, o.fail(err)
	}
	assignees, err := s.store.Assignees(ctx, userID)
	if err != nil {
		return RedistributionPlan{}, o.fail(err)
	}
	roster := append(append([]string(nil), assignees...), s.opts.Team...)

	plan := RedistributionPlan{
		From:            formatDay(start, s.opts.Location),
		To:              formatDay(end.AddDate(0, 0, -1), s.opts.Location),
		CapacityMinutes: capacity,
		Loads:           workforce.Loads(ts, model.Estimate, capacity, roster),
		Suggestions:     workforce.Suggest(ts, model.Estimate, capacity, limit, roster),
	}
	o.done().Int("tasks", len(ts)).Int("suggestions", len(plan.Suggestions)).Msg("redistribution planned")
	return plan, nil
}

// ApplyReassignment moves one pending task to a new assignee after a human
// approved the move. workforce.Unassigned or "" clears the assignee.
func (s *Service) ApplyReassignment(ctx context.Context, userID, taskID, to string) (tasks.Task, error) {
	o, err := s.begin("apply_reassignment", userID)
	if err != nil {
		return tasks.Task{}, err
	}
	if to == workforce.Unassigned {
		to = ""
	}
	t, err := s.getTask(ctx, userID, taskID)
	if err != nil {
		return tasks.Task{}, o.fail(err)
	}
	if !t.IsPending() {
		return tasks.Task{}, o.fail(invalid("task_id", "task %s is %s", taskID, t.Status))
	}

	err = s.store.WithinTx(ctx, func(w store.Writer) error {
		return w.SetAssignee(ctx, userID, taskID, to)
	})
	if err != nil {
		return tasks.Task{}, o.fail(err)
	}
	from := t.AssignedTo
	t.AssignedTo = to
	o.audit(ctx, audit.Event{
		Type:    audit.EventTaskReassigned,
		TaskIDs: []string{taskID},
		Before:  from,
		After:   to,
		Count:   1,
	})
	o.done().Str("task", taskID).Str("from", from).Str("to", to).Msg("reassigned")
	return t, nil
}

// ForecastDelayRisk lists the days in range whose expected pending work,
// grouped by due date, exceeds daily capacity.
func (s *Service) ForecastDelayRisk(ctx context.Context, userID string, req RiskRequest) ([]forecast.DayRisk, error) {
	o, err := s.begin("forecast_delay_risk", userID)
	if err != nil {
		return nil, err
	}
	start, end, err := s.dayRange(req.From, req.To)
	if err != nil {
		return nil, o.fail(err)
	}
	capacity, err := positiveOr("capacity_minutes", req.CapacityMinutes, s.opts.DailyCapacityMinutes)
	if err != nil {
		return nil, o.fail(err)
	}

	last := end.Add(-time.Nanosecond)
	ts, err := s.pending(ctx, tasks.Query{UserID: userID, DueFrom: &start, DueTo: &last})
	if err != nil {
		return nil, o.fail(err)
	}
	model, err := s.durationModel(ctx, userID)
	if err != nil {
		return nil, o.fail(err)
	}

	risks := forecast.Forecast(ts, model, start, last, capacity, s.opts.Location)
	o.done().Int("tasks", len(ts)).Int("days_at_risk", len(risks)).Msg("forecast computed")
	return risks, nil
}

// positiveOr returns v when set, def when v is zero, and a FieldError when
// v is negative.
func positiveOr(field string, v, def int) (int, error) {
	switch {
	case v < 0:
		return 0, invalid(field, "must be positive, got %d", v)
	case v == 0:
		return def, nil
	default:
		return v, nil
	}
}

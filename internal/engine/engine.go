// Package engine exposes the user-scoped operations of the scheduling
// engine. Every entry point takes an already authenticated user id, filters
// all reads and writes by it and composes the planners in tasks, routing,
// workforce, forecast, ranking and opportunity.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcus/opsdesk/internal/audit"
	"github.com/marcus/opsdesk/internal/logging"
	"github.com/marcus/opsdesk/internal/store"
	"github.com/marcus/opsdesk/internal/tasks"
)

// Reader is the read side of the task store.
type Reader interface {
	FindTasks(ctx context.Context, q tasks.Query) ([]tasks.Task, error)
	FindReminders(ctx context.Context, userID string, from, to time.Time) ([]tasks.Reminder, error)
	FindClients(ctx context.Context, userID string, ids []string) (map[string]tasks.Client, error)
	Assignees(ctx context.Context, userID string) ([]string, error)
	UserIDs(ctx context.Context) ([]string, error)
}

// UnitOfWork runs a group of writes atomically.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(w store.Writer) error) error
}

// Store is everything the engine needs from persistence.
type Store interface {
	Reader
	UnitOfWork
}

// Auditor records committed writes.
type Auditor interface {
	Record(ctx context.Context, e audit.Event) error
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) error { return nil }

// Service runs engine operations against a store.
type Service struct {
	store   Store
	opts    Options
	scorer  *tasks.Scorer
	log     *logging.Logger
	auditor Auditor
	now     func() time.Time
}

// New creates a service. Zero-valued options fall back to DefaultOptions.
func New(st Store, opts Options) *Service {
	def := DefaultOptions()
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if opts.Ranking.Location == nil {
		opts.Ranking.Location = opts.Location
	}
	if opts.WorkEnd <= opts.WorkStart {
		opts.WorkStart, opts.WorkEnd = def.WorkStart, def.WorkEnd
	}
	setPositive(&opts.DailyCapacityMinutes, def.DailyCapacityMinutes)
	setPositive(&opts.AssigneeCapacityMinutes, def.AssigneeCapacityMinutes)
	setPositive(&opts.MaxSuggestions, def.MaxSuggestions)
	setPositive(&opts.FallbackMinutes, def.FallbackMinutes)
	setPositive(&opts.JobMinutes, def.JobMinutes)
	setPositive(&opts.MaxRangeDays, def.MaxRangeDays)
	if opts.SpeedKmh <= 0 {
		opts.SpeedKmh = def.SpeedKmh
	}
	if opts.RevenuePerJob <= 0 {
		opts.RevenuePerJob = def.RevenuePerJob
	}

	return &Service{
		store:   st,
		opts:    opts,
		scorer:  tasks.DefaultScorer(),
		log:     logging.Component("engine"),
		auditor: nopAuditor{},
		now:     time.Now,
	}
}

// SetLogger replaces the service logger.
func (s *Service) SetLogger(l *logging.Logger) {
	s.log = l
}

// SetAuditor records every committed write to a. A nil a disables auditing.
func (s *Service) SetAuditor(a Auditor) {
	if a == nil {
		a = nopAuditor{}
	}
	s.auditor = a
}

// Options returns the effective defaults.
func (s *Service) Options() Options {
	return s.opts
}

// clock returns the current instant in the workday zone, so calendar
// boundaries such as the ISO week follow the configured location.
func (s *Service) clock() time.Time {
	return s.now().In(s.opts.Location)
}

// op tracks one invocation for logging.
type op struct {
	s       *Service
	name    string
	user    string
	started time.Time
}

func (s *Service) begin(name, userID string) (op, error) {
	o := op{s: s, name: name, user: userID, started: time.Now()}
	if userID == "" {
		return o, o.fail(ErrUnauthorized)
	}
	s.log.Debug().Str("op", name).Str("user", userID).Msg("start")
	return o, nil
}

func (o op) done() *zerolog.Event {
	return o.s.log.Info().Str("op", o.name).Str("user", o.user).Dur("elapsed", time.Since(o.started))
}

// fail logs err at a level matching its class and maps store errors onto
// the engine's sentinels.
func (o op) fail(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ErrNotFound):
		o.s.log.Warn().Str("op", o.name).Str("user", o.user).Msg("not found")
		return ErrNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrUnauthorized):
		o.s.log.Warn().Err(err).Str("op", o.name).Str("user", o.user).Msg("rejected")
		return err
	default:
		o.s.log.Error().Err(err).Str("op", o.name).Str("user", o.user).Msg("failed")
		return fmt.Errorf("%s: %w", o.name, err)
	}
}

// audit records a committed write. The write already happened, so a
// failure is only logged.
func (o op) audit(ctx context.Context, e audit.Event) {
	e.User = o.user
	if err := o.s.auditor.Record(ctx, e); err != nil {
		o.s.log.Warn().Err(err).Str("op", o.name).Str("user", o.user).Msg("audit record failed")
	}
}

// dayRange resolves calendar days from and to (inclusive) into the
// half-open instant range [start, end) in the workday zone.
func (s *Service) dayRange(from, to time.Time) (time.Time, time.Time, error) {
	if from.IsZero() {
		return time.Time{}, time.Time{}, invalid("from", "required")
	}
	if to.IsZero() {
		return time.Time{}, time.Time{}, invalid("to", "required")
	}
	start := tasks.StartOfDay(from, s.opts.Location)
	last := tasks.StartOfDay(to, s.opts.Location)
	if last.Before(start) {
		return time.Time{}, time.Time{}, invalid("to", "must not be before from")
	}
	end := last.AddDate(0, 0, 1)
	if days := int(math.Round(end.Sub(start).Hours() / 24)); days > s.opts.MaxRangeDays {
		return time.Time{}, time.Time{}, invalid("to", "range spans %d days, limit is %d", days, s.opts.MaxRangeDays)
	}
	return start, end, nil
}

func (s *Service) day(t time.Time) (time.Time, time.Time, error) {
	if t.IsZero() {
		return time.Time{}, time.Time{}, invalid("day", "required")
	}
	start := tasks.StartOfDay(t, s.opts.Location)
	return start, start.AddDate(0, 0, 1), nil
}

func (s *Service) getTask(ctx context.Context, userID, taskID string) (tasks.Task, error) {
	if taskID == "" {
		return tasks.Task{}, invalid("task_id", "required")
	}
	found, err := s.store.FindTasks(ctx, tasks.Query{UserID: userID, IDs: []string{taskID}})
	if err != nil {
		return tasks.Task{}, err
	}
	for _, t := range found {
		if t.ID == taskID && t.UserID == userID {
			return t, nil
		}
	}
	return tasks.Task{}, ErrNotFound
}

func (s *Service) pending(ctx context.Context, q tasks.Query) ([]tasks.Task, error) {
	q.Statuses = []tasks.Status{tasks.StatusPending}
	return s.store.FindTasks(ctx, q)
}

// durationModel builds type averages from the user's completed tasks.
func (s *Service) durationModel(ctx context.Context, userID string) (*tasks.DurationModel, error) {
	history, err := s.store.FindTasks(ctx, tasks.Query{
		UserID:   userID,
		Statuses: []tasks.Status{tasks.StatusDone},
	})
	if err != nil {
		return nil, err
	}
	return tasks.NewDurationModel(history, s.opts.FallbackMinutes), nil
}

// DayLayout is the calendar-day format used at the boundary.
const DayLayout = "2006-01-02"

// ParseDay parses a calendar day (YYYY-MM-DD) in loc, or an RFC 3339
// instant. An empty string yields the zero time so that range validation
// reports the field as required.
func ParseDay(field, s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(DayLayout, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, invalid(field, "%q is not a YYYY-MM-DD date or RFC 3339 instant", s)
}

func formatDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

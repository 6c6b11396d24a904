// Package scheduler runs recurring jobs on a cron expression or a fixed
// interval, optionally restricted to a time-of-day window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marcus/opsdesk/internal/config"
	"github.com/marcus/opsdesk/internal/logging"
)

var (
	ErrNoSchedule     = errors.New("no cron expression or interval configured")
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, err := config.ParseClock(s)
	if err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Window is a daily [Start, End) range. End before Start wraps midnight.
type Window struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	now := local.Hour()*60 + local.Minute()
	start, end := w.Start.Minutes(), w.End.Minutes()

	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// Scheduler runs its jobs on each tick that falls inside the window.
type Scheduler struct {
	mu       sync.Mutex
	cronExpr string
	cronSpec cron.Schedule
	interval time.Duration
	window   *Window
	jobs     []Job
	log      *logging.Logger

	running bool
	cron    *cron.Cron
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{log: logging.Component("scheduler")}
}

// NewFromConfig builds a scheduler from the schedule section.
func NewFromConfig(cfg *config.ScheduleConfig) (*Scheduler, error) {
	s := New()

	switch {
	case cfg.Cron != "" && cfg.Interval != "":
		return nil, config.ErrCronAndInterval
	case cfg.Cron != "":
		if err := s.SetCron(cfg.Cron); err != nil {
			return nil, err
		}
	case cfg.Interval != "":
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("parse interval %q: %w", cfg.Interval, err)
		}
		if err := s.SetInterval(d); err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoSchedule
	}

	if cfg.Window != nil {
		if err := s.SetWindow(cfg.Window); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetCron sets a standard five-field cron expression (descriptors such as
// @hourly are accepted).
func (s *Scheduler) SetCron(expr string) error {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("parse cron %q: %w", expr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cronExpr = expr
	s.cronSpec = spec
	s.interval = 0
	return nil
}

// SetInterval sets a fixed run interval.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %v", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
	s.cronExpr = ""
	s.cronSpec = nil
	return nil
}

// SetWindow restricts runs to a daily window. A nil config clears it.
func (s *Scheduler) SetWindow(cfg *config.WindowConfig) error {
	if cfg == nil {
		s.mu.Lock()
		s.window = nil
		s.mu.Unlock()
		return nil
	}

	start, err := ParseTimeOfDay(cfg.Start)
	if err != nil {
		return fmt.Errorf("window start: %w", err)
	}
	end, err := ParseTimeOfDay(cfg.End)
	if err != nil {
		return fmt.Errorf("window end: %w", err)
	}
	loc := time.Local
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("window timezone: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = &Window{Start: start, End: end, Location: loc}
	return nil
}

// AddJob registers a job. Jobs run sequentially in registration order.
func (s *Scheduler) AddJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// IsInWindow reports whether t is inside the window, true without one.
func (s *Scheduler) IsInWindow(t time.Time) bool {
	s.mu.Lock()
	w := s.window
	s.mu.Unlock()
	if w == nil {
		return true
	}
	return w.Contains(t)
}

// IsRunning reports whether Start has been called without Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled tick, zero when not running.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	if s.cronSpec != nil {
		return s.cronSpec.Next(time.Now())
	}
	return s.nextRun
}

// Start begins ticking in the background. Cancelling ctx stops the loop
// and is passed to every job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.cronSpec == nil && s.interval <= 0 {
		return ErrNoSchedule
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	if s.cronSpec != nil {
		s.cron = cron.New()
		s.cron.Schedule(s.cronSpec, cron.FuncJob(func() { s.tick(runCtx) }))
		s.cron.Start()
		go func(done chan struct{}) {
			defer close(done)
			<-runCtx.Done()
		}(s.done)
		s.log.Info().Str("cron", s.cronExpr).Msg("scheduler started")
		return nil
	}

	s.nextRun = time.Now().Add(s.interval)
	go s.loop(runCtx, s.interval, s.done)
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.nextRun = time.Now().Add(interval)
			s.mu.Unlock()
			s.tick(ctx)
		}
	}
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	cancel, done, c := s.cancel, s.done, s.cron
	s.cron = nil
	s.mu.Unlock()

	cancel()
	if c != nil {
		<-c.Stop().Done()
	}
	<-done
	s.log.Info().Msg("scheduler stopped")
	return nil
}

// RunNow runs every job once, ignoring the window.
func (s *Scheduler) RunNow(ctx context.Context) error {
	var errs []error
	for _, job := range s.snapshotJobs() {
		if err := job(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := time.Now()
	if !s.IsInWindow(now) {
		s.log.Debug().Time("at", now).Msg("tick outside window, skipped")
		return
	}
	for i, job := range s.snapshotJobs() {
		if err := job(ctx); err != nil {
			s.log.Err(err).Int("job", i).Msg("scheduled job failed")
		}
	}
}

func (s *Scheduler) snapshotJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Job(nil), s.jobs...)
}

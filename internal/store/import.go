package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marcus/opsdesk/internal/tasks"
)

// Fixture is the YAML layout accepted by Import.
type Fixture struct {
	User      string            `yaml:"user"`
	Clients   []FixtureClient   `yaml:"clients"`
	Tasks     []FixtureTask     `yaml:"tasks"`
	Reminders []FixtureReminder `yaml:"reminders"`
}

// FixtureClient is a client entry.
type FixtureClient struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	TotalSpent float64  `yaml:"total_spent"`
	Score      *float64 `yaml:"score"`
}

// FixtureTask is a task entry. Instants are RFC 3339.
type FixtureTask struct {
	ID               string     `yaml:"id"`
	Title            string     `yaml:"title"`
	Type             string     `yaml:"type"`
	Source           string     `yaml:"source"`
	Client           string     `yaml:"client"`
	Status           string     `yaml:"status"`
	Priority         string     `yaml:"priority"`
	Due              *time.Time `yaml:"due"`
	Start            *time.Time `yaml:"start"`
	End              *time.Time `yaml:"end"`
	EstimatedMinutes *int       `yaml:"estimated_minutes"`
	Blocking         bool       `yaml:"blocking"`
	SLAMinutes       *int       `yaml:"sla_minutes"`
	AssignedTo       string     `yaml:"assigned_to"`
	Lat              *float64   `yaml:"lat"`
	Lon              *float64   `yaml:"lon"`
	CreatedAt        *time.Time `yaml:"created_at"`
	CompletedAt      *time.Time `yaml:"completed_at"`
}

// FixtureReminder is a reminder entry.
type FixtureReminder struct {
	ID     string    `yaml:"id"`
	Title  string    `yaml:"title"`
	Start  time.Time `yaml:"start"`
	End    time.Time `yaml:"end"`
	Status string    `yaml:"status"`
}

// ImportResult counts imported rows.
type ImportResult struct {
	Clients   int `json:"clients"`
	Tasks     int `json:"tasks"`
	Reminders int `json:"reminders"`
}

// Import reads a YAML fixture and inserts it in one transaction. userID
// overrides the fixture's user when set.
func (s *Store) Import(ctx context.Context, r io.Reader, userID string) (ImportResult, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return ImportResult{}, fmt.Errorf("decode fixture: %w", err)
	}
	if userID != "" {
		fx.User = userID
	}
	if fx.User == "" {
		return ImportResult{}, fmt.Errorf("fixture has no user")
	}

	var res ImportResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportResult{}, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range fx.Clients {
		client := tasks.Client{ID: c.ID, UserID: fx.User, Name: c.Name, TotalSpent: c.TotalSpent, Score: c.Score}
		if _, err := s.upsertClient(ctx, tx, client); err != nil {
			return ImportResult{}, err
		}
		res.Clients++
	}

	for i, ft := range fx.Tasks {
		t, err := ft.toTask(fx.User)
		if err != nil {
			return ImportResult{}, fmt.Errorf("task %d: %w", i+1, err)
		}
		if _, err := s.insertTask(ctx, tx, t); err != nil {
			return ImportResult{}, fmt.Errorf("task %d: %w", i+1, err)
		}
		res.Tasks++
	}

	for i, fr := range fx.Reminders {
		status := tasks.ReminderStatus(fr.Status)
		switch status {
		case "":
			status = tasks.ReminderPending
		case tasks.ReminderPending, tasks.ReminderSent, tasks.ReminderDismissed:
		default:
			return ImportResult{}, fmt.Errorf("reminder %d: unknown status %q", i+1, fr.Status)
		}
		rem := tasks.Reminder{ID: fr.ID, UserID: fx.User, Title: fr.Title, Start: fr.Start, End: fr.End, Status: status}
		if _, err := s.insertReminder(ctx, tx, rem); err != nil {
			return ImportResult{}, fmt.Errorf("reminder %d: %w", i+1, err)
		}
		res.Reminders++
	}

	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("commit import: %w", err)
	}
	return res, nil
}

func (ft FixtureTask) toTask(userID string) (tasks.Task, error) {
	status := tasks.StatusPending
	if ft.Status != "" {
		st, err := tasks.ParseStatus(ft.Status)
		if err != nil {
			return tasks.Task{}, err
		}
		status = st
	}
	priority, err := tasks.ParsePriority(ft.Priority)
	if err != nil {
		return tasks.Task{}, err
	}

	t := tasks.Task{
		ID:               ft.ID,
		UserID:           userID,
		Title:            ft.Title,
		Type:             ft.Type,
		SourceModule:     ft.Source,
		ClientID:         ft.Client,
		Status:           status,
		CompletedAt:      ft.CompletedAt,
		DueDate:          ft.Due,
		StartAt:          ft.Start,
		EndAt:            ft.End,
		EstimatedMinutes: ft.EstimatedMinutes,
		Priority:         priority,
		IsBlocking:       ft.Blocking,
		SLAMinutes:       ft.SLAMinutes,
		AssignedTo:       ft.AssignedTo,
		Latitude:         ft.Lat,
		Longitude:        ft.Lon,
	}
	if ft.CreatedAt != nil {
		t.CreatedAt = *ft.CreatedAt
	}
	return t, nil
}

// Package tasks defines the work-item model shared by the scheduling engine
// and the priority scoring applied to it.
package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marcus/opsdesk/internal/geo"
)

// Status is a task lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDone      Status = "DONE"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusDone:
		return StatusDone, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown status %q (valid: PENDING, DONE, CANCELLED)", s)
	}
}

// Priority is the user-set priority level.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority parses a priority name case-insensitively. An empty string
// yields PriorityLow.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case "", PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("unknown priority %q (valid: LOW, MEDIUM, HIGH)", s)
	}
}

// Rank orders priorities LOW < MEDIUM < HIGH.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// SourceSale marks tasks created from the sales module.
const SourceSale = "SALE"

// ErrCompletedAtMismatch is returned when completed_at disagrees with status.
var ErrCompletedAtMismatch = errors.New("completed_at must be set if and only if status is DONE")

// Task is a unit of work owned by one user: a to-do, a reminder-backed job
// or a field visit.
type Task struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Title        string `json:"title"`
	Type         string `json:"type,omitempty"`
	SourceModule string `json:"source_module,omitempty"`
	ClientID     string `json:"client_id,omitempty"`

	Status      Status     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	DueDate          *time.Time `json:"due_date,omitempty"`
	StartAt          *time.Time `json:"start_at,omitempty"`
	EndAt            *time.Time `json:"end_at,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty"`

	Priority          Priority   `json:"priority"`
	PriorityScore     *float64   `json:"priority_score,omitempty"`
	ScoreCalculatedAt *time.Time `json:"score_calculated_at,omitempty"`
	IsBlocking        bool       `json:"is_blocking"`
	SLAMinutes        *int       `json:"sla_minutes,omitempty"`

	// AssignedTo is empty for the unassigned bucket.
	AssignedTo string   `json:"assigned_to,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	RouteOrder *int     `json:"route_order,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPending reports whether the task is still open.
func (t Task) IsPending() bool {
	return t.Status == StatusPending
}

// Location returns the task coordinates when both are present and finite.
func (t Task) Location() (geo.Point, bool) {
	if t.Latitude == nil || t.Longitude == nil {
		return geo.Point{}, false
	}
	p := geo.Point{Lat: *t.Latitude, Lon: *t.Longitude}
	if !p.Valid() {
		return geo.Point{}, false
	}
	return p, true
}

// Anchor is the instant that places a task on a calendar day: StartAt when
// scheduled, otherwise DueDate.
func (t Task) Anchor() *time.Time {
	if t.StartAt != nil {
		return t.StartAt
	}
	return t.DueDate
}

// Scheduled reports whether the task occupies a concrete time slot.
func (t Task) Scheduled() bool {
	return t.StartAt != nil && t.EndAt != nil && t.EndAt.After(*t.StartAt)
}

// Validate checks the model invariants.
func (t Task) Validate() error {
	if t.UserID == "" {
		return errors.New("task has no owner")
	}
	if _, err := ParseStatus(string(t.Status)); err != nil {
		return err
	}
	if (t.Status == StatusDone) != (t.CompletedAt != nil) {
		return ErrCompletedAtMismatch
	}
	if t.EstimatedMinutes != nil && *t.EstimatedMinutes <= 0 {
		return fmt.Errorf("estimated_minutes must be positive, got %d", *t.EstimatedMinutes)
	}
	if t.SLAMinutes != nil && *t.SLAMinutes <= 0 {
		return fmt.Errorf("sla_minutes must be positive, got %d", *t.SLAMinutes)
	}
	if (t.Latitude == nil) != (t.Longitude == nil) {
		return errors.New("latitude and longitude must be set together")
	}
	return nil
}

// ReminderStatus is a reminder lifecycle state.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "PENDING"
	ReminderSent      ReminderStatus = "SENT"
	ReminderDismissed ReminderStatus = "DISMISSED"
)

// Reminder is a calendar block owned by a user.
type Reminder struct {
	ID     string         `json:"id"`
	UserID string         `json:"user_id"`
	Title  string         `json:"title"`
	Start  time.Time      `json:"start"`
	End    time.Time      `json:"end"`
	Status ReminderStatus `json:"status"`
}

// Busy reports whether the reminder blocks time on the calendar.
func (r Reminder) Busy() bool {
	return r.Status != ReminderDismissed && r.End.After(r.Start)
}

// Client is the subset of a customer record used for ranking.
type Client struct {
	ID         string   `json:"id"`
	UserID     string   `json:"user_id"`
	Name       string   `json:"name"`
	TotalSpent float64  `json:"total_spent"`
	Score      *float64 `json:"score,omitempty"`
}

// Query selects tasks from a store. Zero-valued fields do not filter.
type Query struct {
	UserID   string
	IDs      []string
	Statuses []Status

	// DueFrom and DueTo bound the due date inclusively; tasks without a due
	// date never match when either bound is set.
	DueFrom *time.Time
	DueTo   *time.Time

	// AnchorFrom and AnchorTo bound Anchor() as [AnchorFrom, AnchorTo).
	AnchorFrom *time.Time
	AnchorTo   *time.Time

	// OverlapFrom and OverlapTo select scheduled tasks whose [StartAt, EndAt)
	// overlaps [OverlapFrom, OverlapTo).
	OverlapFrom *time.Time
	OverlapTo   *time.Time
}

// Match reports whether t satisfies q. Stores that cannot push a filter
// down can use it directly.
func (q Query) Match(t Task) bool {
	if q.UserID != "" && t.UserID != q.UserID {
		return false
	}
	if len(q.IDs) > 0 && !containsString(q.IDs, t.ID) {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, t.Status) {
		return false
	}
	if q.DueFrom != nil || q.DueTo != nil {
		if t.DueDate == nil {
			return false
		}
		if q.DueFrom != nil && t.DueDate.Before(*q.DueFrom) {
			return false
		}
		if q.DueTo != nil && t.DueDate.After(*q.DueTo) {
			return false
		}
	}
	if q.AnchorFrom != nil || q.AnchorTo != nil {
		anchor := t.Anchor()
		if anchor == nil {
			return false
		}
		if q.AnchorFrom != nil && anchor.Before(*q.AnchorFrom) {
			return false
		}
		if q.AnchorTo != nil && !anchor.Before(*q.AnchorTo) {
			return false
		}
	}
	if q.OverlapFrom != nil || q.OverlapTo != nil {
		if !t.Scheduled() {
			return false
		}
		if q.OverlapTo != nil && !t.StartAt.Before(*q.OverlapTo) {
			return false
		}
		if q.OverlapFrom != nil && !t.EndAt.After(*q.OverlapFrom) {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

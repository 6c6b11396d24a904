// Package store persists tasks, reminders and clients in SQLite. Queries
// are built with squirrel and every read and write is scoped to one user.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marcus/opsdesk/internal/db"
	"github.com/marcus/opsdesk/internal/tasks"
)

// ErrNotFound is returned when a row does not exist for the user.
var ErrNotFound = errors.New("not found")

// timeLayout is fixed-width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var taskColumns = []string{
	"id", "user_id", "title", "type", "source_module", "client_id",
	"status", "completed_at", "due_date", "start_at", "end_at", "estimated_minutes",
	"priority", "priority_score", "score_calculated_at", "is_blocking", "sla_minutes",
	"assigned_to", "latitude", "longitude", "route_order", "created_at", "updated_at",
}

// Writer is the set of mutations the engine performs. Store implements it
// directly and inside WithinTx.
type Writer interface {
	SetPriorityScore(ctx context.Context, userID, taskID string, score float64, at time.Time) error
	SetRouteOrder(ctx context.Context, userID, taskID string, order int) error
	ClearRouteOrder(ctx context.Context, userID, taskID string) error
	SetAssignee(ctx context.Context, userID, taskID, assignee string) error
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store reads and writes opsdesk data.
type Store struct {
	db    *sql.DB
	sb    sq.StatementBuilderType
	now   func() time.Time
	newID func() string
}

// New creates a store over an open database.
func New(database *db.DB) *Store {
	return NewFromSQL(database.SQL())
}

// NewFromSQL creates a store over a raw connection whose schema is already
// migrated.
func NewFromSQL(sqlDB *sql.DB) *Store {
	return &Store{
		db:    sqlDB,
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// FindTasks returns the tasks matching q ordered by due date (undated
// last), creation time and id. q.UserID is required.
func (s *Store) FindTasks(ctx context.Context, q tasks.Query) ([]tasks.Task, error) {
	if q.UserID == "" {
		return nil, errors.New("find tasks: user id required")
	}

	qb := s.sb.Select(taskColumns...).From("tasks").Where(sq.Eq{"user_id": q.UserID})
	if len(q.IDs) > 0 {
		qb = qb.Where(sq.Eq{"id": q.IDs})
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		qb = qb.Where(sq.Eq{"status": statuses})
	}
	if q.DueFrom != nil || q.DueTo != nil {
		qb = qb.Where(sq.NotEq{"due_date": nil})
		if q.DueFrom != nil {
			qb = qb.Where(sq.GtOrEq{"due_date": formatTime(*q.DueFrom)})
		}
		if q.DueTo != nil {
			qb = qb.Where(sq.LtOrEq{"due_date": formatTime(*q.DueTo)})
		}
	}
	if q.AnchorFrom != nil || q.AnchorTo != nil {
		qb = qb.Where("COALESCE(start_at, due_date) IS NOT NULL")
		if q.AnchorFrom != nil {
			qb = qb.Where("COALESCE(start_at, due_date) >= ?", formatTime(*q.AnchorFrom))
		}
		if q.AnchorTo != nil {
			qb = qb.Where("COALESCE(start_at, due_date) < ?", formatTime(*q.AnchorTo))
		}
	}
	if q.OverlapFrom != nil || q.OverlapTo != nil {
		qb = qb.Where("start_at IS NOT NULL AND end_at IS NOT NULL AND end_at > start_at")
		if q.OverlapTo != nil {
			qb = qb.Where(sq.Lt{"start_at": formatTime(*q.OverlapTo)})
		}
		if q.OverlapFrom != nil {
			qb = qb.Where(sq.Gt{"end_at": formatTime(*q.OverlapFrom)})
		}
	}
	qb = qb.OrderBy("due_date IS NULL", "due_date", "created_at", "id")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build task query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []tasks.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// GetTask returns one of the user's tasks.
func (s *Store) GetTask(ctx context.Context, userID, taskID string) (tasks.Task, error) {
	found, err := s.FindTasks(ctx, tasks.Query{UserID: userID, IDs: []string{taskID}})
	if err != nil {
		return tasks.Task{}, err
	}
	if len(found) == 0 {
		return tasks.Task{}, ErrNotFound
	}
	return found[0], nil
}

// FindReminders returns the user's reminders overlapping [from, to).
func (s *Store) FindReminders(ctx context.Context, userID string, from, to time.Time) ([]tasks.Reminder, error) {
	query, args, err := s.sb.
		Select("id", "user_id", "title", "start_at", "end_at", "status").
		From("reminders").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Lt{"start_at": formatTime(to)}).
		Where(sq.Gt{"end_at": formatTime(from)}).
		OrderBy("start_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build reminder query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []tasks.Reminder
	for rows.Next() {
		var r tasks.Reminder
		var start, end, status string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &start, &end, &status); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		if r.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		if r.End, err = parseTime(end); err != nil {
			return nil, err
		}
		r.Status = tasks.ReminderStatus(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}

// FindClients returns the user's clients keyed by id. An empty ids list
// returns all of them.
func (s *Store) FindClients(ctx context.Context, userID string, ids []string) (map[string]tasks.Client, error) {
	qb := s.sb.Select("id", "user_id", "name", "total_spent", "score").
		From("clients").
		Where(sq.Eq{"user_id": userID})
	if len(ids) > 0 {
		qb = qb.Where(sq.Eq{"id": ids})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build client query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]tasks.Client)
	for rows.Next() {
		var c tasks.Client
		var score sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.TotalSpent, &score); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		if score.Valid {
			c.Score = &score.Float64
		}
		out[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return out, nil
}

// Assignees returns the distinct assignees across all of the user's tasks,
// including "" when any task is unassigned.
func (s *Store) Assignees(ctx context.Context, userID string) ([]string, error) {
	query, args, err := s.sb.Select("DISTINCT assigned_to").
		From("tasks").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("assigned_to").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build assignee query: %w", err)
	}
	return s.queryStrings(ctx, query, args)
}

// UserIDs returns every user that owns at least one task.
func (s *Store) UserIDs(ctx context.Context) ([]string, error) {
	query, args, err := s.sb.Select("DISTINCT user_id").From("tasks").OrderBy("user_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}
	return s.queryStrings(ctx, query, args)
}

func (s *Store) queryStrings(ctx context.Context, query string, args []any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CreateTask validates and inserts a task, assigning an id and timestamps
// when they are missing.
func (s *Store) CreateTask(ctx context.Context, t tasks.Task) (tasks.Task, error) {
	return s.insertTask(ctx, s.db, t)
}

// CreateReminder inserts a reminder.
func (s *Store) CreateReminder(ctx context.Context, r tasks.Reminder) (tasks.Reminder, error) {
	return s.insertReminder(ctx, s.db, r)
}

// CreateClient inserts or replaces a client.
func (s *Store) CreateClient(ctx context.Context, c tasks.Client) (tasks.Client, error) {
	return s.upsertClient(ctx, s.db, c)
}

// SetPriorityScore implements Writer outside a transaction.
func (s *Store) SetPriorityScore(ctx context.Context, userID, taskID string, score float64, at time.Time) error {
	return txWriter{exec: s.db, sb: s.sb, now: s.now}.SetPriorityScore(ctx, userID, taskID, score, at)
}

// SetRouteOrder implements Writer outside a transaction.
func (s *Store) SetRouteOrder(ctx context.Context, userID, taskID string, order int) error {
	return txWriter{exec: s.db, sb: s.sb, now: s.now}.SetRouteOrder(ctx, userID, taskID, order)
}

// ClearRouteOrder implements Writer outside a transaction.
func (s *Store) ClearRouteOrder(ctx context.Context, userID, taskID string) error {
	return txWriter{exec: s.db, sb: s.sb, now: s.now}.ClearRouteOrder(ctx, userID, taskID)
}

// SetAssignee implements Writer outside a transaction.
func (s *Store) SetAssignee(ctx context.Context, userID, taskID, assignee string) error {
	return txWriter{exec: s.db, sb: s.sb, now: s.now}.SetAssignee(ctx, userID, taskID, assignee)
}

// WithinTx runs fn in a transaction. It commits when fn returns nil and
// rolls back otherwise, so either every write in fn is visible or none is.
func (s *Store) WithinTx(ctx context.Context, fn func(w Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txWriter{exec: tx, sb: s.sb, now: s.now}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txWriter struct {
	exec execQuerier
	sb   sq.StatementBuilderType
	now  func() time.Time
}

func (w txWriter) SetPriorityScore(ctx context.Context, userID, taskID string, score float64, at time.Time) error {
	return w.update(ctx, userID, taskID, map[string]any{
		"priority_score":      score,
		"score_calculated_at": formatTime(at),
	})
}

func (w txWriter) SetRouteOrder(ctx context.Context, userID, taskID string, order int) error {
	return w.update(ctx, userID, taskID, map[string]any{"route_order": order})
}

func (w txWriter) ClearRouteOrder(ctx context.Context, userID, taskID string) error {
	return w.update(ctx, userID, taskID, map[string]any{"route_order": nil})
}

func (w txWriter) SetAssignee(ctx context.Context, userID, taskID, assignee string) error {
	return w.update(ctx, userID, taskID, map[string]any{"assigned_to": assignee})
}

func (w txWriter) update(ctx context.Context, userID, taskID string, set map[string]any) error {
	set["updated_at"] = formatTime(w.now())
	query, args, err := w.sb.Update("tasks").
		SetMap(set).
		Where(sq.Eq{"id": taskID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := w.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

func (s *Store) insertTask(ctx context.Context, exec execQuerier, t tasks.Task) (tasks.Task, error) {
	if t.Priority == "" {
		t.Priority = tasks.PriorityLow
	}
	if t.Status == "" {
		t.Status = tasks.StatusPending
	}
	if err := t.Validate(); err != nil {
		return tasks.Task{}, fmt.Errorf("task %q: %w", t.Title, err)
	}
	if t.ID == "" {
		t.ID = s.newID()
	}
	now := s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	query, args, err := s.sb.Insert("tasks").Columns(taskColumns...).Values(
		t.ID, t.UserID, t.Title, t.Type, t.SourceModule, t.ClientID,
		string(t.Status), nullTime(t.CompletedAt), nullTime(t.DueDate), nullTime(t.StartAt), nullTime(t.EndAt), t.EstimatedMinutes,
		string(t.Priority), t.PriorityScore, nullTime(t.ScoreCalculatedAt), t.IsBlocking, t.SLAMinutes,
		t.AssignedTo, t.Latitude, t.Longitude, t.RouteOrder, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	).ToSql()
	if err != nil {
		return tasks.Task{}, fmt.Errorf("build task insert: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return tasks.Task{}, fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return t, nil
}

func (s *Store) insertReminder(ctx context.Context, exec execQuerier, r tasks.Reminder) (tasks.Reminder, error) {
	if r.UserID == "" {
		return tasks.Reminder{}, errors.New("reminder has no owner")
	}
	if !r.End.After(r.Start) {
		return tasks.Reminder{}, fmt.Errorf("reminder %q ends before it starts", r.Title)
	}
	if r.Status == "" {
		r.Status = tasks.ReminderPending
	}
	if r.ID == "" {
		r.ID = s.newID()
	}

	query, args, err := s.sb.Insert("reminders").
		Columns("id", "user_id", "title", "start_at", "end_at", "status").
		Values(r.ID, r.UserID, r.Title, formatTime(r.Start), formatTime(r.End), string(r.Status)).
		ToSql()
	if err != nil {
		return tasks.Reminder{}, fmt.Errorf("build reminder insert: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return tasks.Reminder{}, fmt.Errorf("insert reminder %s: %w", r.ID, err)
	}
	return r, nil
}

func (s *Store) upsertClient(ctx context.Context, exec execQuerier, c tasks.Client) (tasks.Client, error) {
	if c.UserID == "" {
		return tasks.Client{}, errors.New("client has no owner")
	}
	if c.ID == "" {
		c.ID = s.newID()
	}

	query, args, err := s.sb.Insert("clients").
		Options("OR REPLACE").
		Columns("id", "user_id", "name", "total_spent", "score").
		Values(c.ID, c.UserID, c.Name, c.TotalSpent, c.Score).
		ToSql()
	if err != nil {
		return tasks.Client{}, fmt.Errorf("build client insert: %w", err)
	}
	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return tasks.Client{}, fmt.Errorf("insert client %s: %w", c.ID, err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (tasks.Task, error) {
	var (
		t                                    tasks.Task
		status, priority, created, updated   string
		completed, due, start, end, scoredAt sql.NullString
		estimate, sla, routeOrder            sql.NullInt64
		score, lat, lon                      sql.NullFloat64
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Type, &t.SourceModule, &t.ClientID,
		&status, &completed, &due, &start, &end, &estimate,
		&priority, &score, &scoredAt, &t.IsBlocking, &sla,
		&t.AssignedTo, &lat, &lon, &routeOrder, &created, &updated,
	)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("scan task: %w", err)
	}

	t.Status = tasks.Status(status)
	t.Priority = tasks.Priority(priority)
	t.EstimatedMinutes = nullInt(estimate)
	t.SLAMinutes = nullInt(sla)
	t.RouteOrder = nullInt(routeOrder)
	t.PriorityScore = nullFloat(score)
	t.Latitude = nullFloat(lat)
	t.Longitude = nullFloat(lon)

	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{completed, &t.CompletedAt},
		{due, &t.DueDate},
		{start, &t.StartAt},
		{end, &t.EndAt},
		{scoredAt, &t.ScoreCalculatedAt},
	} {
		if !f.src.Valid {
			continue
		}
		v, err := parseTime(f.src.String)
		if err != nil {
			return tasks.Task{}, err
		}
		*f.dst = &v
	}

	if t.CreatedAt, err = parseTime(created); err != nil {
		return tasks.Task{}, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return tasks.Task{}, err
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

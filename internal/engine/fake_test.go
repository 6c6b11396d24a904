package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/marcus/opsdesk/internal/audit"
	"github.com/marcus/opsdesk/internal/store"
	"github.com/marcus/opsdesk/internal/tasks"
)

// fakeStore is an in-memory Store. Writes inside WithinTx go to a copy
// that replaces the live data only when fn succeeds.
type fakeStore struct {
	mu        sync.Mutex
	tasks     []tasks.Task
	reminders []tasks.Reminder
	clients   map[string]tasks.Client

	findErr   error
	failWrite string
	txCount   int
}

func (f *fakeStore) FindTasks(_ context.Context, q tasks.Query) ([]tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []tasks.Task
	for _, t := range f.tasks {
		if q.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) FindReminders(_ context.Context, userID string, from, to time.Time) ([]tasks.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tasks.Reminder
	for _, r := range f.reminders {
		if r.UserID == userID && r.Start.Before(to) && r.End.After(from) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) FindClients(_ context.Context, userID string, ids []string) (map[string]tasks.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]tasks.Client)
	for _, id := range ids {
		if c, ok := f.clients[id]; ok && c.UserID == userID {
			out[id] = c
		}
	}
	return out, nil
}

func (f *fakeStore) Assignees(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, t := range f.tasks {
		if t.UserID == userID && !seen[t.AssignedTo] {
			seen[t.AssignedTo] = true
			out = append(out, t.AssignedTo)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) UserIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, t := range f.tasks {
		if !seen[t.UserID] {
			seen[t.UserID] = true
			out = append(out, t.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(w store.Writer) error) error {
	f.mu.Lock()
	work := append([]tasks.Task(nil), f.tasks...)
	failWrite := f.failWrite
	f.mu.Unlock()

	if err := fn(&fakeWriter{tasks: work, failWrite: failWrite}); err != nil {
		return err
	}

	f.mu.Lock()
	f.tasks = work
	f.txCount++
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) task(id string) tasks.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			return t
		}
	}
	return tasks.Task{}
}

type fakeWriter struct {
	tasks     []tasks.Task
	failWrite string
}

var errWriteFailed = errors.New("write failed")

func (w *fakeWriter) find(userID, taskID string) (*tasks.Task, error) {
	if taskID == w.failWrite {
		return nil, errWriteFailed
	}
	for i := range w.tasks {
		if w.tasks[i].ID == taskID && w.tasks[i].UserID == userID {
			return &w.tasks[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (w *fakeWriter) SetPriorityScore(_ context.Context, userID, taskID string, score float64, at time.Time) error {
	t, err := w.find(userID, taskID)
	if err != nil {
		return err
	}
	t.PriorityScore = &score
	t.ScoreCalculatedAt = &at
	return nil
}

func (w *fakeWriter) SetRouteOrder(_ context.Context, userID, taskID string, order int) error {
	t, err := w.find(userID, taskID)
	if err != nil {
		return err
	}
	t.RouteOrder = &order
	return nil
}

func (w *fakeWriter) ClearRouteOrder(_ context.Context, userID, taskID string) error {
	t, err := w.find(userID, taskID)
	if err != nil {
		return err
	}
	t.RouteOrder = nil
	return nil
}

func (w *fakeWriter) SetAssignee(_ context.Context, userID, taskID, assignee string) error {
	t, err := w.find(userID, taskID)
	if err != nil {
		return err
	}
	t.AssignedTo = assignee
	return nil
}

// fakeAuditor collects audit events in memory.
type fakeAuditor struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (a *fakeAuditor) Record(_ context.Context, e audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, e)
	return nil
}

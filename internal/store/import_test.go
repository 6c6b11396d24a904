package store

import (
	"context"
	"strings"
	"testing"

	"github.com/marcus/opsdesk/internal/tasks"
)

const fixtureYAML = `
user: tech-1
clients:
  - id: acme
    name: Acme Corp
    total_spent: 25000
tasks:
  - id: t1
    title: Replace valve
    type: repair
    client: acme
    priority: high
    due: 2026-03-10T15:00:00Z
    estimated_minutes: 90
    blocking: true
    sla_minutes: 240
    lat: 48.85
    lon: 2.35
  - title: Quote follow-up
    source: SALE
  - title: Old install
    type: install
    status: done
    created_at: 2026-03-01T08:00:00Z
    completed_at: 2026-03-01T10:00:00Z
reminders:
  - title: Team sync
    start: 2026-03-10T09:00:00Z
    end: 2026-03-10T09:30:00Z
`

func TestImport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Import(ctx, strings.NewReader(fixtureYAML), "")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Clients != 1 || res.Tasks != 3 || res.Reminders != 1 {
		t.Errorf("Import() = %+v", res)
	}

	got, err := s.GetTask(ctx, "tech-1", "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Priority != tasks.PriorityHigh || got.ClientID != "acme" || !got.IsBlocking {
		t.Errorf("imported task = %+v", got)
	}
	if _, ok := got.Location(); !ok {
		t.Error("imported task lost its location")
	}

	done, err := s.FindTasks(ctx, tasks.Query{UserID: "tech-1", Statuses: []tasks.Status{tasks.StatusDone}})
	if err != nil || len(done) != 1 {
		t.Fatalf("done tasks = %v, %v", done, err)
	}
	if took := done[0].CompletedAt.Sub(done[0].CreatedAt); took.Hours() != 2 {
		t.Errorf("history duration = %v, want 2h", took)
	}
}

func TestImport_UserOverride(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Import(ctx, strings.NewReader(fixtureYAML), "tech-2"); err != nil {
		t.Fatalf("Import: %v", err)
	}
	users, _ := s.UserIDs(ctx)
	if len(users) != 1 || users[0] != "tech-2" {
		t.Errorf("UserIDs() = %v, want [tech-2]", users)
	}
}

func TestImport_AtomicOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := `
user: tech-1
tasks:
  - title: fine
  - title: broken
    status: done
`
	if _, err := s.Import(ctx, strings.NewReader(bad), ""); err == nil {
		t.Fatal("expected error for DONE task without completed_at")
	}
	all, err := s.FindTasks(ctx, tasks.Query{UserID: "tech-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("partial import left %d tasks", len(all))
	}
}

func TestImport_Rejects(t *testing.T) {
	s := newTestStore(t)
	tests := []struct {
		name string
		yaml string
	}{
		{"no user", "tasks:\n  - title: x\n"},
		{"unknown field", "user: u\ntasks:\n  - title: x\n    colour: red\n"},
		{"bad priority", "user: u\ntasks:\n  - title: x\n    priority: urgent\n"},
		{"bad reminder status", "user: u\nreminders:\n  - title: r\n    start: 2026-03-10T09:00:00Z\n    end: 2026-03-10T10:00:00Z\n    status: snoozed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Import(context.Background(), strings.NewReader(tt.yaml), ""); err == nil {
				t.Error("expected error")
			}
		})
	}
}

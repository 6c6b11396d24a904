package tasks

import (
	"errors"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestTaskValidate(t *testing.T) {
	done := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{"valid pending", Task{UserID: "u1", Status: StatusPending}, false},
		{"valid done", Task{UserID: "u1", Status: StatusDone, CompletedAt: &done}, false},
		{"no owner", Task{Status: StatusPending}, true},
		{"bad status", Task{UserID: "u1", Status: "OPEN"}, true},
		{"done without completed_at", Task{UserID: "u1", Status: StatusDone}, true},
		{"pending with completed_at", Task{UserID: "u1", Status: StatusPending, CompletedAt: &done}, true},
		{"zero estimate", Task{UserID: "u1", Status: StatusPending, EstimatedMinutes: intPtr(0)}, true},
		{"lat without lon", Task{UserID: "u1", Status: StatusPending, Latitude: floatPtr(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	err := Task{UserID: "u1", Status: StatusDone}.Validate()
	if !errors.Is(err, ErrCompletedAtMismatch) {
		t.Errorf("expected ErrCompletedAtMismatch, got %v", err)
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityLow, false},
		{"high", PriorityHigh, false},
		{" Medium ", PriorityMedium, false},
		{"urgent", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePriority(%q) = %q, %v", tt.in, got, err)
		}
	}
	if !(PriorityHigh.Rank() > PriorityMedium.Rank() && PriorityMedium.Rank() > PriorityLow.Rank()) {
		t.Error("priority ranks out of order")
	}
}

func TestTaskLocation(t *testing.T) {
	task := Task{Latitude: floatPtr(48.85), Longitude: floatPtr(2.35)}
	if p, ok := task.Location(); !ok || p.Lat != 48.85 {
		t.Errorf("Location() = %v, %v", p, ok)
	}
	task.Latitude = floatPtr(120)
	if _, ok := task.Location(); ok {
		t.Error("out-of-range latitude should not be a location")
	}
	if _, ok := (Task{}).Location(); ok {
		t.Error("missing coordinates should not be a location")
	}
}

func TestQueryMatch(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	next := day.AddDate(0, 0, 1)
	start := day.Add(10 * time.Hour)
	end := start.Add(time.Hour)
	due := day.Add(15 * time.Hour)

	scheduled := Task{ID: "a", UserID: "u1", Status: StatusPending, StartAt: &start, EndAt: &end, DueDate: timePtr(next.Add(time.Hour))}
	dueOnly := Task{ID: "b", UserID: "u1", Status: StatusDone, DueDate: &due}
	backlog := Task{ID: "c", UserID: "u2", Status: StatusPending}

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"user", Query{UserID: "u1"}, []string{"a", "b"}},
		{"status", Query{Statuses: []Status{StatusPending}}, []string{"a", "c"}},
		{"ids", Query{IDs: []string{"b", "c"}}, []string{"b", "c"}},
		{"due inclusive", Query{DueFrom: &day, DueTo: &due}, []string{"b"}},
		{"anchor day", Query{AnchorFrom: &day, AnchorTo: &next}, []string{"a", "b"}},
		{"overlap", Query{OverlapFrom: &day, OverlapTo: &next}, []string{"a"}},
		{"overlap excludes touching", Query{OverlapFrom: &end, OverlapTo: &next}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, task := range []Task{scheduled, dueOnly, backlog} {
				if tt.query.Match(task) {
					got = append(got, task.ID)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("matched %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("matched %v, want %v", got, tt.want)
				}
			}
		})
	}
}

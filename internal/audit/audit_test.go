package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := New(tmpDir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	if logger.sessionID == "" {
		t.Error("expected session ID to be set")
	}
	if logger.file == nil {
		t.Error("expected audit file to be open")
	}

	info, err := os.Stat(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Error("expected audit dir")
	}
}

func TestRecord(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := New(tmpDir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	ctx := context.Background()
	if err := logger.Record(ctx, Event{Type: EventTaskReassigned, User: "tech-1", TaskIDs: []string{"t1"}, Before: "amy", After: "ben"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := logger.Record(ctx, Event{Type: EventRouteApplied, User: "tech-1", TaskIDs: []string{"t2", "t1"}, Metadata: map[string]string{"day": "2026-03-10"}}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	files, err := Files(tmpDir)
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one audit file, got %v", files)
	}

	events, err := ReadEvents(files[0])
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	first := events[0]
	if first.Type != EventTaskReassigned || first.Before != "amy" || first.After != "ben" {
		t.Errorf("unexpected first event: %+v", first)
	}
	if first.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if first.SessionID != logger.sessionID || events[1].SessionID != logger.sessionID {
		t.Error("expected session ID on every event")
	}
	if first.RequestID == "" || first.RequestID == events[1].RequestID {
		t.Errorf("expected distinct request IDs, got %q and %q", first.RequestID, events[1].RequestID)
	}
	if events[1].Metadata["day"] != "2026-03-10" {
		t.Errorf("metadata lost: %+v", events[1])
	}
}

func TestRecord_RotatesDaily(t *testing.T) {
	tmpDir := t.TempDir()

	day := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	logger, err := New(tmpDir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()
	logger.now = func() time.Time { return day }

	ctx := context.Background()
	if err := logger.Record(ctx, Event{Type: EventScoreRecalculated, User: "u", Count: 3}); err != nil {
		t.Fatal(err)
	}
	day = day.Add(2 * time.Minute)
	if err := logger.Record(ctx, Event{Type: EventScoreRecalculated, User: "u", Count: 4}); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"audit-2026-03-10.jsonl", "audit-2026-03-11.jsonl"} {
		events, err := ReadEvents(filepath.Join(tmpDir, name))
		if err != nil {
			t.Fatalf("ReadEvents(%s): %v", name, err)
		}
		if len(events) != 1 {
			t.Errorf("%s: expected 1 event, got %d", name, len(events))
		}
	}
}

func TestReadEvents_SkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit-2026-03-10.jsonl")
	data := `{"type":"route_applied","user":"u1"}
not json

{"type":"task_reassigned","user":"u1"}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
}

func TestFiles_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"audit-2026-03-11.jsonl", "audit-2026-03-10.jsonl", "notes.txt", "opsdesk-2026-03-10.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}

	files, err := Files(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "audit-2026-03-10.jsonl" {
		t.Errorf("Files() = %v", files)
	}
}

func TestClose_Twice(t *testing.T) {
	logger, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

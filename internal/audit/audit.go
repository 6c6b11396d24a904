// Package audit keeps an append-only record of every change opsdesk writes
// to tasks. Events are stored as JSON lines, one file per day.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes audit events.
type EventType string

const (
	EventScoreRecalculated EventType = "score_recalculated"
	EventRouteApplied      EventType = "route_applied"
	EventTaskReassigned    EventType = "task_reassigned"
	EventFixtureImported   EventType = "fixture_imported"
)

const (
	filePrefix = "audit-"
	fileSuffix = ".jsonl"
	dateLayout = "2006-01-02"
)

// Event is a single audit entry.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	User      string            `json:"user"`
	TaskIDs   []string          `json:"task_ids,omitempty"`
	Before    string            `json:"before,omitempty"`
	After     string            `json:"after,omitempty"`
	Count     int               `json:"count,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	RequestID string            `json:"request_id"`
	SessionID string            `json:"session_id"`
}

// Logger appends events to the current day's file in its directory.
type Logger struct {
	dir       string
	file      *os.File
	day       string
	mu        sync.Mutex
	sessionID string
	now       func() time.Time
}

// DefaultDir returns the default audit directory.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "opsdesk", "audit")
}

// New opens an audit logger writing to dir, DefaultDir when empty.
func New(dir string) (*Logger, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}

	l := &Logger{
		dir:       dir,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rotateLocked(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the audit directory.
func (l *Logger) Dir() string {
	return l.dir
}

// rotateLocked opens the file for the current day if it is not open yet.
func (l *Logger) rotateLocked() error {
	day := l.now().Format(dateLayout)
	if l.file != nil && l.day == day {
		return nil
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("closing audit file: %w", err)
		}
		l.file = nil
	}

	path := filepath.Join(l.dir, filePrefix+day+fileSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening audit file: %w", err)
	}
	l.file, l.day = f, day
	return nil
}

// Record appends e, filling in timestamp and ids, and syncs the file.
func (l *Logger) Record(_ context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateLocked(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	e.SessionID = l.sessionID
	if e.RequestID == "" {
		e.RequestID = uuid.NewString()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync audit file: %w", err)
	}
	return nil
}

// Close closes the current file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Files lists audit files in dir, oldest first.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading audit dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// ReadEvents reads the events of one audit file. Malformed lines are skipped.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading audit file: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("reading audit file: %w", err)
	}
	return events, nil
}

package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLog(t *testing.T, dir, day string, lines ...string) {
	t.Helper()
	path := filepath.Join(dir, "opsdesk-"+day+".log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestShowLogs_SpansFiles(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "2026-03-09", "old-1", "old-2", "old-3")
	writeLog(t, dir, "2026-03-10", "new-1", "new-2")

	var buf bytes.Buffer
	if err := showLogs(&buf, dir, 4); err != nil {
		t.Fatal(err)
	}
	got := strings.Fields(buf.String())
	want := []string{"old-2", "old-3", "new-1", "new-2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("lines = %v, want %v", got, want)
	}
}

func TestShowLogs_MissingDir(t *testing.T) {
	var buf bytes.Buffer
	if err := showLogs(&buf, filepath.Join(t.TempDir(), "nope"), 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No log files") {
		t.Errorf("got %q", buf.String())
	}
}

func TestPrintLogLine(t *testing.T) {
	var buf bytes.Buffer
	printLogLine(&buf, `{"level":"warn","time":"2026-03-10T08:00:00Z","component":"engine","op":"apply_route","user":"tech-1","error":"invalid day: required","message":"rejected"}`)
	out := buf.String()
	for _, want := range []string{"WRN", "[engine]", "apply_route", "rejected", "user=tech-1", "error=invalid day: required"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}

	buf.Reset()
	printLogLine(&buf, "not json")
	if buf.String() != "not json\n" {
		t.Errorf("raw line = %q", buf.String())
	}
}

func TestFormatLogLevel(t *testing.T) {
	tests := map[string]string{"debug": "DBG", "info": "INF", "warn": "WRN", "error": "ERR", "fatal": "FAT", "": "???", "x": "X"}
	for in, want := range tests {
		if got := formatLogLevel(in); got != want {
			t.Errorf("formatLogLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/ranking"
)

const testFixture = `
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
    lat: 48.85
    lon: 2.35
  - id: t2
    title: Quote follow-up
    source: SALE
  - id: t3
    title: Old install
    type: install
    status: done
    created_at: 2026-03-01T08:00:00Z
    completed_at: 2026-03-01T10:00:00Z
reminders:
  - title: Team sync
    start: 2026-03-10T09:00:00Z
    end: 2026-03-10T09:30:00Z
`

// setupWorkspace writes a config pointing at a fresh database and log dir
// and returns its path and the path of an importable fixture.
func setupWorkspace(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := fmt.Sprintf(`user: tech-1
database:
  path: %s
logging:
  path: %s
  level: debug
audit:
  path: %s
workday:
  timezone: UTC
`, filepath.Join(dir, "opsdesk.db"), filepath.Join(dir, "logs"), filepath.Join(dir, "audit"))

	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	fixturePath := filepath.Join(dir, "fixture.yaml")
	if err := os.WriteFile(fixturePath, []byte(testFixture), 0644); err != nil {
		t.Fatal(err)
	}
	return cfgPath, fixturePath
}

// executeCommand runs the root command and restores flag defaults after.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Value.Type() == "stringSlice" || f.Value.Type() == "stringArray" {
			return
		}
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestCommands_EndToEnd(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	cfgPath, fixturePath := setupWorkspace(t)

	out, err := executeCommand(t, "--config", cfgPath, "import", fixturePath)
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Imported 1 clients, 3 tasks, 1 reminders") {
		t.Errorf("import output = %q", out)
	}

	out, err = executeCommand(t, "--config", cfgPath, "--json", "next")
	if err != nil {
		t.Fatalf("next: %v\n%s", err, out)
	}
	var actions []ranking.Action
	if err := json.Unmarshal([]byte(out), &actions); err != nil {
		t.Fatalf("next output is not JSON: %v\n%s", err, out)
	}
	if len(actions) != 2 {
		t.Fatalf("next returned %d actions, want 2 pending tasks", len(actions))
	}
	ids := map[string]bool{actions[0].TaskID: true, actions[1].TaskID: true}
	if !ids["t1"] || !ids["t2"] {
		t.Errorf("next actions = %+v", actions)
	}

	out, err = executeCommand(t, "--config", cfgPath, "--json", "score", "t1", "--explain")
	if err != nil {
		t.Fatalf("score --explain: %v\n%s", err, out)
	}
	var explained engine.ScoreResult
	if err := json.Unmarshal([]byte(out), &explained); err != nil {
		t.Fatalf("score output is not JSON: %v\n%s", err, out)
	}
	if explained.TaskID != "t1" || explained.Score <= 0 {
		t.Errorf("explained = %+v", explained)
	}
	if got := explained.Breakdown.Total(); got != explained.Score {
		t.Errorf("breakdown total %v != score %v", got, explained.Score)
	}

	out, err = executeCommand(t, "--config", cfgPath, "--json", "route", "--day", "2026-03-10")
	if err != nil {
		t.Fatalf("route: %v\n%s", err, out)
	}
	var plan engine.RoutePlan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("route output is not JSON: %v\n%s", err, out)
	}
	if plan.Day != "2026-03-10" || strings.Join(plan.Order, ",") != "t1" {
		t.Errorf("route plan = %+v", plan)
	}

	out, err = executeCommand(t, "--config", cfgPath, "route", "--day", "2026-03-10", "--apply", "--yes")
	if err != nil {
		t.Fatalf("route --apply: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Stored route order for 1 tasks on 2026-03-10") {
		t.Errorf("route --apply output = %q", out)
	}

	out, err = executeCommand(t, "--config", cfgPath, "history")
	if err != nil {
		t.Fatalf("history: %v\n%s", err, out)
	}
	for _, want := range []string{"fixture_imported", "route_applied", "2026-03-10: t1"} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}

	out, err = executeCommand(t, "--config", cfgPath, "daemon", "--once")
	if err != nil {
		t.Fatalf("daemon --once: %v\n%s", err, out)
	}
	if !strings.Contains(out, "recalculated 3 task priorities") {
		t.Errorf("daemon output = %q", out)
	}

	out, err = executeCommand(t, "--config", cfgPath, "opportunity", "--from", "2026-03-10", "--to", "2026-03-10")
	if err != nil {
		t.Fatalf("opportunity: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Money opportunity") || !strings.Contains(out, "2026-03-10") {
		t.Errorf("opportunity output = %q", out)
	}
}

func TestCommands_ValidationErrors(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	cfgPath, _ := setupWorkspace(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"score needs id", []string{"score"}, "task id required"},
		{"score all with id", []string{"score", "--all", "t1"}, "mutually exclusive"},
		{"reversed range", []string{"risk", "--from", "2026-03-10", "--to", "2026-03-01"}, "must not be before from"},
		{"bad day", []string{"route", "--day", "someday"}, "invalid day"},
		{"bad base", []string{"route", "--base", "north"}, "--base"},
		{"negative capacity", []string{"balance", "--capacity", "-5"}, "capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", cfgPath}, tt.args...)
			out, err := executeCommand(t, args...)
			if err == nil {
				t.Fatalf("expected error, output:\n%s", out)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

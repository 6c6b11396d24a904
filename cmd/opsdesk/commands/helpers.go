package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/tasks"
	"github.com/marcus/opsdesk/internal/ui"
)

// isInteractive reports whether stdin and stdout are terminals. Override in tests.
var isInteractive = func() bool {
	return (isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())) &&
		(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
}

// runPicker shows the approval picker. Override in tests.
var runPicker = func(ctx context.Context, title string, items []ui.Item) ([]string, bool, error) {
	return ui.Run(ctx, title, items, os.Stdin, os.Stdout)
}

// parseDayInput accepts today, tomorrow and yesterday besides the
// YYYY-MM-DD and RFC 3339 forms engine.ParseDay understands.
func parseDayInput(field, input string, now time.Time, loc *time.Location) (time.Time, error) {
	value := strings.TrimSpace(strings.ToLower(input))
	today := tasks.StartOfDay(now, loc)

	switch value {
	case "":
		return time.Time{}, nil
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}
	return engine.ParseDay(field, strings.TrimSpace(input), loc)
}

// dayFlag reads a day flag, defaulting to today.
func dayFlag(cmd *cobra.Command, name string, now time.Time, loc *time.Location) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	day, err := parseDayInput(name, raw, now, loc)
	if err != nil {
		return time.Time{}, err
	}
	if day.IsZero() {
		day = tasks.StartOfDay(now, loc)
	}
	return day, nil
}

// rangeFlags reads --from and --to. From defaults to today and to defaults
// to six days after from.
func rangeFlags(cmd *cobra.Command, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	from, err := dayFlag(cmd, "from", now, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	raw, _ := cmd.Flags().GetString("to")
	to, err := parseDayInput("to", raw, now, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, 6)
	}
	return from, to, nil
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "First day: YYYY-MM-DD, today, tomorrow (default today)")
	cmd.Flags().String("to", "", "Last day, inclusive (default from + 6 days)")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// approve decides which proposals to apply. --yes accepts everything;
// otherwise the picker runs when a terminal is attached.
func approve(ctx context.Context, title string, items []ui.Item, yes bool) ([]string, error) {
	if yes {
		ids := make([]string, len(items))
		for i, it := range items {
			ids[i] = it.ID
		}
		return ids, nil
	}
	if !isInteractive() {
		return nil, fmt.Errorf("not a terminal: pass --yes to apply without confirmation")
	}
	ids, ok, err := runPicker(ctx, title, items)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return ids, nil
}

func formatMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	if m%60 == 0 {
		return fmt.Sprintf("%dh", m/60)
	}
	return fmt.Sprintf("%dh%02dm", m/60, m%60)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

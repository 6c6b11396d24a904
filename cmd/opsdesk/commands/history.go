package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/audit"
	"github.com/marcus/opsdesk/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show applied changes",
	Long: `Show the most recent entries of the audit trail: recalculated scores,
applied routes, reassignments and imports.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntP("tail", "n", 20, "Number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("tail")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	applyColorFlag(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	events, err := lastEvents(cfg.ExpandedAuditPath(), n)
	if err != nil {
		return err
	}

	if jsonOutput {
		if events == nil {
			events = []audit.Event{}
		}
		return printJSON(cmd.OutOrStdout(), events)
	}
	renderHistory(cmd.OutOrStdout(), ui.DefaultStyles(), events)
	return nil
}

// lastEvents returns up to n of the newest events, oldest first.
func lastEvents(dir string, n int) ([]audit.Event, error) {
	files, err := audit.Files(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var events []audit.Event
	for i := len(files) - 1; i >= 0 && len(events) < n; i-- {
		fileEvents, err := audit.ReadEvents(files[i])
		if err != nil {
			return nil, err
		}
		if remaining := n - len(events); len(fileEvents) > remaining {
			fileEvents = fileEvents[len(fileEvents)-remaining:]
		}
		events = append(fileEvents, events...)
	}
	return events, nil
}

func renderHistory(w io.Writer, s *ui.Styles, events []audit.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, s.Muted.Render("No changes recorded."))
		return
	}
	for _, e := range events {
		var detail string
		switch e.Type {
		case audit.EventTaskReassigned:
			detail = fmt.Sprintf("%s: %s -> %s", strings.Join(e.TaskIDs, ","), assigneeLabel(e.Before), assigneeLabel(e.After))
		case audit.EventRouteApplied:
			detail = fmt.Sprintf("%s: %s", e.Metadata["day"], strings.Join(e.TaskIDs, " > "))
		case audit.EventFixtureImported:
			detail = fmt.Sprintf("%d tasks from %s", e.Count, e.Metadata["file"])
		default:
			detail = fmt.Sprintf("%d tasks", e.Count)
		}
		fmt.Fprintf(w, "%s %-20s %-10s %s\n",
			s.Muted.Render(e.Timestamp.Local().Format("2006-01-02 15:04")),
			s.Value.Render(string(e.Type)),
			e.User,
			detail)
	}
}

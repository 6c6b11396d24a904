package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/ranking"
	"github.com/marcus/opsdesk/internal/ui"
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show what to work on next",
	Long: `Rank pending tasks by stored priority score, due-date urgency and the
revenue they bring, and show the top few. Shorter tasks win ties.`,
	RunE: runNext,
}

func init() {
	rootCmd.AddCommand(nextCmd)
}

func runNext(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	actions, err := e.svc.NextActions(cmd.Context(), e.user)
	if err != nil {
		return userError(err)
	}

	if e.json {
		if actions == nil {
			actions = []ranking.Action{}
		}
		return printJSON(e.out, actions)
	}
	renderNext(e.out, e.styles, actions, e.loc)
	return nil
}

func renderNext(w io.Writer, s *ui.Styles, actions []ranking.Action, loc *time.Location) {
	fmt.Fprintln(w, s.Title.Render("Next actions"))
	if len(actions) == 0 {
		fmt.Fprintln(w, s.Muted.Render("Nothing pending."))
		return
	}
	for i, a := range actions {
		due := "no due date"
		if a.DueDate != nil {
			due = "due " + a.DueDate.In(loc).Format("Mon Jan 2 15:04")
		}
		fmt.Fprintf(w, "  %d. %-36s %s %s\n",
			i+1,
			truncate(a.Title, 36),
			s.Highlight.Render(fmt.Sprintf("%6.0f", a.Value)),
			s.Muted.Render(fmt.Sprintf("%s, %s", due, formatMinutes(a.DurationMinutes))))
	}
}

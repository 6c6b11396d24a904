package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/ui"
)

var scoreCmd = &cobra.Command{
	Use:   "score [task-id]",
	Short: "Recalculate task priority scores",
	Long: `Recalculate and store the priority score of one task, or of all your
tasks with --all. Use --explain to show the score breakdown of one task
without storing it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().Bool("all", false, "Recalculate every task")
	scoreCmd.Flags().Bool("explain", false, "Show the score breakdown without saving")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	explain, _ := cmd.Flags().GetBool("explain")

	switch {
	case all && len(args) > 0:
		return fmt.Errorf("--all and a task id are mutually exclusive")
	case all && explain:
		return fmt.Errorf("--explain works on a single task")
	case !all && len(args) == 0:
		return fmt.Errorf("task id required (or pass --all)")
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	ctx := cmd.Context()
	var results []engine.ScoreResult
	switch {
	case all:
		results, err = e.svc.RecalculateAllPriorities(ctx, e.user)
	case explain:
		var r engine.ScoreResult
		r, err = e.svc.ExplainPriority(ctx, e.user, args[0])
		results = []engine.ScoreResult{r}
	default:
		var r engine.ScoreResult
		r, err = e.svc.RecalculatePriority(ctx, e.user, args[0])
		results = []engine.ScoreResult{r}
	}
	if err != nil {
		return userError(err)
	}

	if e.json {
		if all {
			return printJSON(e.out, results)
		}
		return printJSON(e.out, results[0])
	}
	renderScores(e.out, e.styles, results, explain)
	return nil
}

func renderScores(w io.Writer, s *ui.Styles, results []engine.ScoreResult, explain bool) {
	if len(results) == 0 {
		fmt.Fprintln(w, s.Muted.Render("No tasks to score."))
		return
	}

	if explain {
		r := results[0]
		b := r.Breakdown
		fmt.Fprintln(w, s.Title.Render(fmt.Sprintf("Priority of %s", r.Title)))
		rows := []struct {
			label string
			value float64
		}{
			{"Due date", b.DueDate},
			{"Priority", b.Priority},
			{"Blocking", b.Blocking},
			{"SLA", b.SLA},
			{"Pending", b.Pending},
		}
		for _, row := range rows {
			fmt.Fprintf(w, "  %s %s\n", s.Label.Render(fmt.Sprintf("%-10s", row.label)), s.Value.Render(fmt.Sprintf("%7.0f", row.value)))
		}
		fmt.Fprintf(w, "  %s %s\n", s.Label.Render(fmt.Sprintf("%-10s", "Total")), s.Highlight.Render(fmt.Sprintf("%7.0f", r.Score)))
		fmt.Fprintln(w, s.Muted.Render("  (not saved)"))
		return
	}

	fmt.Fprintln(w, s.Title.Render("Priority scores"))
	for _, r := range results {
		fmt.Fprintf(w, "  %s %-36s %s\n",
			s.Value.Render(fmt.Sprintf("%6.0f", r.Score)),
			truncate(r.Title, 36),
			s.Muted.Render(r.TaskID))
	}
	fmt.Fprintln(w, s.Muted.Render(fmt.Sprintf("%d updated", len(results))))
}

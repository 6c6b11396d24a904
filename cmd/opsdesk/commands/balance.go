package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/ui"
	"github.com/marcus/opsdesk/internal/workforce"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Suggest moving tasks between assignees",
	Long: `Compare each assignee's estimated load in a date range against their
capacity and suggest moving the lowest-priority tasks from overloaded
assignees to those with room. Use --apply to confirm and store moves.`,
	RunE: runBalance,
}

func init() {
	addRangeFlags(balanceCmd)
	balanceCmd.Flags().Int("capacity", 0, "Capacity per assignee in minutes (default from config)")
	balanceCmd.Flags().Int("max", 0, "Maximum number of suggestions (default from config)")
	balanceCmd.Flags().Bool("apply", false, "Store the accepted reassignments")
	balanceCmd.Flags().BoolP("yes", "y", false, "Apply without confirmation")
	rootCmd.AddCommand(balanceCmd)
}

// reassignment records the outcome of one applied suggestion.
type reassignment struct {
	TaskID string `json:"task_id"`
	To     string `json:"to"`
	Error  string `json:"error,omitempty"`
}

func runBalance(cmd *cobra.Command, args []string) error {
	apply, _ := cmd.Flags().GetBool("apply")
	yes, _ := cmd.Flags().GetBool("yes")
	capacity, _ := cmd.Flags().GetInt("capacity")
	maxSuggestions, _ := cmd.Flags().GetInt("max")

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	from, to, err := rangeFlags(cmd, time.Now(), e.loc)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	plan, err := e.svc.SuggestRedistribution(ctx, e.user, engine.RedistributionRequest{
		From:            from,
		To:              to,
		CapacityMinutes: capacity,
		MaxSuggestions:  maxSuggestions,
	})
	if err != nil {
		return userError(err)
	}

	if !apply || len(plan.Suggestions) == 0 {
		if e.json {
			return printJSON(e.out, plan)
		}
		renderBalance(e.out, e.styles, plan)
		return nil
	}

	if !e.json {
		renderBalance(e.out, e.styles, plan)
	}
	byTask := make(map[string]workforce.Suggestion, len(plan.Suggestions))
	items := make([]ui.Item, len(plan.Suggestions))
	for i, sg := range plan.Suggestions {
		byTask[sg.TaskID] = sg
		items[i] = ui.Item{
			ID:       sg.TaskID,
			Label:    fmt.Sprintf("%s: %s -> %s", truncate(sg.Title, 32), assigneeLabel(sg.From), assigneeLabel(sg.To)),
			Detail:   fmt.Sprintf("frees %s", formatMinutes(sg.BenefitMinutes)),
			Selected: true,
		}
	}
	ids, err := approve(ctx, fmt.Sprintf("Reassignments %s to %s", plan.From, plan.To), items, yes)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Nothing applied.")
		return nil
	}

	// Each move is its own write; a failed move does not undo the others.
	results := make([]reassignment, 0, len(ids))
	failed := 0
	for _, id := range ids {
		sg := byTask[id]
		r := reassignment{TaskID: id, To: sg.To}
		t, err := e.svc.ApplyReassignment(ctx, e.user, id, sg.To)
		if err != nil {
			r.Error = err.Error()
			failed++
		} else {
			r.To = t.AssignedTo
		}
		results = append(results, r)
	}

	if e.json {
		if err := printJSON(e.out, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(e.out, "  %s %s: %s\n", e.styles.StatusError.Render("x"), r.TaskID, r.Error)
				continue
			}
			fmt.Fprintf(e.out, "  %s %s -> %s\n", e.styles.StatusOK.Render("ok"), r.TaskID, assigneeLabel(r.To))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reassignments failed", failed, len(results))
	}
	return nil
}

func assigneeLabel(id string) string {
	if id == "" {
		return workforce.Unassigned
	}
	return id
}

func renderBalance(w io.Writer, s *ui.Styles, plan engine.RedistributionPlan) {
	fmt.Fprintln(w, s.Title.Render(fmt.Sprintf("Workload %s to %s", plan.From, plan.To)))

	for _, l := range plan.Loads {
		status := s.StatusOK
		if l.Minutes > l.Capacity {
			status = s.StatusError
		}
		fmt.Fprintf(w, "  %-20s %s %s\n",
			truncate(assigneeLabel(l.Assignee), 20),
			status.Render(fmt.Sprintf("%8s", formatMinutes(l.Minutes))),
			s.Muted.Render(fmt.Sprintf("of %s, %d tasks", formatMinutes(l.Capacity), l.Tasks)))
	}

	fmt.Fprintln(w)
	if len(plan.Suggestions) == 0 {
		fmt.Fprintln(w, s.Muted.Render("No moves suggested."))
		return
	}
	fmt.Fprintln(w, s.Subtitle.Render("Suggested moves"))
	for _, sg := range plan.Suggestions {
		fmt.Fprintf(w, "  %-32s %s -> %s %s\n",
			truncate(sg.Title, 32),
			assigneeLabel(sg.From),
			s.Highlight.Render(assigneeLabel(sg.To)),
			s.Muted.Render(fmt.Sprintf("(%s)", formatMinutes(sg.BenefitMinutes))))
	}
}

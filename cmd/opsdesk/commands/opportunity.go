package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/opportunity"
	"github.com/marcus/opsdesk/internal/ui"
)

var opportunityCmd = &cobra.Command{
	Use:     "opportunity",
	Aliases: []string{"free"},
	Short:   "Show free time that could be sold",
	Long: `Subtract scheduled tasks and reminders from the working hours of each
day in a date range and estimate how many more jobs, and how much
revenue, would fit into the free time.`,
	RunE: runOpportunity,
}

func init() {
	addRangeFlags(opportunityCmd)
	opportunityCmd.Flags().Int("job-minutes", 0, "Length of one job (default: average of your tasks)")
	opportunityCmd.Flags().Float64("revenue", 0, "Revenue per job (default from config)")
	rootCmd.AddCommand(opportunityCmd)
}

func runOpportunity(cmd *cobra.Command, args []string) error {
	jobMinutes, _ := cmd.Flags().GetInt("job-minutes")
	revenue, _ := cmd.Flags().GetFloat64("revenue")

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	from, to, err := rangeFlags(cmd, time.Now(), e.loc)
	if err != nil {
		return err
	}

	report, err := e.svc.DetectOpportunity(cmd.Context(), e.user, engine.OpportunityRequest{
		From:          from,
		To:            to,
		AvgJobMinutes: jobMinutes,
		RevenuePerJob: revenue,
	})
	if err != nil {
		return userError(err)
	}

	if e.json {
		return printJSON(e.out, report)
	}
	renderOpportunity(e.out, e.styles, report)
	return nil
}

func renderOpportunity(w io.Writer, s *ui.Styles, r opportunity.Report) {
	fmt.Fprintln(w, s.Title.Render("Money opportunity"))
	for _, d := range r.Days {
		fmt.Fprintf(w, "  %s %s %s\n",
			s.Value.Render(d.Day),
			s.StatusOK.Render(fmt.Sprintf("%8s free", formatMinutes(d.FreeMinutes))),
			s.Muted.Render(fmt.Sprintf("%s busy", formatMinutes(d.BusyMinutes))))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s over %d days\n", s.Label.Render("Free time:"), s.Value.Render(formatMinutes(r.FreeMinutes)), r.DaysAnalyzed)
	fmt.Fprintf(w, "%s %s of %s\n", s.Label.Render("Jobs that fit:"), s.Value.Render(fmt.Sprintf("%d", r.JobsThatFit)), formatMinutes(r.AvgJobMinutes))
	fmt.Fprintf(w, "%s %s at %.2f per job\n", s.Label.Render("Potential revenue:"), s.Highlight.Render(fmt.Sprintf("%.2f", r.PotentialRevenue)), r.RevenuePerJob)
}

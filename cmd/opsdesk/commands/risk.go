package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/forecast"
	"github.com/marcus/opsdesk/internal/ui"
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Forecast days likely to run over capacity",
	Long: `Estimate the pending work due on each day of a date range from the
duration history of completed tasks and list the days whose expected
minutes exceed the daily capacity.`,
	RunE: runRisk,
}

func init() {
	addRangeFlags(riskCmd)
	riskCmd.Flags().Int("capacity", 0, "Daily capacity in minutes (default from config)")
	rootCmd.AddCommand(riskCmd)
}

func runRisk(cmd *cobra.Command, args []string) error {
	capacity, _ := cmd.Flags().GetInt("capacity")

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	from, to, err := rangeFlags(cmd, time.Now(), e.loc)
	if err != nil {
		return err
	}

	risks, err := e.svc.ForecastDelayRisk(cmd.Context(), e.user, engine.RiskRequest{From: from, To: to, CapacityMinutes: capacity})
	if err != nil {
		return userError(err)
	}

	if e.json {
		if risks == nil {
			risks = []forecast.DayRisk{}
		}
		return printJSON(e.out, risks)
	}
	renderRisk(e.out, e.styles, risks)
	return nil
}

func renderRisk(w io.Writer, s *ui.Styles, risks []forecast.DayRisk) {
	fmt.Fprintln(w, s.Title.Render("Delay risk"))
	if len(risks) == 0 {
		fmt.Fprintln(w, s.StatusOK.Render("No day is expected to exceed capacity."))
		return
	}
	for _, r := range risks {
		style := s.StatusWarn
		if r.Probability >= 0.75 {
			style = s.StatusError
		}
		fmt.Fprintf(w, "  %s %s %s\n",
			s.Value.Render(r.Day),
			style.Render(fmt.Sprintf("%3.0f%%", r.Probability*100)),
			s.Muted.Render(r.Reason))
	}
}

package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/geo"
	"github.com/marcus/opsdesk/internal/ui"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Plan the visiting order for a day",
	Long: `Order the day's geolocated pending tasks by nearest neighbor and
estimate the travel time. Nothing is saved unless --apply is given; the
planned order is then confirmed in a picker (or with --yes) and stored.`,
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().String("day", "", "Day to plan: YYYY-MM-DD, today, tomorrow (default today)")
	routeCmd.Flags().String("base", "", "Start and end point as lat,lon")
	routeCmd.Flags().Float64("speed", 0, "Average speed in km/h (default from config)")
	routeCmd.Flags().Bool("apply", false, "Store the accepted order")
	routeCmd.Flags().BoolP("yes", "y", false, "Apply without confirmation")
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	apply, _ := cmd.Flags().GetBool("apply")
	yes, _ := cmd.Flags().GetBool("yes")
	speed, _ := cmd.Flags().GetFloat64("speed")
	baseStr, _ := cmd.Flags().GetString("base")

	var base *geo.Point
	if baseStr != "" {
		p, err := geo.ParsePoint(baseStr)
		if err != nil {
			return fmt.Errorf("--base: %w", err)
		}
		base = &p
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	day, err := dayFlag(cmd, "day", time.Now(), e.loc)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	plan, err := e.svc.OptimizeRoute(ctx, e.user, engine.RouteRequest{Day: day, Base: base, SpeedKmh: speed})
	if err != nil {
		return userError(err)
	}

	if !apply || len(plan.Stops) == 0 {
		if e.json {
			return printJSON(e.out, plan)
		}
		renderRoute(e.out, e.styles, plan)
		return nil
	}

	if !e.json {
		renderRoute(e.out, e.styles, plan)
	}
	items := make([]ui.Item, len(plan.Stops))
	for i, st := range plan.Stops {
		items[i] = ui.Item{
			ID:       st.TaskID,
			Label:    fmt.Sprintf("%d. %s", i+1, st.TaskID),
			Detail:   fmt.Sprintf("%.1f km, %.0f min", st.LegKm, st.LegMinutes),
			Selected: true,
		}
	}
	ids, err := approve(ctx, fmt.Sprintf("Route for %s", plan.Day), items, yes)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Nothing applied.")
		return nil
	}

	applied, err := e.svc.ApplyRoute(ctx, e.user, day, ids)
	if err != nil {
		return userError(err)
	}
	if e.json {
		return printJSON(e.out, applied)
	}
	fmt.Fprintln(e.out, e.styles.StatusOK.Render(fmt.Sprintf("Stored route order for %d tasks on %s", len(applied.Applied), applied.Day)))
	return nil
}

func renderRoute(w io.Writer, s *ui.Styles, plan engine.RoutePlan) {
	fmt.Fprintln(w, s.Title.Render(fmt.Sprintf("Route for %s", plan.Day)))
	if len(plan.Order) == 0 {
		fmt.Fprintln(w, s.Muted.Render("No geolocated pending tasks on this day."))
		if plan.Skipped > 0 {
			fmt.Fprintln(w, s.Muted.Render(fmt.Sprintf("%d tasks without a location skipped", plan.Skipped)))
		}
		return
	}

	for i, st := range plan.Stops {
		fmt.Fprintf(w, "  %2d. %-24s %s\n", i+1, st.TaskID,
			s.Muted.Render(fmt.Sprintf("%6.1f km %5.0f min", st.LegKm, st.LegMinutes)))
	}
	if plan.ReturnMinutes > 0 {
		fmt.Fprintf(w, "  %s %s\n", s.Label.Render("Return"), s.Muted.Render(fmt.Sprintf("%.0f min", plan.ReturnMinutes)))
	}
	fmt.Fprintf(w, "%s %s\n", s.Label.Render("Travel:"), s.Value.Render(fmt.Sprintf("%.0f min", plan.TravelMinutes)))
	if plan.Skipped > 0 {
		fmt.Fprintln(w, s.Muted.Render(fmt.Sprintf("%d tasks without a location skipped", plan.Skipped)))
	}
}

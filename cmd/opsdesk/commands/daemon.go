package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/logging"
	"github.com/marcus/opsdesk/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Recalculate priorities on a schedule",
	Long: `Run in the foreground and recalculate the priority score of every
user's tasks on the configured schedule (cron or interval), respecting the
optional time window. Stop with Ctrl+C or SIGTERM.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().Bool("once", false, "Recalculate once and exit")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	once, _ := cmd.Flags().GetBool("once")

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	log := logging.Component("daemon")

	if once {
		n, err := recalculateAll(cmd.Context(), e.svc, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "recalculated %d task priorities\n", n)
		return nil
	}

	if e.cfg.Schedule.Cron == "" && e.cfg.Schedule.Interval == "" {
		return fmt.Errorf("no schedule configured (set schedule.cron or schedule.interval)")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	sched, err := scheduler.NewFromConfig(&e.cfg.Schedule)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.AddJob(func(jobCtx context.Context) error {
		_, err := recalculateAll(jobCtx, e.svc, log)
		return err
	})

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	ev := log.Info()
	if next := sched.NextRun(); !next.IsZero() {
		ev = ev.Time("next_run", next)
	}
	if d := e.cfg.ScheduleInterval(); d > 0 {
		ev = ev.Dur("interval", d)
	}
	ev.Msg("daemon running")
	fmt.Fprintln(cmd.ErrOrStderr(), "opsdesk daemon running (Ctrl+C to stop)")

	<-ctx.Done()

	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		log.Err(err).Msg("stopping scheduler")
	}
	log.Info().Msg("daemon stopped")
	return nil
}

// recalculateAll rescores every user's tasks and logs the outcome.
func recalculateAll(ctx context.Context, svc *engine.Service, log *logging.Logger) (int, error) {
	start := time.Now()
	n, err := svc.RecalculateAllUsers(ctx)
	if err != nil {
		log.Err(err).Int("tasks", n).Msg("priority recalculation incomplete")
		return n, err
	}
	log.Info().Int("tasks", n).Dur("elapsed", time.Since(start)).Msg("priorities recalculated")
	return n, nil
}

// Package commands implements the opsdesk CLI commands using cobra.
package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/marcus/opsdesk/internal/audit"
	"github.com/marcus/opsdesk/internal/config"
	"github.com/marcus/opsdesk/internal/db"
	"github.com/marcus/opsdesk/internal/engine"
	"github.com/marcus/opsdesk/internal/logging"
	"github.com/marcus/opsdesk/internal/store"
	"github.com/marcus/opsdesk/internal/ui"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "opsdesk",
	Short: "Task intelligence and scheduling for field teams",
	Long: `Opsdesk scores, orders and balances the tasks of a field-service team.

It recommends what to do next, plans the day's visiting order, flags days
that are likely to run over, suggests who should take which job and shows
how much free time could still be sold.`,
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/opsdesk/config.yaml)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "User id to act as (default: user from config)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}

// env is the per-invocation wiring shared by commands that touch the store.
type env struct {
	cfg    *config.Config
	db     *db.DB
	audit  *audit.Logger
	store  *store.Store
	svc    *engine.Service
	user   string
	loc    *time.Location
	out    io.Writer
	json   bool
	styles *ui.Styles
}

// loadConfig reads the config named by --config, or the default locations.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPaths(filepath.Dir(path), path)
}

// openEnv loads config, initializes logging and opens the database.
func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := initLogging(cfg); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.ExpandedDBPath())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	auditLog, err := audit.New(cfg.ExpandedAuditPath())
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	applyColorFlag(cmd)
	jsonOutput, _ := cmd.Flags().GetBool("json")
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = cfg.User
	}

	st := store.New(database)
	svc := engine.New(st, opts)
	svc.SetAuditor(auditLog)
	return &env{
		cfg:    cfg,
		db:     database,
		audit:  auditLog,
		store:  st,
		svc:    svc,
		user:   user,
		loc:    opts.Location,
		out:    cmd.OutOrStdout(),
		json:   jsonOutput,
		styles: ui.DefaultStyles(),
	}, nil
}

func (e *env) Close() error {
	return errors.Join(e.audit.Close(), e.db.Close())
}

// initLogging sends logs to the configured directory so report output on
// stdout stays clean.
func initLogging(cfg *config.Config) error {
	return logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Path:   cfg.ExpandedLogPath(),
		Format: cfg.Logging.Format,
	})
}

func applyColorFlag(cmd *cobra.Command) {
	noColor, _ := cmd.Flags().GetBool("no-color")
	if noColor || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// userError adds a hint to errors the user can fix from the command line.
func userError(err error) error {
	if errors.Is(err, engine.ErrUnauthorized) {
		return fmt.Errorf("%w: pass --user or set user in the config file", err)
	}
	return err
}

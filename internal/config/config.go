// Package config loads and validates opsdesk configuration from YAML files
// and OPSDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values.
const (
	DefaultDBPath          = "~/.local/share/opsdesk/opsdesk.db"
	DefaultLogPath         = "~/.local/share/opsdesk/logs"
	DefaultAuditPath       = "~/.local/share/opsdesk/audit"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultWorkdayStart    = "09:00"
	DefaultWorkdayEnd      = "18:00"
	DefaultDailyMinutes    = 480
	DefaultAssigneeMinutes = 480
	DefaultMaxSuggestions  = 10
	DefaultSpeedKmh        = 30.0
	DefaultFallbackMinutes = 30
	DefaultJobMinutes      = 60
	DefaultRevenuePerJob   = 150.0
	DefaultVIPMinSpend     = 10000.0
	DefaultVIPMinScore     = 80.0
	DefaultRankingLimit    = 5
	DefaultMaxRangeDays    = 93

	// ProjectConfigName is the per-directory config file.
	ProjectConfigName = "opsdesk.yaml"

	envPrefix = "OPSDESK"
)

// Validation errors.
var (
	ErrCronAndInterval       = errors.New("schedule: set either cron or interval, not both")
	ErrInvalidInterval       = errors.New("schedule.interval must be a positive duration")
	ErrInvalidLogLevel       = errors.New("logging.level must be one of debug, info, warn, error")
	ErrInvalidLogFormat      = errors.New("logging.format must be json or text")
	ErrInvalidWorkday        = errors.New("workday: start and end must be HH:MM with start before end")
	ErrInvalidTimezone       = errors.New("unknown timezone")
	ErrInvalidCapacity       = errors.New("capacity minutes must not be negative")
	ErrInvalidMaxSuggestions = errors.New("capacity.max_suggestions must not be negative")
	ErrInvalidSpeed          = errors.New("routing.speed_kmh must not be negative")
	ErrInvalidRevenue        = errors.New("opportunity values must not be negative")
	ErrInvalidRangeDays      = errors.New("max_range_days must not be negative")
)

// Config holds all opsdesk configuration.
type Config struct {
	// User is the default user id for CLI and MCP invocations.
	User         string            `mapstructure:"user"`
	Database     DatabaseConfig    `mapstructure:"database"`
	Logging      LoggingConfig     `mapstructure:"logging"`
	Audit        AuditConfig       `mapstructure:"audit"`
	Schedule     ScheduleConfig    `mapstructure:"schedule"`
	Workday      WorkdayConfig     `mapstructure:"workday"`
	Capacity     CapacityConfig    `mapstructure:"capacity"`
	Routing      RoutingConfig     `mapstructure:"routing"`
	Estimation   EstimationConfig  `mapstructure:"estimation"`
	Opportunity  OpportunityConfig `mapstructure:"opportunity"`
	Ranking      RankingConfig     `mapstructure:"ranking"`
	Team         []string          `mapstructure:"team"`
	MaxRangeDays int               `mapstructure:"max_range_days"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

// AuditConfig locates the audit trail of applied changes.
type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// ScheduleConfig sets the cadence of the priority recompute daemon.
type ScheduleConfig struct {
	Cron     string        `mapstructure:"cron"`
	Interval string        `mapstructure:"interval"`
	Window   *WindowConfig `mapstructure:"window"`
}

// WindowConfig restricts daemon runs to a time-of-day window.
type WindowConfig struct {
	Start    string `mapstructure:"start"`
	End      string `mapstructure:"end"`
	Timezone string `mapstructure:"timezone"`
}

// WorkdayConfig is the working window used for free-time analysis and the
// zone that defines calendar days.
type WorkdayConfig struct {
	Start    string `mapstructure:"start"`
	End      string `mapstructure:"end"`
	Timezone string `mapstructure:"timezone"`
}

// CapacityConfig holds capacity defaults.
type CapacityConfig struct {
	DailyMinutes       int `mapstructure:"daily_minutes"`
	PerAssigneeMinutes int `mapstructure:"per_assignee_minutes"`
	MaxSuggestions     int `mapstructure:"max_suggestions"`
}

// RoutingConfig holds route optimizer defaults.
type RoutingConfig struct {
	SpeedKmh float64 `mapstructure:"speed_kmh"`
}

// EstimationConfig holds duration estimation defaults.
type EstimationConfig struct {
	FallbackMinutes int `mapstructure:"fallback_minutes"`
}

// OpportunityConfig holds money-opportunity defaults.
type OpportunityConfig struct {
	FallbackJobMinutes int     `mapstructure:"fallback_job_minutes"`
	RevenuePerJob      float64 `mapstructure:"revenue_per_job"`
}

// RankingConfig holds next-action ranking parameters.
type RankingConfig struct {
	VIPMinSpend float64 `mapstructure:"vip_min_spend"`
	VIPMinScore float64 `mapstructure:"vip_min_score"`
	Limit       int     `mapstructure:"limit"`
}

// GlobalConfigPath returns ~/.config/opsdesk/config.yaml.
func GlobalConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "opsdesk", "config.yaml")
}

// Load reads the global config merged with ./opsdesk.yaml.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working dir: %w", err)
	}
	return LoadFromPaths(cwd, GlobalConfigPath())
}

// LoadFromPaths reads globalPath, then merges projectDir/opsdesk.yaml over
// it. Missing files are skipped. Environment variables override both.
func LoadFromPaths(projectDir, globalPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read global config %s: %w", globalPath, err)
		}
	}

	if projectDir != "" {
		projectPath := filepath.Join(projectDir, ProjectConfigName)
		if fileExists(projectPath) && projectPath != globalPath {
			v.SetConfigFile(projectPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("read project config %s: %w", projectPath, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("user", "")
	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", DefaultLogPath)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("audit.path", DefaultAuditPath)
	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.interval", "")
	v.SetDefault("workday.start", DefaultWorkdayStart)
	v.SetDefault("workday.end", DefaultWorkdayEnd)
	v.SetDefault("workday.timezone", "")
	v.SetDefault("capacity.daily_minutes", DefaultDailyMinutes)
	v.SetDefault("capacity.per_assignee_minutes", DefaultAssigneeMinutes)
	v.SetDefault("capacity.max_suggestions", DefaultMaxSuggestions)
	v.SetDefault("routing.speed_kmh", DefaultSpeedKmh)
	v.SetDefault("estimation.fallback_minutes", DefaultFallbackMinutes)
	v.SetDefault("opportunity.fallback_job_minutes", DefaultJobMinutes)
	v.SetDefault("opportunity.revenue_per_job", DefaultRevenuePerJob)
	v.SetDefault("ranking.vip_min_spend", DefaultVIPMinSpend)
	v.SetDefault("ranking.vip_min_score", DefaultVIPMinScore)
	v.SetDefault("ranking.limit", DefaultRankingLimit)
	v.SetDefault("team", []string{})
	v.SetDefault("max_range_days", DefaultMaxRangeDays)
}

// normalize fills zero values left by partial configs.
func normalize(cfg *Config) {
	if cfg.Workday.Start == "" {
		cfg.Workday.Start = DefaultWorkdayStart
	}
	if cfg.Workday.End == "" {
		cfg.Workday.End = DefaultWorkdayEnd
	}
	if cfg.Capacity.DailyMinutes == 0 {
		cfg.Capacity.DailyMinutes = DefaultDailyMinutes
	}
	if cfg.Capacity.PerAssigneeMinutes == 0 {
		cfg.Capacity.PerAssigneeMinutes = DefaultAssigneeMinutes
	}
	if cfg.Capacity.MaxSuggestions == 0 {
		cfg.Capacity.MaxSuggestions = DefaultMaxSuggestions
	}
	if cfg.Routing.SpeedKmh == 0 {
		cfg.Routing.SpeedKmh = DefaultSpeedKmh
	}
	if cfg.Estimation.FallbackMinutes == 0 {
		cfg.Estimation.FallbackMinutes = DefaultFallbackMinutes
	}
	if cfg.Opportunity.FallbackJobMinutes == 0 {
		cfg.Opportunity.FallbackJobMinutes = DefaultJobMinutes
	}
	if cfg.Ranking.Limit == 0 {
		cfg.Ranking.Limit = DefaultRankingLimit
	}
	if cfg.MaxRangeDays == 0 {
		cfg.MaxRangeDays = DefaultMaxRangeDays
	}
	cfg.Team = normalizeTeam(cfg.Team)
}

func normalizeTeam(team []string) []string {
	seen := make(map[string]bool, len(team))
	out := make([]string, 0, len(team))
	for _, member := range team {
		member = strings.TrimSpace(member)
		if member == "" || seen[member] {
			continue
		}
		seen[member] = true
		out = append(out, member)
	}
	return out
}

// Validate checks configuration values. Zero values are treated as unset.
func Validate(cfg *Config) error {
	if cfg.Schedule.Cron != "" && cfg.Schedule.Interval != "" {
		return ErrCronAndInterval
	}
	if cfg.Schedule.Interval != "" {
		d, err := time.ParseDuration(cfg.Schedule.Interval)
		if err != nil {
			return fmt.Errorf("schedule.interval %q: %w", cfg.Schedule.Interval, err)
		}
		if d <= 0 {
			return ErrInvalidInterval
		}
	}
	if w := cfg.Schedule.Window; w != nil {
		if _, _, err := ParseClock(w.Start); err != nil {
			return fmt.Errorf("schedule.window.start: %w", err)
		}
		if _, _, err := ParseClock(w.End); err != nil {
			return fmt.Errorf("schedule.window.end: %w", err)
		}
		if _, err := loadLocation(w.Timezone); err != nil {
			return err
		}
	}

	if cfg.Logging.Level != "" {
		switch strings.ToLower(cfg.Logging.Level) {
		case "debug", "info", "warn", "error":
		default:
			return ErrInvalidLogLevel
		}
	}
	if cfg.Logging.Format != "" && cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		return ErrInvalidLogFormat
	}

	if cfg.Workday.Start != "" || cfg.Workday.End != "" {
		if _, _, err := cfg.WorkdayWindow(); err != nil {
			return err
		}
	}
	if _, err := loadLocation(cfg.Workday.Timezone); err != nil {
		return err
	}

	if cfg.Capacity.DailyMinutes < 0 || cfg.Capacity.PerAssigneeMinutes < 0 {
		return ErrInvalidCapacity
	}
	if cfg.Capacity.MaxSuggestions < 0 {
		return ErrInvalidMaxSuggestions
	}
	if cfg.Routing.SpeedKmh < 0 {
		return ErrInvalidSpeed
	}
	if cfg.Opportunity.FallbackJobMinutes < 0 || cfg.Opportunity.RevenuePerJob < 0 {
		return ErrInvalidRevenue
	}
	if cfg.MaxRangeDays < 0 {
		return ErrInvalidRangeDays
	}
	return nil
}

// ExpandedDBPath returns the database path with ~ expanded.
func (c *Config) ExpandedDBPath() string {
	return expandPath(c.Database.Path)
}

// ExpandedLogPath returns the log directory with ~ expanded.
func (c *Config) ExpandedLogPath() string {
	return expandPath(c.Logging.Path)
}

// ExpandedAuditPath returns the audit directory with ~ expanded.
func (c *Config) ExpandedAuditPath() string {
	return expandPath(c.Audit.Path)
}

// Location returns the workday timezone, time.Local when unset.
func (c *Config) Location() *time.Location {
	loc, err := loadLocation(c.Workday.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// WorkdayWindow returns the working window as offsets from local midnight.
func (c *Config) WorkdayWindow() (time.Duration, time.Duration, error) {
	start := c.Workday.Start
	if start == "" {
		start = DefaultWorkdayStart
	}
	end := c.Workday.End
	if end == "" {
		end = DefaultWorkdayEnd
	}

	sh, sm, err := ParseClock(start)
	if err != nil {
		return 0, 0, ErrInvalidWorkday
	}
	eh, em, err := ParseClock(end)
	if err != nil {
		return 0, 0, ErrInvalidWorkday
	}
	from := time.Duration(sh)*time.Hour + time.Duration(sm)*time.Minute
	to := time.Duration(eh)*time.Hour + time.Duration(em)*time.Minute
	if to <= from {
		return 0, 0, ErrInvalidWorkday
	}
	return from, to, nil
}

// ScheduleInterval parses Schedule.Interval, zero when unset or invalid.
func (c *Config) ScheduleInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.Interval)
	if err != nil {
		return 0
	}
	return d
}

// ParseClock parses "HH:MM" in 24-hour time.
func ParseClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q (use HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

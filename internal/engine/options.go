package engine

import (
	"fmt"
	"time"

	"github.com/marcus/opsdesk/internal/config"
	"github.com/marcus/opsdesk/internal/opportunity"
	"github.com/marcus/opsdesk/internal/ranking"
)

// Options are the defaults applied when a caller leaves a parameter unset.
type Options struct {
	DailyCapacityMinutes    int
	AssigneeCapacityMinutes int
	MaxSuggestions          int
	SpeedKmh                float64
	FallbackMinutes         int
	JobMinutes              int
	RevenuePerJob           float64
	WorkStart               time.Duration
	WorkEnd                 time.Duration
	Location                *time.Location
	Ranking                 ranking.Options
	Team                    []string
	MaxRangeDays            int
}

// DefaultOptions returns the built-in defaults in the local zone.
func DefaultOptions() Options {
	return Options{
		DailyCapacityMinutes:    config.DefaultDailyMinutes,
		AssigneeCapacityMinutes: config.DefaultAssigneeMinutes,
		MaxSuggestions:          config.DefaultMaxSuggestions,
		SpeedKmh:                config.DefaultSpeedKmh,
		FallbackMinutes:         config.DefaultFallbackMinutes,
		JobMinutes:              config.DefaultJobMinutes,
		RevenuePerJob:           config.DefaultRevenuePerJob,
		WorkStart:               opportunity.DefaultWorkStart,
		WorkEnd:                 opportunity.DefaultWorkEnd,
		Location:                time.Local,
		Ranking:                 ranking.DefaultOptions(),
		MaxRangeDays:            config.DefaultMaxRangeDays,
	}
}

// OptionsFromConfig maps a validated config onto engine options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := DefaultOptions()
	if cfg == nil {
		return opts, nil
	}

	start, end, err := cfg.WorkdayWindow()
	if err != nil {
		return Options{}, fmt.Errorf("workday: %w", err)
	}
	loc := cfg.Location()

	opts.WorkStart = start
	opts.WorkEnd = end
	opts.Location = loc
	opts.Team = append([]string(nil), cfg.Team...)
	setPositive(&opts.DailyCapacityMinutes, cfg.Capacity.DailyMinutes)
	setPositive(&opts.AssigneeCapacityMinutes, cfg.Capacity.PerAssigneeMinutes)
	setPositive(&opts.MaxSuggestions, cfg.Capacity.MaxSuggestions)
	setPositive(&opts.FallbackMinutes, cfg.Estimation.FallbackMinutes)
	setPositive(&opts.JobMinutes, cfg.Opportunity.FallbackJobMinutes)
	setPositive(&opts.MaxRangeDays, cfg.MaxRangeDays)
	if cfg.Routing.SpeedKmh > 0 {
		opts.SpeedKmh = cfg.Routing.SpeedKmh
	}
	if cfg.Opportunity.RevenuePerJob > 0 {
		opts.RevenuePerJob = cfg.Opportunity.RevenuePerJob
	}

	opts.Ranking.Location = loc
	setPositive(&opts.Ranking.Limit, cfg.Ranking.Limit)
	if cfg.Ranking.VIPMinSpend > 0 {
		opts.Ranking.VIPMinSpend = cfg.Ranking.VIPMinSpend
	}
	if cfg.Ranking.VIPMinScore > 0 {
		opts.Ranking.VIPMinScore = cfg.Ranking.VIPMinScore
	}
	return opts, nil
}

func setPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

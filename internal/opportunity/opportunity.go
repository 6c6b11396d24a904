// Package opportunity estimates how much billable work fits into the free
// time of a working calendar.
package opportunity

import (
	"time"

	"github.com/marcus/opsdesk/internal/interval"
	"github.com/marcus/opsdesk/internal/tasks"
)

// Defaults for Options.
const (
	DefaultWorkStart     = 9 * time.Hour
	DefaultWorkEnd       = 18 * time.Hour
	DefaultJobMinutes    = 60
	DefaultRevenuePerJob = 150.0

	dayLayout = "2006-01-02"
)

// Options configure detection. WorkStart and WorkEnd are offsets from local
// midnight.
type Options struct {
	WorkStart     time.Duration
	WorkEnd       time.Duration
	AvgJobMinutes int
	RevenuePerJob float64
	Location      *time.Location
}

// DefaultOptions returns a 09:00-18:00 local working day with placeholder
// job length and pricing.
func DefaultOptions() Options {
	return Options{
		WorkStart:     DefaultWorkStart,
		WorkEnd:       DefaultWorkEnd,
		AvgJobMinutes: DefaultJobMinutes,
		RevenuePerJob: DefaultRevenuePerJob,
		Location:      time.Local,
	}
}

// Day is the free time of one calendar day.
type Day struct {
	Day         string `json:"day"`
	FreeMinutes int    `json:"free_minutes"`
	BusyMinutes int    `json:"busy_minutes"`
}

// Report summarizes free capacity over a date range.
type Report struct {
	FreeMinutes      int     `json:"free_minutes"`
	JobsThatFit      int     `json:"jobs_that_fit"`
	PotentialRevenue float64 `json:"potential_revenue"`
	DaysAnalyzed     int     `json:"days_analyzed"`
	AvgJobMinutes    int     `json:"avg_job_minutes"`
	RevenuePerJob    float64 `json:"revenue_per_job"`
	Days             []Day   `json:"days"`
}

// BusyIntervals collects the calendar blocks that occupy time: scheduled
// tasks that were not cancelled and reminders that were not dismissed.
func BusyIntervals(ts []tasks.Task, rs []tasks.Reminder) []interval.Interval {
	var out []interval.Interval
	for _, t := range ts {
		if t.Status == tasks.StatusCancelled || !t.Scheduled() {
			continue
		}
		out = append(out, interval.Interval{Start: *t.StartAt, End: *t.EndAt})
	}
	for _, r := range rs {
		if !r.Busy() {
			continue
		}
		out = append(out, interval.Interval{Start: r.Start, End: r.End})
	}
	return out
}

// Detect sums the free working minutes of every calendar day from from's
// day through to's day, then converts them to whole jobs and revenue.
func Detect(busy []interval.Interval, from, to time.Time, opts Options) Report {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	merged := interval.Merge(busy)
	report := Report{
		AvgJobMinutes: opts.AvgJobMinutes,
		RevenuePerJob: opts.RevenuePerJob,
		Days:          []Day{},
	}

	last := tasks.StartOfDay(to, loc)
	for day := tasks.StartOfDay(from, loc); !day.After(last); day = day.AddDate(0, 0, 1) {
		window := interval.Interval{
			Start: atOffset(day, opts.WorkStart),
			End:   atOffset(day, opts.WorkEnd),
		}
		free := interval.FreeMinutes(window, merged)
		report.Days = append(report.Days, Day{
			Day:         day.Format(dayLayout),
			FreeMinutes: free,
			BusyMinutes: int(window.Duration().Minutes()) - free,
		})
		report.FreeMinutes += free
		report.DaysAnalyzed++
	}

	if opts.AvgJobMinutes > 0 {
		report.JobsThatFit = report.FreeMinutes / opts.AvgJobMinutes
	}
	report.PotentialRevenue = float64(report.JobsThatFit) * opts.RevenuePerJob
	return report
}

// atOffset returns the wall-clock time offset from midnight of day, so
// daylight-saving shifts keep the window at its nominal hours.
func atOffset(day time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

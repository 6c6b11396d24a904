package engine

import (
	"context"
	"time"

	"github.com/marcus/opsdesk/internal/opportunity"
	"github.com/marcus/opsdesk/internal/ranking"
	"github.com/marcus/opsdesk/internal/tasks"
)

// OpportunityRequest bounds the free-time analysis. Zero job minutes use
// the user's average explicit estimate, else the configured fallback; zero
// revenue uses the configured price per job.
type OpportunityRequest struct {
	From          time.Time
	To            time.Time
	AvgJobMinutes int
	RevenuePerJob float64
}

// NextActions ranks the user's pending tasks and returns the top few.
func (s *Service) NextActions(ctx context.Context, userID string) ([]ranking.Action, error) {
	o, err := s.begin("next_actions", userID)
	if err != nil {
		return nil, err
	}
	ts, err := s.pending(ctx, tasks.Query{UserID: userID})
	if err != nil {
		return nil, o.fail(err)
	}

	var clientIDs []string
	seen := make(map[string]bool)
	for _, t := range ts {
		if t.ClientID != "" && !seen[t.ClientID] {
			seen[t.ClientID] = true
			clientIDs = append(clientIDs, t.ClientID)
		}
	}
	clients := map[string]tasks.Client{}
	if len(clientIDs) > 0 {
		if clients, err = s.store.FindClients(ctx, userID, clientIDs); err != nil {
			return nil, o.fail(err)
		}
	}

	actions := ranking.Rank(ts, clients, s.clock(), s.opts.Ranking)
	o.done().Int("candidates", len(ts)).Int("actions", len(actions)).Msg("actions ranked")
	return actions, nil
}

// DetectOpportunity sums the free working time in range and converts it
// into jobs and revenue. It never writes.
func (s *Service) DetectOpportunity(ctx context.Context, userID string, req OpportunityRequest) (opportunity.Report, error) {
	o, err := s.begin("detect_opportunity", userID)
	if err != nil {
		return opportunity.Report{}, err
	}
	start, end, err := s.dayRange(req.From, req.To)
	if err != nil {
		return opportunity.Report{}, o.fail(err)
	}
	if req.AvgJobMinutes < 0 {
		return opportunity.Report{}, o.fail(invalid("avg_job_minutes", "must be positive, got %d", req.AvgJobMinutes))
	}
	if req.RevenuePerJob < 0 {
		return opportunity.Report{}, o.fail(invalid("revenue_per_job", "must be positive, got %g", req.RevenuePerJob))
	}

	scheduled, err := s.store.FindTasks(ctx, tasks.Query{UserID: userID, OverlapFrom: &start, OverlapTo: &end})
	if err != nil {
		return opportunity.Report{}, o.fail(err)
	}
	reminders, err := s.store.FindReminders(ctx, userID, start, end)
	if err != nil {
		return opportunity.Report{}, o.fail(err)
	}

	jobMinutes := req.AvgJobMinutes
	if jobMinutes == 0 {
		all, err := s.store.FindTasks(ctx, tasks.Query{UserID: userID})
		if err != nil {
			return opportunity.Report{}, o.fail(err)
		}
		avg, ok := tasks.AverageEstimatedMinutes(all)
		if !ok {
			avg = s.opts.JobMinutes
		}
		jobMinutes = avg
	}
	revenue := req.RevenuePerJob
	if revenue == 0 {
		revenue = s.opts.RevenuePerJob
	}

	report := opportunity.Detect(
		opportunity.BusyIntervals(scheduled, reminders),
		start, end.AddDate(0, 0, -1),
		opportunity.Options{
			WorkStart:     s.opts.WorkStart,
			WorkEnd:       s.opts.WorkEnd,
			AvgJobMinutes: jobMinutes,
			RevenuePerJob: revenue,
			Location:      s.opts.Location,
		},
	)
	o.done().Int("days", report.DaysAnalyzed).Int("free_minutes", report.FreeMinutes).Int("jobs", report.JobsThatFit).Msg("opportunity detected")
	return report, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marcus/opsdesk/internal/audit"
	"github.com/marcus/opsdesk/internal/store"
	"github.com/marcus/opsdesk/internal/tasks"
)

// ScoreResult is a freshly computed priority score.
type ScoreResult struct {
	TaskID       string          `json:"task_id"`
	Title        string          `json:"title"`
	Score        float64         `json:"score"`
	Breakdown    tasks.Breakdown `json:"breakdown"`
	CalculatedAt time.Time       `json:"calculated_at"`
}

func (s *Service) score(t tasks.Task, now time.Time) ScoreResult {
	b := s.scorer.Explain(t, now)
	return ScoreResult{
		TaskID:       t.ID,
		Title:        t.Title,
		Score:        b.Total(),
		Breakdown:    b,
		CalculatedAt: now,
	}
}

// ExplainPriority computes a task's current score without storing it.
func (s *Service) ExplainPriority(ctx context.Context, userID, taskID string) (ScoreResult, error) {
	o, err := s.begin("explain_priority", userID)
	if err != nil {
		return ScoreResult{}, err
	}
	t, err := s.getTask(ctx, userID, taskID)
	if err != nil {
		return ScoreResult{}, o.fail(err)
	}
	res := s.score(t, s.clock())
	o.done().Str("task", taskID).Float64("score", res.Score).Msg("explained")
	return res, nil
}

// RecalculatePriority scores one task and stores the score with its
// calculation time.
func (s *Service) RecalculatePriority(ctx context.Context, userID, taskID string) (ScoreResult, error) {
	o, err := s.begin("recalculate_priority", userID)
	if err != nil {
		return ScoreResult{}, err
	}
	t, err := s.getTask(ctx, userID, taskID)
	if err != nil {
		return ScoreResult{}, o.fail(err)
	}

	res := s.score(t, s.clock())
	err = s.store.WithinTx(ctx, func(w store.Writer) error {
		return w.SetPriorityScore(ctx, userID, t.ID, res.Score, res.CalculatedAt)
	})
	if err != nil {
		return ScoreResult{}, o.fail(err)
	}
	o.audit(ctx, audit.Event{
		Type:    audit.EventScoreRecalculated,
		TaskIDs: []string{t.ID},
		After:   strconv.FormatFloat(res.Score, 'f', -1, 64),
		Count:   1,
	})
	o.done().Str("task", taskID).Float64("score", res.Score).Msg("recalculated")
	return res, nil
}

// RecalculateAllPriorities rescores every task of the user in a single
// transaction. Either all new scores are stored or none are.
func (s *Service) RecalculateAllPriorities(ctx context.Context, userID string) ([]ScoreResult, error) {
	o, err := s.begin("recalculate_all_priorities", userID)
	if err != nil {
		return nil, err
	}
	all, err := s.store.FindTasks(ctx, tasks.Query{UserID: userID})
	if err != nil {
		return nil, o.fail(err)
	}

	now := s.clock()
	results := make([]ScoreResult, 0, len(all))
	for _, t := range all {
		results = append(results, s.score(t, now))
	}

	err = s.store.WithinTx(ctx, func(w store.Writer) error {
		for _, r := range results {
			if err := w.SetPriorityScore(ctx, userID, r.TaskID, r.Score, r.CalculatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, o.fail(err)
	}
	o.audit(ctx, audit.Event{Type: audit.EventScoreRecalculated, Count: len(results)})
	o.done().Int("tasks", len(results)).Msg("recalculated")
	return results, nil
}

// RecalculateAllUsers rescores every user that owns tasks. A failure for
// one user does not stop the others; the errors are joined.
func (s *Service) RecalculateAllUsers(ctx context.Context) (int, error) {
	users, err := s.store.UserIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("op", "recalculate_all_users").Msg("failed")
		return 0, fmt.Errorf("list users: %w", err)
	}

	var (
		total int
		errs  []error
	)
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.RecalculateAllPriorities(ctx, u)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u, err))
			continue
		}
		total += len(res)
	}
	s.log.Info().Str("op", "recalculate_all_users").Int("users", len(users)).Int("tasks", total).Msg("done")
	return total, errors.Join(errs...)
}

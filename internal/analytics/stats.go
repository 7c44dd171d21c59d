// Package analytics computes the dashboard counters from the activity logs.
package analytics

import (
	"context"
	"math"
	"time"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/storage"
)

// WeekDays is the number of points in the weekly activity series.
const WeekDays = 7

// Service computes stats from storage.
type Service struct {
	store storage.Storage
	now   func() time.Time
}

// NewService creates a stats service.
func NewService(store storage.Storage) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

// Compute returns the current dashboard stats. Days are UTC days.
func (s *Service) Compute(ctx context.Context) (*domain.Stats, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	replied, notReplied := true, false

	totalComments, err := s.store.CountCommentLogs(ctx, domain.LogFilter{ReplySent: &replied})
	if err != nil {
		return nil, err
	}
	totalDMs, err := s.store.CountDMLogs(ctx, domain.LogFilter{Status: domain.DMStatusDelivered})
	if err != nil {
		return nil, err
	}
	activeRules, err := s.store.CountActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	todayComments, err := s.store.CountCommentLogs(ctx, domain.LogFilter{Since: today, ReplySent: &replied})
	if err != nil {
		return nil, err
	}
	todayDMs, err := s.store.CountDMLogs(ctx, domain.LogFilter{Since: today, Status: domain.DMStatusDelivered})
	if err != nil {
		return nil, err
	}
	failedComments, err := s.store.CountCommentLogs(ctx, domain.LogFilter{ReplySent: &notReplied})
	if err != nil {
		return nil, err
	}
	failedDMs, err := s.store.CountDMLogs(ctx, domain.LogFilter{Status: domain.DMStatusFailed})
	if err != nil {
		return nil, err
	}
	avgMS, err := s.store.AverageResponseMS(ctx, domain.LogFilter{})
	if err != nil {
		return nil, err
	}
	weekly, err := s.weekly(ctx, today)
	if err != nil {
		return nil, err
	}

	succeeded := totalComments + totalDMs
	failed := failedComments + failedDMs
	return &domain.Stats{
		TotalComments:   totalComments,
		TotalDMsSent:    totalDMs,
		ActiveRules:     activeRules,
		EngagementRate:  percent(totalDMs, totalComments),
		TodayComments:   todayComments,
		TodayDMsSent:    todayDMs,
		ResponseTimeAvg: round2(avgMS / 1000),
		SuccessRate:     percent(succeeded, succeeded+failed),
		FailedActions:   failed,
		WeeklyActivity:  weekly,
		TodayDate:       today.Format(time.DateOnly),
	}, nil
}

// weekly returns one point per day for the week ending today.
func (s *Service) weekly(ctx context.Context, today time.Time) ([]domain.DailyActivity, error) {
	points := make([]domain.DailyActivity, 0, WeekDays)
	for i := WeekDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		window := domain.LogFilter{Since: day, Until: day.AddDate(0, 0, 1)}
		comments, err := s.store.CountCommentLogs(ctx, window)
		if err != nil {
			return nil, err
		}
		dms, err := s.store.CountDMLogs(ctx, window)
		if err != nil {
			return nil, err
		}
		points = append(points, domain.DailyActivity{
			Date:     day.Format(time.DateOnly),
			Day:      day.Weekday().String()[:3],
			Comments: comments,
			DMs:      dms,
		})
	}
	return points, nil
}

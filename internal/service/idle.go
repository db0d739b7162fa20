package service

import (
	"context"
	"time"

	"github.com/talentflow-ai/be-hr-pipeline/internal/logger"
	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

// DefaultIdleThresholdDays is the stale-application cutoff used when the
// caller does not pass one.
const DefaultIdleThresholdDays = 7

// LastMeaningfulUpdate picks the timestamp that best represents the last
// movement on an application: its own update time, falling back to the
// latest scheduled date among its activities, falling back to its creation
// time.
func LastMeaningfulUpdate(app *repository.Application, activities []*repository.Activity) time.Time {
	if !app.UpdatedAt.IsZero() {
		return app.UpdatedAt
	}

	var scheduled time.Time
	for _, a := range activities {
		if a.ScheduledDate != nil && a.ScheduledDate.After(scheduled) {
			scheduled = *a.ScheduledDate
		}
	}
	if !scheduled.IsZero() {
		return scheduled
	}

	return app.CreatedAt
}

// DaysSinceLastUpdate returns whole days elapsed since the last meaningful
// update, measured against now.
func DaysSinceLastUpdate(app *repository.Application, activities []*repository.Activity, now time.Time) int {
	last := LastMeaningfulUpdate(app, activities)
	if last.IsZero() {
		return 0
	}
	days := int(now.Sub(last).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// IsIdle reports whether the application has sat untouched for at least
// thresholdDays.
func IsIdle(app *repository.Application, activities []*repository.Activity, now time.Time, thresholdDays int) bool {
	return DaysSinceLastUpdate(app, activities, now) >= thresholdDays
}

// IdleService flags applications whose pipelines have stalled.
type IdleService struct {
	activities ActivityStore
	apps       ApplicationStore
	log        *logger.Logger
}

// NewIdleService creates a new IdleService.
func NewIdleService(activities ActivityStore, apps ApplicationStore, log *logger.Logger) *IdleService {
	return &IdleService{activities: activities, apps: apps, log: log}
}

// IdleCheckResult describes one application's staleness.
type IdleCheckResult struct {
	ApplicationID      string
	Idle               bool
	DaysSinceUpdate    int
	LastMeaningfulDate *time.Time
}

// CheckApplication evaluates one application against the idle threshold.
// A non-positive thresholdDays falls back to the default.
func (s *IdleService) CheckApplication(ctx context.Context, applicationID string, thresholdDays int) (*IdleCheckResult, error) {
	if thresholdDays <= 0 {
		thresholdDays = DefaultIdleThresholdDays
	}

	app, err := s.apps.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	activities, err := s.activities.ListActivities(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &IdleCheckResult{
		ApplicationID:   applicationID,
		Idle:            IsIdle(app, activities, now, thresholdDays),
		DaysSinceUpdate: DaysSinceLastUpdate(app, activities, now),
	}
	if last := LastMeaningfulUpdate(app, activities); !last.IsZero() {
		result.LastMeaningfulDate = &last
	}
	return result, nil
}

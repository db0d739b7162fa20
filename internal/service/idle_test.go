package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

func TestLastMeaningfulUpdate_ResolutionOrder(t *testing.T) {
	updated := day(10)
	scheduled := day(20)
	created := day(5)

	// The application's own update time wins even when a scheduled date
	// lies further out.
	app := &repository.Application{CreatedAt: created, UpdatedAt: updated}
	activities := []*repository.Activity{{ScheduledDate: &scheduled}}
	require.True(t, LastMeaningfulUpdate(app, activities).Equal(updated))

	// Without an update, the latest scheduled date among the activities wins.
	app = &repository.Application{CreatedAt: created}
	earlier := day(12)
	activities = []*repository.Activity{
		{ScheduledDate: &earlier},
		{ScheduledDate: &scheduled},
		{},
	}
	require.True(t, LastMeaningfulUpdate(app, activities).Equal(scheduled))

	// No update, no dated activities: the application's creation time.
	require.True(t, LastMeaningfulUpdate(app, []*repository.Activity{{}, {}}).Equal(created))
	require.True(t, LastMeaningfulUpdate(app, nil).Equal(created))
}

func TestIsIdle_ThresholdBoundary(t *testing.T) {
	now := day(10)
	app := &repository.Application{CreatedAt: day(1), UpdatedAt: day(3)}

	// day 3 to day 10 is exactly seven days: idle at the default threshold.
	require.True(t, IsIdle(app, nil, now, DefaultIdleThresholdDays))
	require.False(t, IsIdle(app, nil, now, 8))
	require.Equal(t, 7, DaysSinceLastUpdate(app, nil, now))
}

func TestIsIdle_NoActivities(t *testing.T) {
	now := day(31)

	// An application that never got an activity still goes stale off its
	// own creation time.
	app := &repository.Application{CreatedAt: day(1)}
	require.True(t, IsIdle(app, nil, now, DefaultIdleThresholdDays))
	require.Equal(t, 30, DaysSinceLastUpdate(app, nil, now))

	app = &repository.Application{CreatedAt: day(30)}
	require.False(t, IsIdle(app, nil, now, DefaultIdleThresholdDays))
}

func TestIdleService_CheckApplication(t *testing.T) {
	f := newFixture(1)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-30 * 24 * time.Hour)
	f.apps.apps[testAppID].CreatedAt = stale
	scheduled := stale
	f.seedActivity(1, repository.ActivityScheduled, &scheduled)

	result, err := f.idle.CheckApplication(ctx, testAppID, 0)
	require.NoError(t, err)
	require.True(t, result.Idle)
	require.GreaterOrEqual(t, result.DaysSinceUpdate, 29)
	require.NotNil(t, result.LastMeaningfulDate)

	// A fresh touch on the application clears the flag even though the
	// activity dates stayed stale.
	f.apps.apps[testAppID].UpdatedAt = time.Now().UTC()
	result, err = f.idle.CheckApplication(ctx, testAppID, 0)
	require.NoError(t, err)
	require.False(t, result.Idle)
}

func TestIdleService_EmptyPipeline(t *testing.T) {
	f := newFixture(1)

	f.apps.apps[testAppID].CreatedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)

	result, err := f.idle.CheckApplication(context.Background(), testAppID, 0)
	require.NoError(t, err)
	require.True(t, result.Idle)
	require.GreaterOrEqual(t, result.DaysSinceUpdate, 29)
}

func TestIdleService_UnknownApplication(t *testing.T) {
	f := newFixture(1)

	_, err := f.idle.CheckApplication(context.Background(), "app-missing", 0)
	require.Error(t, err)
}

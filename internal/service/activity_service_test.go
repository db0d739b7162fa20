package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

func TestCreateActivity_FirstStep(t *testing.T) {
	f := newFixture(3)

	activity, err := f.activities.CreateActivity(context.Background(), &CreateActivityRequest{
		ApplicationID: testAppID,
		ProcessStepID: f.step(1).ID,
		ActivityType:  repository.ActivityTypeOnline,
		ScheduledDate: datePtr(day(1)),
		CreatedBy:     "recruiter-1",
	})
	require.NoError(t, err)
	require.Equal(t, repository.ActivityScheduled, activity.Status)
	require.Equal(t, 1, activity.StepOrder)
	require.Equal(t, "Screening", activity.StepName)
	require.NotEmpty(t, activity.ID)

	// Manual creation never advances the application by itself.
	require.Equal(t, repository.ApplicationSubmitted, f.appStatusNow())
	require.Contains(t, f.notifier.events, "activity_created")
}

func TestCreateActivity_DuplicateStep(t *testing.T) {
	f := newFixture(3)
	f.seedActivity(1, repository.ActivityScheduled, datePtr(day(1)))

	_, err := f.activities.CreateActivity(context.Background(), &CreateActivityRequest{
		ApplicationID: testAppID,
		ProcessStepID: f.step(1).ID,
		ActivityType:  repository.ActivityTypeOnline,
	})
	var dup *DuplicateStepError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "Screening", dup.StepName)
}

func TestCreateActivity_PredecessorMustExist(t *testing.T) {
	f := newFixture(3)

	// Step 2 on a fresh application: step 1 has no activity yet.
	_, err := f.activities.CreateActivity(context.Background(), &CreateActivityRequest{
		ApplicationID: testAppID,
		ProcessStepID: f.step(2).ID,
		ActivityType:  repository.ActivityTypeOnline,
	})
	var missing *PrecedingStepMissingError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "Screening", missing.StepName)
	require.Equal(t, 1, missing.StepOrder)
}

func TestCreateActivity_EarlierStepsMustBePassed(t *testing.T) {
	f := newFixture(3)
	f.seedActivity(1, repository.ActivityScheduled, datePtr(day(1)))
	f.seedActivity(2, repository.ActivityScheduled, datePtr(day(2)))

	// Step 3 requires step 1 to be passed, not merely present.
	_, err := f.activities.CreateActivity(context.Background(), &CreateActivityRequest{
		ApplicationID: testAppID,
		ProcessStepID: f.step(3).ID,
		ActivityType:  repository.ActivityTypeOnline,
	})
	var blocked *TransitionNotAllowedError
	require.ErrorAs(t, err, &blocked)
}

func TestCreateActivity_ScheduleOrderingEnforced(t *testing.T) {
	f := newFixture(3)
	f.seedActivity(1, repository.ActivityScheduled, datePtr(day(5)))

	_, err := f.activities.CreateActivity(context.Background(), &CreateActivityRequest{
		ApplicationID: testAppID,
		ProcessStepID: f.step(2).ID,
		ActivityType:  repository.ActivityTypeOnline,
		ScheduledDate: datePtr(day(3)),
	})
	var ordering *OrderingError
	require.ErrorAs(t, err, &ordering)
	require.Equal(t, "Screening", ordering.StepName)
	require.Equal(t, "before", ordering.Relation)
}

func TestCreateActivity_EqualDatesAllowed(t *testing.T) {
	f := newFixture(3)
	f.seedActivity(1, repository.ActivityScheduled, datePtr(day(5)))

	_, err := f.activities.CreateActivity(context.Background(), &CreateActivityRequest{
		ApplicationID: testAppID,
		ProcessStepID: f.step(2).ID,
		ActivityType:  repository.ActivityTypeOnline,
		ScheduledDate: datePtr(day(5)),
	})
	require.NoError(t, err)
}

func TestCreateActivity_InvalidType(t *testing.T) {
	f := newFixture(1)

	_, err := f.activities.CreateActivity(context.Background(), &CreateActivityRequest{
		ApplicationID: testAppID,
		ProcessStepID: f.step(1).ID,
		ActivityType:  "hybrid",
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "activity_type", validation.Field)
}

func TestCreateActivity_UnknownStep(t *testing.T) {
	f := newFixture(1)

	_, err := f.activities.CreateActivity(context.Background(), &CreateActivityRequest{
		ApplicationID: testAppID,
		ProcessStepID: "step-from-another-template",
		ActivityType:  repository.ActivityTypeOnline,
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestCreateActivity_ClosedApplication(t *testing.T) {
	f := newFixture(1)
	f.apps.apps[testAppID].Status = repository.ApplicationRejected

	_, err := f.activities.CreateActivity(context.Background(), &CreateActivityRequest{
		ApplicationID: testAppID,
		ProcessStepID: f.step(1).ID,
		ActivityType:  repository.ActivityTypeOnline,
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestTransition_RequiresSchedule(t *testing.T) {
	f := newFixture(1)
	a := f.seedActivity(1, repository.ActivityScheduled, nil)

	_, err := f.activities.TransitionActivity(context.Background(), &TransitionRequest{
		ApplicationID: testAppID,
		ActivityID:    a.ID,
		NewStatus:     repository.ActivityCompleted,
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "scheduled_date", validation.Field)
}

func TestTransition_CompleteAdvancesApplication(t *testing.T) {
	f := newFixture(2)
	a := f.seedActivity(1, repository.ActivityScheduled, datePtr(day(1)))

	result, err := f.activities.TransitionActivity(context.Background(), &TransitionRequest{
		ApplicationID: testAppID,
		ActivityID:    a.ID,
		NewStatus:     repository.ActivityCompleted,
		ActedBy:       "recruiter-1",
	})
	require.NoError(t, err)
	require.Equal(t, repository.ActivityCompleted, result.Activity.Status)
	require.NotNil(t, result.ApplicationAdvancedTo)
	require.Equal(t, repository.ApplicationInterviewing, *result.ApplicationAdvancedTo)
	require.Equal(t, repository.ApplicationInterviewing, f.appStatusNow())

	// A later completion must not re-advance an interviewing application.
	_, err = f.activities.TransitionActivity(context.Background(), &TransitionRequest{
		ApplicationID: testAppID,
		ActivityID:    a.ID,
		NewStatus:     repository.ActivityPassed,
	})
	require.NoError(t, err)

	step2 := f.seedActivity(2, repository.ActivityScheduled, datePtr(day(2)))
	result, err = f.activities.TransitionActivity(context.Background(), &TransitionRequest{
		ApplicationID: testAppID,
		ActivityID:    step2.ID,
		NewStatus:     repository.ActivityCompleted,
	})
	require.NoError(t, err)
	require.Nil(t, result.ApplicationAdvancedTo)
}

func TestTransition_CompletedGatedOnPredecessor(t *testing.T) {
	f := newFixture(2)
	f.seedActivity(1, repository.ActivityScheduled, datePtr(day(1)))
	step2 := f.seedActivity(2, repository.ActivityScheduled, datePtr(day(2)))

	_, err := f.activities.TransitionActivity(context.Background(), &TransitionRequest{
		ApplicationID: testAppID,
		ActivityID:    step2.ID,
		NewStatus:     repository.ActivityCompleted,
	})
	var blocked *TransitionNotAllowedError
	require.ErrorAs(t, err, &blocked)
}

func TestTransition_FailedRequiresNotes(t *testing.T) {
	f := newFixture(1)
	a := f.seedActivity(1, repository.ActivityCompleted, datePtr(day(1)))

	empty := "   "
	for _, notes := range []*string{nil, &empty} {
		_, err := f.activities.TransitionActivity(context.Background(), &TransitionRequest{
			ApplicationID: testAppID,
			ActivityID:    a.ID,
			NewStatus:     repository.ActivityFailed,
			Notes:         notes,
		})
		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
		require.Equal(t, "notes", validation.Field)
	}

	reason := "did not meet the bar"
	result, err := f.activities.TransitionActivity(context.Background(), &TransitionRequest{
		ApplicationID: testAppID,
		ActivityID:    a.ID,
		NewStatus:     repository.ActivityFailed,
		Notes:         &reason,
	})
	require.NoError(t, err)
	require.Equal(t, repository.ActivityFailed, result.Activity.Status)
}

func TestTransition_NoSkippingStates(t *testing.T) {
	f := newFixture(1)
	a := f.seedActivity(1, repository.ActivityScheduled, datePtr(day(1)))

	for _, target := range []repository.ActivityStatus{
		repository.ActivityPassed,
		repository.ActivityFailed,
		repository.ActivityNoShow,
	} {
		_, err := f.activities.TransitionActivity(context.Background(), &TransitionRequest{
			ApplicationID: testAppID,
			ActivityID:    a.ID,
			NewStatus:     target,
		})
		var blocked *TransitionNotAllowedError
		require.ErrorAs(t, err, &blocked, "scheduled must not jump to %s", target)
	}
}

func TestTransition_TerminalIsFinal(t *testing.T) {
	f := newFixture(1)
	a := f.seedActivity(1, repository.ActivityPassed, datePtr(day(1)))

	for _, target := range []repository.ActivityStatus{
		repository.ActivityScheduled,
		repository.ActivityCompleted,
		repository.ActivityFailed,
	} {
		_, err := f.activities.TransitionActivity(context.Background(), &TransitionRequest{
			ApplicationID: testAppID,
			ActivityID:    a.ID,
			NewStatus:     target,
		})
		var blocked *TransitionNotAllowedError
		require.ErrorAs(t, err, &blocked, "passed must reject %s", target)
	}
}

func TestTransition_WithdrawnApplicationFrozen(t *testing.T) {
	f := newFixture(1)
	a := f.seedActivity(1, repository.ActivityScheduled, datePtr(day(1)))
	f.apps.apps[testAppID].Status = repository.ApplicationWithdrawn

	_, err := f.activities.TransitionActivity(context.Background(), &TransitionRequest{
		ApplicationID: testAppID,
		ActivityID:    a.ID,
		NewStatus:     repository.ActivityCompleted,
	})
	var blocked *TransitionNotAllowedError
	require.ErrorAs(t, err, &blocked)
}

func TestTransition_UnknownStatus(t *testing.T) {
	f := newFixture(1)
	a := f.seedActivity(1, repository.ActivityScheduled, datePtr(day(1)))

	_, err := f.activities.TransitionActivity(context.Background(), &TransitionRequest{
		ApplicationID: testAppID,
		ActivityID:    a.ID,
		NewStatus:     "done",
	})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestFullPipeline_HiredCascade(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	hiredSeen := 0
	for i := 1; i <= 3; i++ {
		a, err := f.activities.CreateActivity(ctx, &CreateActivityRequest{
			ApplicationID: testAppID,
			ProcessStepID: f.step(i).ID,
			ActivityType:  repository.ActivityTypeOnline,
			ScheduledDate: datePtr(day(i)),
		})
		require.NoError(t, err)

		_, err = f.activities.TransitionActivity(ctx, &TransitionRequest{
			ApplicationID: testAppID,
			ActivityID:    a.ID,
			NewStatus:     repository.ActivityCompleted,
		})
		require.NoError(t, err)

		result, err := f.activities.TransitionActivity(ctx, &TransitionRequest{
			ApplicationID: testAppID,
			ActivityID:    a.ID,
			NewStatus:     repository.ActivityPassed,
		})
		require.NoError(t, err)

		if result.ApplicationAdvancedTo != nil && *result.ApplicationAdvancedTo == repository.ApplicationHired {
			hiredSeen++
			require.Equal(t, 3, i, "hired must fire on the last step only")
		}
	}

	require.Equal(t, 1, hiredSeen)
	require.Equal(t, repository.ApplicationHired, f.appStatusNow())

	events := 0
	for _, e := range f.notifier.events {
		if e == "application_hired" {
			events++
		}
	}
	require.Equal(t, 1, events)
}

func TestSetSchedule_NormalizesToUTC(t *testing.T) {
	f := newFixture(1)
	a := f.seedActivity(1, repository.ActivityScheduled, nil)

	loc := time.FixedZone("UTC+7", 7*3600)
	local := time.Date(2026, time.March, 10, 17, 0, 0, 0, loc)

	updated, err := f.activities.SetActivitySchedule(context.Background(), testAppID, a.ID, local, "recruiter-1")
	require.NoError(t, err)
	require.Equal(t, time.UTC, updated.ScheduledDate.Location())
	require.True(t, updated.ScheduledDate.Equal(local))
}

func TestSetSchedule_FrozenAfterProgress(t *testing.T) {
	f := newFixture(1)
	a := f.seedActivity(1, repository.ActivityCompleted, datePtr(day(1)))

	_, err := f.activities.SetActivitySchedule(context.Background(), testAppID, a.ID, day(2), "")
	var blocked *TransitionNotAllowedError
	require.ErrorAs(t, err, &blocked)
}

func TestSetSchedule_GapBlocksScheduling(t *testing.T) {
	f := newFixture(3)
	f.seedActivity(1, repository.ActivityPassed, datePtr(day(1)))
	step3 := f.seedActivity(3, repository.ActivityScheduled, nil)

	_, err := f.activities.SetActivitySchedule(context.Background(), testAppID, step3.ID, day(5), "")
	var missing *PrecedingStepMissingError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "Technical Interview", missing.StepName)
}

func TestSetSchedule_OrderingBothSides(t *testing.T) {
	f := newFixture(3)
	f.seedActivity(1, repository.ActivityScheduled, datePtr(day(2)))
	step2 := f.seedActivity(2, repository.ActivityScheduled, nil)
	f.seedActivity(3, repository.ActivityScheduled, datePtr(day(8)))

	_, err := f.activities.SetActivitySchedule(context.Background(), testAppID, step2.ID, day(1), "")
	var ordering *OrderingError
	require.ErrorAs(t, err, &ordering)
	require.Equal(t, "before", ordering.Relation)

	_, err = f.activities.SetActivitySchedule(context.Background(), testAppID, step2.ID, day(9), "")
	require.ErrorAs(t, err, &ordering)
	require.Equal(t, "after", ordering.Relation)

	_, err = f.activities.SetActivitySchedule(context.Background(), testAppID, step2.ID, day(5), "")
	require.NoError(t, err)
}

func TestProposeSchedule(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	// First step proposes roughly now.
	proposed, err := f.activities.ProposeSchedule(ctx, testAppID, f.step(1).ID)
	require.NoError(t, err)
	require.NotNil(t, proposed)
	require.WithinDuration(t, time.Now().UTC(), *proposed, 5*time.Second)

	// Later steps follow a dated predecessor by one minute.
	f.seedActivity(1, repository.ActivityScheduled, datePtr(day(4)))
	proposed, err = f.activities.ProposeSchedule(ctx, testAppID, f.step(2).ID)
	require.NoError(t, err)
	require.NotNil(t, proposed)
	require.True(t, proposed.Equal(day(4).Add(time.Minute)))

	// No dated predecessor, no proposal.
	f.seedActivity(2, repository.ActivityScheduled, nil)
	proposed, err = f.activities.ProposeSchedule(ctx, testAppID, f.step(3).ID)
	require.NoError(t, err)
	require.Nil(t, proposed)
}

func TestDeleteActivity(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	step1 := f.seedActivity(1, repository.ActivityPassed, datePtr(day(1)))
	step2 := f.seedActivity(2, repository.ActivityScheduled, datePtr(day(2)))

	// Progressed activities never go.
	err := f.activities.DeleteActivity(ctx, testAppID, step1.ID, "recruiter-1")
	var progress *HasProgressError
	require.ErrorAs(t, err, &progress)

	// The trailing scheduled one does.
	require.NoError(t, f.activities.DeleteActivity(ctx, testAppID, step2.ID, "recruiter-1"))

	remaining, err := f.activities.ListActivities(ctx, testAppID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestDeleteActivity_MiddleBlocked(t *testing.T) {
	f := newFixture(3)
	step1 := f.seedActivity(1, repository.ActivityScheduled, datePtr(day(1)))
	f.seedActivity(2, repository.ActivityScheduled, datePtr(day(2)))

	err := f.activities.DeleteActivity(context.Background(), testAppID, step1.ID, "")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestBulkDelete(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()

	f.seedActivity(1, repository.ActivityScheduled, datePtr(day(1)))
	f.seedActivity(2, repository.ActivityScheduled, nil)

	removed, err := f.activities.BulkDeleteActivities(ctx, testAppID, "recruiter-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	remaining, err := f.activities.ListActivities(ctx, testAppID)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestBulkDelete_AnyProgressBlocks(t *testing.T) {
	f := newFixture(3)
	f.seedActivity(1, repository.ActivityCompleted, datePtr(day(1)))
	f.seedActivity(2, repository.ActivityScheduled, datePtr(day(2)))

	_, err := f.activities.BulkDeleteActivities(context.Background(), testAppID, "")
	var progress *HasProgressError
	require.ErrorAs(t, err, &progress)
	require.Equal(t, "Screening", progress.StepName)

	// Nothing was deleted.
	remaining, err := f.activities.ListActivities(context.Background(), testAppID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

func TestGetActivityHistory(t *testing.T) {
	f := newFixture(1)
	ctx := context.Background()

	a, err := f.activities.CreateActivity(ctx, &CreateActivityRequest{
		ApplicationID: testAppID,
		ProcessStepID: f.step(1).ID,
		ActivityType:  repository.ActivityTypeOnline,
		ScheduledDate: datePtr(day(1)),
		CreatedBy:     "recruiter-1",
	})
	require.NoError(t, err)

	_, err = f.activities.TransitionActivity(ctx, &TransitionRequest{
		ApplicationID: testAppID,
		ActivityID:    a.ID,
		NewStatus:     repository.ActivityCompleted,
		ActedBy:       "recruiter-1",
	})
	require.NoError(t, err)

	history, err := f.activities.GetActivityHistory(ctx, testAppID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	require.Equal(t, "created", history[0].Action)
}

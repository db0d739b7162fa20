package service

import (
	"context"
	"fmt"
	"time"

	"github.com/talentflow-ai/be-hr-pipeline/internal/logger"
	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

// ActivityService is the activity state machine: it validates and applies
// creation, status transitions and schedule edits for single activities,
// enforcing ordering against sibling activities of the same application.
type ActivityService struct {
	activities ActivityStore
	apps       ApplicationStore
	audit      AuditStore
	catalog    CatalogClientInterface
	status     *ApplicationStatusService
	notifier   NotificationPublisherInterface
	log        *logger.Logger
}

// NewActivityService creates a new ActivityService.
func NewActivityService(
	activities ActivityStore,
	apps ApplicationStore,
	audit AuditStore,
	catalog CatalogClientInterface,
	status *ApplicationStatusService,
	notifier NotificationPublisherInterface,
	log *logger.Logger,
) *ActivityService {
	return &ActivityService{
		activities: activities,
		apps:       apps,
		audit:      audit,
		catalog:    catalog,
		status:     status,
		notifier:   notifier,
		log:        log,
	}
}

// CreateActivityRequest represents a manual activity creation.
type CreateActivityRequest struct {
	ApplicationID string
	ProcessStepID string
	ActivityType  repository.ActivityType
	ScheduledDate *time.Time
	Notes         *string
	CreatedBy     string
}

// TransitionRequest represents a status change attempt on one activity.
type TransitionRequest struct {
	ApplicationID string
	ActivityID    string
	NewStatus     repository.ActivityStatus
	Notes         *string
	ActedBy       string
}

// TransitionResult reports the applied transition and any cascade on the
// parent application, so callers never re-derive the cascade themselves.
type TransitionResult struct {
	Activity              *repository.Activity
	ApplicationAdvancedTo *repository.ApplicationStatus
}

// CreateActivity creates one activity for a step of the application's
// process template.
func (s *ActivityService) CreateActivity(ctx context.Context, req *CreateActivityRequest) (*repository.Activity, error) {
	if req.ActivityType != repository.ActivityTypeOnline && req.ActivityType != repository.ActivityTypeOffline {
		return nil, &ValidationError{Field: "activity_type", Message: "must be online or offline"}
	}

	app, steps, err := s.loadPipeline(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !app.Status.AcceptsActivityWrites() {
		return nil, &ValidationError{
			Field:   "application_status",
			Message: fmt.Sprintf("application in status %q does not accept new activities", app.Status),
		}
	}

	step := findStep(steps, req.ProcessStepID)
	if step == nil {
		return nil, &ValidationError{
			Field:   "process_step_id",
			Message: "step does not belong to the application's process template",
		}
	}

	var date *time.Time
	if req.ScheduledDate != nil {
		utc := req.ScheduledDate.UTC()
		date = &utc
	}

	activity := &repository.Activity{
		ApplicationID: req.ApplicationID,
		ProcessStepID: step.ID,
		StepOrder:     step.StepOrder,
		StepName:      step.StepName,
		ActivityType:  req.ActivityType,
		Status:        repository.ActivityScheduled,
		ScheduledDate: date,
		Notes:         req.Notes,
	}

	err = s.activities.WithApplicationLock(ctx, req.ApplicationID, func(ctx context.Context, tx repository.ActivityTx) error {
		siblings, err := tx.ListActivities(ctx, req.ApplicationID)
		if err != nil {
			return err
		}
		byStep := activitiesByStep(siblings)

		if byStep[step.ID] != nil {
			return &DuplicateStepError{StepName: step.StepName}
		}
		if err := canCreateStep(steps, byStep, step); err != nil {
			return err
		}
		if date != nil {
			if err := checkScheduleOrdering(siblings, step.StepOrder, *date); err != nil {
				return err
			}
		}

		return tx.CreateActivity(ctx, activity)
	})
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.ActivityAuditEntry{
		ApplicationID: req.ApplicationID,
		ActivityID:    &activity.ID,
		ProcessStepID: &step.ID,
		Action:        "created",
		StatusAfter:   statusPtr(activity.Status),
		PerformedBy:   req.CreatedBy,
		Metadata:      map[string]interface{}{"step_name": step.StepName, "step_order": step.StepOrder},
	})
	s.notifier.PublishActivityEvent(ctx, "activity_created", req.ApplicationID, activity.ID, req.CreatedBy,
		map[string]interface{}{"step_name": step.StepName})

	s.log.Info().
		Str("application_id", req.ApplicationID).
		Str("activity_id", activity.ID).
		Str("step_name", step.StepName).
		Msg("Activity created")

	return activity, nil
}

// TransitionActivity applies one status transition, running the application
// cascades as side effects inside the same critical section.
func (s *ActivityService) TransitionActivity(ctx context.Context, req *TransitionRequest) (*TransitionResult, error) {
	if !req.NewStatus.Valid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", req.NewStatus)}
	}

	app, steps, err := s.loadPipeline(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status == repository.ApplicationWithdrawn {
		return nil, &TransitionNotAllowedError{
			Requested: req.NewStatus,
			Reason:    "application is withdrawn; its activities accept no transitions",
		}
	}

	result := &TransitionResult{}
	var previous repository.ActivityStatus

	err = s.activities.WithApplicationLock(ctx, req.ApplicationID, func(ctx context.Context, tx repository.ActivityTx) error {
		siblings, err := tx.ListActivities(ctx, req.ApplicationID)
		if err != nil {
			return err
		}

		activity := findActivity(siblings, req.ActivityID)
		if activity == nil {
			return errNotFoundActivity(req.ActivityID)
		}

		if !activity.Status.CanTransitionTo(req.NewStatus) {
			return &TransitionNotAllowedError{Current: activity.Status, Requested: req.NewStatus}
		}
		if activity.ScheduledDate == nil {
			return &ValidationError{Field: "scheduled_date", Message: "schedule required"}
		}

		if req.NewStatus == repository.ActivityCompleted {
			if err := checkCompletionGating(steps, activitiesByStep(siblings), activity.ProcessStepID); err != nil {
				return err
			}
		}
		if req.NewStatus == repository.ActivityFailed && emptyNotes(req.Notes) {
			return &ValidationError{Field: "notes", Message: "a reason is required when failing an activity"}
		}

		if err := tx.UpdateActivityStatus(ctx, activity.ID, req.NewStatus, req.Notes); err != nil {
			return err
		}

		previous = activity.Status
		activity.Status = req.NewStatus
		if req.Notes != nil {
			activity.Notes = req.Notes
		}
		result.Activity = activity

		switch req.NewStatus {
		case repository.ActivityCompleted:
			advanced, err := s.status.markInterviewing(ctx, app, req.ActedBy)
			if err != nil {
				return err
			}
			result.ApplicationAdvancedTo = advanced
		case repository.ActivityPassed:
			advanced, err := s.status.maybeHire(ctx, app, steps, siblings, req.ActedBy)
			if err != nil {
				return err
			}
			result.ApplicationAdvancedTo = advanced
		}

		s.log.Info().
			Str("application_id", req.ApplicationID).
			Str("activity_id", activity.ID).
			Str("step_name", activity.StepName).
			Str("from", string(previous)).
			Str("to", string(req.NewStatus)).
			Msg("Activity transitioned")

		return nil
	})
	if err != nil {
		return nil, err
	}

	before := string(previous)
	s.appendAudit(ctx, &repository.ActivityAuditEntry{
		ApplicationID: req.ApplicationID,
		ActivityID:    &result.Activity.ID,
		ProcessStepID: &result.Activity.ProcessStepID,
		Action:        "transitioned",
		StatusBefore:  &before,
		StatusAfter:   statusPtr(req.NewStatus),
		PerformedBy:   req.ActedBy,
		Metadata:      map[string]interface{}{"step_name": result.Activity.StepName},
	})
	s.notifier.PublishActivityEvent(ctx, "activity_"+string(req.NewStatus), req.ApplicationID, result.Activity.ID, req.ActedBy,
		map[string]interface{}{"step_name": result.Activity.StepName})

	return result, nil
}

// SetActivitySchedule sets or changes the scheduled date of an activity.
// Dates are normalized to UTC before any comparison or persistence.
func (s *ActivityService) SetActivitySchedule(ctx context.Context, applicationID, activityID string, newDate time.Time, actedBy string) (*repository.Activity, error) {
	newDate = newDate.UTC()

	app, steps, err := s.loadPipeline(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !app.Status.AcceptsActivityWrites() {
		return nil, &TransitionNotAllowedError{
			Reason: fmt.Sprintf("application in status %q does not accept schedule edits", app.Status),
		}
	}

	var updated *repository.Activity

	err = s.activities.WithApplicationLock(ctx, applicationID, func(ctx context.Context, tx repository.ActivityTx) error {
		siblings, err := tx.ListActivities(ctx, applicationID)
		if err != nil {
			return err
		}

		activity := findActivity(siblings, activityID)
		if activity == nil {
			return errNotFoundActivity(activityID)
		}
		if activity.Status != repository.ActivityScheduled {
			return &TransitionNotAllowedError{
				Current: activity.Status,
				Reason:  fmt.Sprintf("schedule is frozen once an activity reaches %q", activity.Status),
			}
		}

		// A gap before this step blocks scheduling even before any
		// status work begins.
		if prev := precedingStep(steps, activity.ProcessStepID); prev != nil {
			if activitiesByStep(siblings)[prev.ID] == nil {
				return &PrecedingStepMissingError{StepName: prev.StepName, StepOrder: prev.StepOrder}
			}
		}

		others := make([]*repository.Activity, 0, len(siblings)-1)
		for _, a := range siblings {
			if a.ID != activityID {
				others = append(others, a)
			}
		}
		if err := checkScheduleOrdering(others, activity.StepOrder, newDate); err != nil {
			return err
		}

		if err := tx.UpdateActivitySchedule(ctx, activityID, newDate); err != nil {
			return err
		}

		activity.ScheduledDate = &newDate
		updated = activity
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.ActivityAuditEntry{
		ApplicationID: applicationID,
		ActivityID:    &updated.ID,
		ProcessStepID: &updated.ProcessStepID,
		Action:        "schedule_set",
		PerformedBy:   actedBy,
		Metadata: map[string]interface{}{
			"step_name":      updated.StepName,
			"scheduled_date": newDate.Format(time.RFC3339),
		},
	})
	s.notifier.PublishActivityEvent(ctx, "activity_scheduled", applicationID, updated.ID, actedBy,
		map[string]interface{}{"step_name": updated.StepName, "scheduled_date": newDate.Format(time.RFC3339)})

	return updated, nil
}

// ProposeSchedule suggests a default date for a step with no schedule yet:
// now for the first step, the preceding step's date plus one minute when that
// date exists, otherwise nothing. Non-binding convenience for edit forms.
func (s *ActivityService) ProposeSchedule(ctx context.Context, applicationID, processStepID string) (*time.Time, error) {
	_, steps, err := s.loadPipeline(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	step := findStep(steps, processStepID)
	if step == nil {
		return nil, &ValidationError{
			Field:   "process_step_id",
			Message: "step does not belong to the application's process template",
		}
	}

	prev := precedingStep(steps, processStepID)
	if prev == nil {
		now := time.Now().UTC()
		return &now, nil
	}

	siblings, err := s.activities.ListActivities(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if prevActivity := activitiesByStep(siblings)[prev.ID]; prevActivity != nil && prevActivity.ScheduledDate != nil {
		proposed := prevActivity.ScheduledDate.Add(time.Minute)
		return &proposed, nil
	}

	return nil, nil
}

// DeleteActivity removes a single activity. Only a still-scheduled activity
// at the end of the pipeline can go: removing one from the middle would leave
// a gap in front of already-created later steps.
func (s *ActivityService) DeleteActivity(ctx context.Context, applicationID, activityID, actedBy string) error {
	var deleted *repository.Activity

	err := s.activities.WithApplicationLock(ctx, applicationID, func(ctx context.Context, tx repository.ActivityTx) error {
		siblings, err := tx.ListActivities(ctx, applicationID)
		if err != nil {
			return err
		}

		activity := findActivity(siblings, activityID)
		if activity == nil {
			return errNotFoundActivity(activityID)
		}
		if activity.Status != repository.ActivityScheduled {
			return &HasProgressError{StepName: activity.StepName, Status: activity.Status}
		}
		for _, a := range siblings {
			if a.StepOrder > activity.StepOrder {
				return &ValidationError{
					Field:   "activity",
					Message: fmt.Sprintf("cannot delete activity for step %q while a later step has one", activity.StepName),
				}
			}
		}

		if err := tx.DeleteActivity(ctx, activityID); err != nil {
			return err
		}
		deleted = activity
		return nil
	})
	if err != nil {
		return err
	}

	s.appendAudit(ctx, &repository.ActivityAuditEntry{
		ApplicationID: applicationID,
		ActivityID:    &deleted.ID,
		ProcessStepID: &deleted.ProcessStepID,
		Action:        "deleted",
		StatusBefore:  statusPtr(deleted.Status),
		PerformedBy:   actedBy,
		Metadata:      map[string]interface{}{"step_name": deleted.StepName},
	})

	return nil
}

// BulkDeleteActivities rewinds an application by deleting all of its
// activities, allowed only while none of them has left the scheduled status.
func (s *ActivityService) BulkDeleteActivities(ctx context.Context, applicationID, actedBy string) (int64, error) {
	var removed int64

	err := s.activities.WithApplicationLock(ctx, applicationID, func(ctx context.Context, tx repository.ActivityTx) error {
		siblings, err := tx.ListActivities(ctx, applicationID)
		if err != nil {
			return err
		}
		for _, a := range siblings {
			if a.Status != repository.ActivityScheduled {
				return &HasProgressError{StepName: a.StepName, Status: a.Status}
			}
		}

		removed, err = tx.DeleteActivities(ctx, applicationID)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.appendAudit(ctx, &repository.ActivityAuditEntry{
		ApplicationID: applicationID,
		Action:        "bulk_deleted",
		PerformedBy:   actedBy,
		Metadata:      map[string]interface{}{"removed": removed},
	})

	s.log.Info().
		Str("application_id", applicationID).
		Int64("removed", removed).
		Msg("Activities bulk deleted")

	return removed, nil
}

// ListActivities returns the activities of an application in step order.
func (s *ActivityService) ListActivities(ctx context.Context, applicationID string) ([]*repository.Activity, error) {
	return s.activities.ListActivities(ctx, applicationID)
}

// GetActivityHistory returns the full audit trail for an application.
func (s *ActivityService) GetActivityHistory(ctx context.Context, applicationID string) ([]*repository.ActivityAuditEntry, error) {
	return s.audit.ListByApplication(ctx, applicationID)
}

// loadPipeline resolves an application together with the ordered steps of
// its job request's process template.
func (s *ActivityService) loadPipeline(ctx context.Context, applicationID string) (*repository.Application, []*repository.ProcessStep, error) {
	return loadPipeline(ctx, s.apps, s.catalog, applicationID)
}

// appendAudit writes an audit entry, logging a warning on failure.
func (s *ActivityService) appendAudit(ctx context.Context, entry *repository.ActivityAuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("application_id", entry.ApplicationID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

// ── shared pipeline helpers ──────────────────────────────────────────────────

func loadPipeline(ctx context.Context, apps ApplicationStore, catalog CatalogClientInterface, applicationID string) (*repository.Application, []*repository.ProcessStep, error) {
	app, err := apps.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}
	jobRequest, err := apps.GetJobRequest(ctx, app.JobRequestID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := catalog.ListSteps(ctx, jobRequest.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	return app, steps, nil
}

func findStep(steps []*repository.ProcessStep, stepID string) *repository.ProcessStep {
	for _, s := range steps {
		if s.ID == stepID {
			return s
		}
	}
	return nil
}

// precedingStep returns the step immediately before the given one, or nil
// for the first step.
func precedingStep(steps []*repository.ProcessStep, stepID string) *repository.ProcessStep {
	for i, s := range steps {
		if s.ID == stepID {
			if i == 0 {
				return nil
			}
			return steps[i-1]
		}
	}
	return nil
}

func findActivity(activities []*repository.Activity, id string) *repository.Activity {
	for _, a := range activities {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func activitiesByStep(activities []*repository.Activity) map[string]*repository.Activity {
	byStep := make(map[string]*repository.Activity, len(activities))
	for _, a := range activities {
		byStep[a.ProcessStepID] = a
	}
	return byStep
}

// canCreateStep is the creation gate shared by manual creation and the
// auto-provisioner: step k needs its predecessor's activity to exist, and
// every step before that predecessor to be passed. A fresh application can
// therefore hold activities for the first two steps at most until work
// starts passing.
func canCreateStep(steps []*repository.ProcessStep, byStep map[string]*repository.Activity, target *repository.ProcessStep) error {
	idx := -1
	for i, s := range steps {
		if s.ID == target.ID {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return nil
	}

	prev := steps[idx-1]
	if byStep[prev.ID] == nil {
		return &PrecedingStepMissingError{StepName: prev.StepName, StepOrder: prev.StepOrder}
	}

	for _, s := range steps[:idx-1] {
		a := byStep[s.ID]
		if a == nil || a.Status != repository.ActivityPassed {
			return &TransitionNotAllowedError{
				Reason: fmt.Sprintf("step %q must be passed before an activity for %q can be created", s.StepName, target.StepName),
			}
		}
	}

	return nil
}

// checkCompletionGating enforces that an activity may complete only when it
// is the first step or its immediate predecessor has passed.
func checkCompletionGating(steps []*repository.ProcessStep, byStep map[string]*repository.Activity, stepID string) error {
	prev := precedingStep(steps, stepID)
	if prev == nil {
		return nil
	}

	prevActivity := byStep[prev.ID]
	if prevActivity == nil || prevActivity.Status != repository.ActivityPassed {
		return &TransitionNotAllowedError{
			Requested: repository.ActivityCompleted,
			Reason:    fmt.Sprintf("preceding step %q is not yet passed", prev.StepName),
		}
	}
	return nil
}

// checkScheduleOrdering validates a candidate date against the nearest dated
// sibling on each side. Both bounds are inclusive: equal dates are fine.
func checkScheduleOrdering(siblings []*repository.Activity, stepOrder int, date time.Time) error {
	var before, after *repository.Activity
	for _, a := range siblings {
		if a.ScheduledDate == nil {
			continue
		}
		if a.StepOrder < stepOrder && (before == nil || a.StepOrder > before.StepOrder) {
			before = a
		}
		if a.StepOrder > stepOrder && (after == nil || a.StepOrder < after.StepOrder) {
			after = a
		}
	}

	if before != nil && date.Before(*before.ScheduledDate) {
		return &OrderingError{
			StepName:  before.StepName,
			StepDate:  *before.ScheduledDate,
			Requested: date,
			Relation:  "before",
		}
	}
	if after != nil && date.After(*after.ScheduledDate) {
		return &OrderingError{
			StepName:  after.StepName,
			StepDate:  *after.ScheduledDate,
			Requested: date,
			Relation:  "after",
		}
	}
	return nil
}

func statusPtr(s repository.ActivityStatus) *string {
	v := string(s)
	return &v
}

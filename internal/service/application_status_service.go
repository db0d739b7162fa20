package service

import (
	"context"
	"fmt"

	"github.com/talentflow-ai/be-hr-pipeline/internal/logger"
	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

// ApplicationStatusService owns the cascades between activity outcomes and
// the parent application's status. The application rows themselves belong to
// the application command service; every write goes through its API.
type ApplicationStatusService struct {
	activities ActivityStore
	apps       ApplicationStore
	audit      AuditStore
	catalog    CatalogClientInterface
	appCommand ApplicationCommandClientInterface
	notifier   NotificationPublisherInterface
	log        *logger.Logger
}

// NewApplicationStatusService creates a new ApplicationStatusService.
func NewApplicationStatusService(
	activities ActivityStore,
	apps ApplicationStore,
	audit AuditStore,
	catalog CatalogClientInterface,
	appCommand ApplicationCommandClientInterface,
	notifier NotificationPublisherInterface,
	log *logger.Logger,
) *ApplicationStatusService {
	return &ApplicationStatusService{
		activities: activities,
		apps:       apps,
		audit:      audit,
		catalog:    catalog,
		appCommand: appCommand,
		notifier:   notifier,
		log:        log,
	}
}

// WithdrawalResult reports the outcome of a withdrawal cascade.
type WithdrawalResult struct {
	ApplicationStatus repository.ApplicationStatus
	NoShowActivities  []string
	FailedActivities  []string
}

// WithdrawApplication marks the application withdrawn and cascades the
// terminal statuses onto its open activities. Replaying a withdrawal is
// harmless: an already-withdrawn application only re-runs the (idempotent)
// activity cascade.
func (s *ApplicationStatusService) WithdrawApplication(ctx context.Context, applicationID, reason, actedBy string) (*WithdrawalResult, error) {
	app, err := s.apps.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	switch app.Status {
	case repository.ApplicationSubmitted, repository.ApplicationInterviewing, repository.ApplicationWithdrawn:
	default:
		return nil, &ValidationError{
			Field:   "application_status",
			Message: fmt.Sprintf("application in status %q cannot be withdrawn", app.Status),
		}
	}

	result := &WithdrawalResult{ApplicationStatus: repository.ApplicationWithdrawn}

	err = s.activities.WithApplicationLock(ctx, applicationID, func(ctx context.Context, tx repository.ActivityTx) error {
		if app.Status != repository.ApplicationWithdrawn {
			if err := s.appCommand.UpdateApplicationStatus(ctx, applicationID, repository.ApplicationWithdrawn); err != nil {
				return err
			}
			app.Status = repository.ApplicationWithdrawn
		}
		noShow, failed, err := s.cascadeWithdrawal(ctx, tx, applicationID, reason)
		if err != nil {
			return err
		}
		result.NoShowActivities = noShow
		result.FailedActivities = failed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.ActivityAuditEntry{
		ApplicationID: applicationID,
		Action:        "withdrawn",
		StatusAfter:   appStatusPtr(repository.ApplicationWithdrawn),
		PerformedBy:   actedBy,
		Metadata: map[string]interface{}{
			"reason":  reason,
			"no_show": len(result.NoShowActivities),
			"failed":  len(result.FailedActivities),
		},
	})
	s.notifier.PublishActivityEvent(ctx, "application_withdrawn", applicationID, applicationID, actedBy,
		map[string]interface{}{"reason": reason})

	s.log.Info().
		Str("application_id", applicationID).
		Int("no_show", len(result.NoShowActivities)).
		Int("failed", len(result.FailedActivities)).
		Msg("Application withdrawn")

	return result, nil
}

// cascadeWithdrawal closes the open activities of a withdrawn application:
// scheduled ones become no-shows, completed ones fail with the withdrawal
// reason. Activities already terminal keep their outcome.
func (s *ApplicationStatusService) cascadeWithdrawal(ctx context.Context, tx repository.ActivityTx, applicationID, reason string) (noShow, failed []string, err error) {
	activities, err := tx.ListActivities(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}

	notes := "application withdrawn"
	if reason != "" {
		notes = "application withdrawn: " + reason
	}

	for _, a := range activities {
		switch a.Status {
		case repository.ActivityScheduled:
			if err := tx.UpdateActivityStatus(ctx, a.ID, repository.ActivityNoShow, nil); err != nil {
				return nil, nil, err
			}
			noShow = append(noShow, a.ID)
		case repository.ActivityCompleted:
			if err := tx.UpdateActivityStatus(ctx, a.ID, repository.ActivityFailed, &notes); err != nil {
				return nil, nil, err
			}
			failed = append(failed, a.ID)
		}
	}
	return noShow, failed, nil
}

// RecomputeHiredIfEligible re-runs the hired check for an application,
// useful after out-of-band repairs. Returns the new status when a cascade
// fired, nil otherwise.
func (s *ApplicationStatusService) RecomputeHiredIfEligible(ctx context.Context, applicationID, actedBy string) (*repository.ApplicationStatus, error) {
	app, steps, err := loadPipeline(ctx, s.apps, s.catalog, applicationID)
	if err != nil {
		return nil, err
	}

	var advanced *repository.ApplicationStatus
	err = s.activities.WithApplicationLock(ctx, applicationID, func(ctx context.Context, tx repository.ActivityTx) error {
		activities, err := tx.ListActivities(ctx, applicationID)
		if err != nil {
			return err
		}
		advanced, err = s.maybeHire(ctx, app, steps, activities, actedBy)
		return err
	})
	if err != nil {
		return nil, err
	}
	return advanced, nil
}

// markInterviewing advances a submitted application to interviewing. Called
// inside the application lock when the first activity completes, and by the
// provisioner when it seeds the first activity.
func (s *ApplicationStatusService) markInterviewing(ctx context.Context, app *repository.Application, actedBy string) (*repository.ApplicationStatus, error) {
	if app.Status != repository.ApplicationSubmitted {
		return nil, nil
	}
	if err := s.appCommand.UpdateApplicationStatus(ctx, app.ID, repository.ApplicationInterviewing); err != nil {
		return nil, err
	}
	app.Status = repository.ApplicationInterviewing

	s.appendAudit(ctx, &repository.ActivityAuditEntry{
		ApplicationID: app.ID,
		Action:        "application_advanced",
		StatusBefore:  appStatusPtr(repository.ApplicationSubmitted),
		StatusAfter:   appStatusPtr(repository.ApplicationInterviewing),
		PerformedBy:   actedBy,
	})

	status := repository.ApplicationInterviewing
	return &status, nil
}

// maybeHire advances an interviewing application to hired once every step of
// its template has a passed activity. Called inside the application lock.
func (s *ApplicationStatusService) maybeHire(ctx context.Context, app *repository.Application, steps []*repository.ProcessStep, activities []*repository.Activity, actedBy string) (*repository.ApplicationStatus, error) {
	if app.Status != repository.ApplicationInterviewing {
		return nil, nil
	}
	if !allStepsPassed(steps, activitiesByStep(activities)) {
		return nil, nil
	}

	if err := s.appCommand.UpdateApplicationStatus(ctx, app.ID, repository.ApplicationHired); err != nil {
		return nil, err
	}
	app.Status = repository.ApplicationHired

	s.appendAudit(ctx, &repository.ActivityAuditEntry{
		ApplicationID: app.ID,
		Action:        "application_advanced",
		StatusBefore:  appStatusPtr(repository.ApplicationInterviewing),
		StatusAfter:   appStatusPtr(repository.ApplicationHired),
		PerformedBy:   actedBy,
	})
	s.notifier.PublishActivityEvent(ctx, "application_hired", app.ID, app.ID, actedBy, nil)

	s.log.Info().
		Str("application_id", app.ID).
		Msg("Application hired")

	status := repository.ApplicationHired
	return &status, nil
}

func (s *ApplicationStatusService) appendAudit(ctx context.Context, entry *repository.ActivityAuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("application_id", entry.ApplicationID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

// allStepsPassed reports whether every template step has a passed activity.
// An empty template never qualifies.
func allStepsPassed(steps []*repository.ProcessStep, byStep map[string]*repository.Activity) bool {
	if len(steps) == 0 {
		return false
	}
	for _, step := range steps {
		a := byStep[step.ID]
		if a == nil || a.Status != repository.ActivityPassed {
			return false
		}
	}
	return true
}

func appStatusPtr(s repository.ApplicationStatus) *string {
	v := string(s)
	return &v
}

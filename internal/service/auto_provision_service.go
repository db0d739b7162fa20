package service

import (
	"context"

	"github.com/talentflow-ai/be-hr-pipeline/internal/logger"
	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

// AutoProvisionService walks an application's process template and creates
// the activities the creation gate currently allows, stopping at the first
// step it cannot create yet. Running it repeatedly is safe: covered steps
// are skipped and a second run with no eligible steps creates nothing.
type AutoProvisionService struct {
	activities ActivityStore
	apps       ApplicationStore
	audit      AuditStore
	catalog    CatalogClientInterface
	status     *ApplicationStatusService
	notifier   NotificationPublisherInterface
	log        *logger.Logger
}

// NewAutoProvisionService creates a new AutoProvisionService.
func NewAutoProvisionService(
	activities ActivityStore,
	apps ApplicationStore,
	audit AuditStore,
	catalog CatalogClientInterface,
	status *ApplicationStatusService,
	notifier NotificationPublisherInterface,
	log *logger.Logger,
) *AutoProvisionService {
	return &AutoProvisionService{
		activities: activities,
		apps:       apps,
		audit:      audit,
		catalog:    catalog,
		status:     status,
		notifier:   notifier,
		log:        log,
	}
}

// ProvisionResult reports what a provisioning run did.
type ProvisionResult struct {
	Created               []*repository.Activity
	StoppedAtStep         *repository.ProcessStep
	ApplicationAdvancedTo *repository.ApplicationStatus
}

// AutoCreateActivities provisions activities for every template step the
// gate allows, in template order, inside a single application lock. When the
// run seeds the application's first activity ever, the application advances
// from submitted to interviewing.
func (s *AutoProvisionService) AutoCreateActivities(ctx context.Context, applicationID, actedBy string) (*ProvisionResult, error) {
	app, steps, err := loadPipeline(ctx, s.apps, s.catalog, applicationID)
	if err != nil {
		return nil, err
	}
	if !app.Status.AcceptsActivityWrites() {
		return nil, &ValidationError{
			Field:   "application_status",
			Message: "application does not accept new activities",
		}
	}

	result := &ProvisionResult{}

	err = s.activities.WithApplicationLock(ctx, applicationID, func(ctx context.Context, tx repository.ActivityTx) error {
		existing, err := tx.ListActivities(ctx, applicationID)
		if err != nil {
			return err
		}
		byStep := activitiesByStep(existing)
		hadActivities := len(existing) > 0

		for _, step := range steps {
			if byStep[step.ID] != nil {
				continue
			}
			if err := canCreateStep(steps, byStep, step); err != nil {
				result.StoppedAtStep = step
				break
			}

			activity := &repository.Activity{
				ApplicationID: applicationID,
				ProcessStepID: step.ID,
				StepOrder:     step.StepOrder,
				StepName:      step.StepName,
				ActivityType:  repository.ActivityTypeOnline,
				Status:        repository.ActivityScheduled,
			}
			if err := tx.CreateActivity(ctx, activity); err != nil {
				return err
			}
			byStep[step.ID] = activity
			result.Created = append(result.Created, activity)
		}

		if !hadActivities && len(result.Created) > 0 {
			advanced, err := s.status.markInterviewing(ctx, app, actedBy)
			if err != nil {
				return err
			}
			result.ApplicationAdvancedTo = advanced
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(result.Created) > 0 {
		stepNames := make([]string, len(result.Created))
		for i, a := range result.Created {
			stepNames[i] = a.StepName
		}
		s.appendAudit(ctx, &repository.ActivityAuditEntry{
			ApplicationID: applicationID,
			Action:        "provisioned",
			PerformedBy:   actedBy,
			Metadata:      map[string]interface{}{"steps": stepNames},
		})
		s.notifier.PublishActivityEvent(ctx, "activities_provisioned", applicationID, applicationID, actedBy,
			map[string]interface{}{"created": len(result.Created)})
	}

	s.log.Info().
		Str("application_id", applicationID).
		Int("created", len(result.Created)).
		Msg("Auto-provisioning run finished")

	return result, nil
}

func (s *AutoProvisionService) appendAudit(ctx context.Context, entry *repository.ActivityAuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("application_id", entry.ApplicationID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

package service

import (
	"context"

	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

// ActivityStore persists activities. WithApplicationLock is the consistency
// contract of the core: the callback runs in a critical section scoped to one
// application's activity set, so every ordering check sees the state it will
// commit against. Activities of different applications never contend.
type ActivityStore interface {
	WithApplicationLock(ctx context.Context, applicationID string, fn func(ctx context.Context, tx repository.ActivityTx) error) error
	ListActivities(ctx context.Context, applicationID string) ([]*repository.Activity, error)
}

// ApplicationStore is the read side over applications and job requests.
type ApplicationStore interface {
	GetApplication(ctx context.Context, id string) (*repository.Application, error)
	GetJobRequest(ctx context.Context, id string) (*repository.JobRequest, error)
	CountActiveApplications(ctx context.Context, jobRequestID string) (int64, error)
}

// AuditStore appends and reads the immutable pipeline audit trail.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.ActivityAuditEntry) error
	ListByApplication(ctx context.Context, applicationID string) ([]*repository.ActivityAuditEntry, error)
}

// CatalogClientInterface resolves the ordered steps of a process template
// from the process catalog service.
type CatalogClientInterface interface {
	ListSteps(ctx context.Context, templateID string) ([]*repository.ProcessStep, error)
}

// ApplicationCommandClientInterface pushes application status changes through
// the application command service, the sole writer of application rows.
type ApplicationCommandClientInterface interface {
	UpdateApplicationStatus(ctx context.Context, applicationID string, status repository.ApplicationStatus) error
}

// NotificationPublisherInterface publishes fire-and-forget pipeline events.
type NotificationPublisherInterface interface {
	PublishActivityEvent(ctx context.Context, eventType, applicationID, resourceID, actorID string, payload map[string]interface{})
}

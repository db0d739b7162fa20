package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/talentflow-ai/be-hr-pipeline/internal/natsclient"
)

// NotificationPublisher publishes pipeline events to NATS JetStream for
// consumption by the platform notifications service.
//
// Subject convention: notifications.hr.<event_type>
// Event types: activity_created, activity_scheduled, activity_completed,
//              activity_passed, activity_failed, activities_provisioned,
//              application_hired, application_withdrawn
//
// All publish operations are non-fatal: errors are logged but never
// propagated to the caller, so notification failures never interrupt
// pipeline operations.
type NotificationPublisher struct {
	nats *natsclient.Client
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType     string                 `json:"event_type"`
	ApplicationID string                 `json:"application_id"`
	ResourceType  string                 `json:"resource_type,omitempty"`
	ResourceID    string                 `json:"resource_id,omitempty"`
	ActorID       string                 `json:"actor_id,omitempty"`
	Severity      string                 `json:"severity,omitempty"`
	Category      string                 `json:"category,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// client. A nil client turns every publish into a no-op.
func NewNotificationPublisher(nats *natsclient.Client, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// PublishActivityEvent publishes a pipeline event.
// Subject: notifications.hr.<eventType>
func (p *NotificationPublisher) PublishActivityEvent(ctx context.Context, eventType, applicationID, resourceID, actorID string, payload map[string]interface{}) {
	if p.nats == nil {
		return
	}

	event := &NotificationEvent{
		EventType:     eventType,
		ApplicationID: applicationID,
		ResourceType:  "activity",
		ResourceID:    resourceID,
		ActorID:       actorID,
		Severity:      "info",
		Category:      "hr_pipeline",
		Payload:       payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.hr.%s", eventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("application_id", applicationID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("application_id", applicationID).
		Msg("notification: event published")
}

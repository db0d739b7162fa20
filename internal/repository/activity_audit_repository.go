package repository

import (
	"context"
	"encoding/json"

	"github.com/talentflow-ai/be-hr-pipeline/internal/database"
	"github.com/talentflow-ai/be-hr-pipeline/internal/errors"
)

// ActivityAuditRepository appends and reads immutable pipeline audit entries.
type ActivityAuditRepository struct {
	db *database.DB
}

// NewActivityAuditRepository creates a new ActivityAuditRepository.
func NewActivityAuditRepository(db *database.DB) *ActivityAuditRepository {
	return &ActivityAuditRepository{db: db}
}

// Append inserts one audit entry. Append is the only mutation exposed.
func (r *ActivityAuditRepository) Append(ctx context.Context, entry *ActivityAuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO activity_audit_log
		    (application_id, activity_id, process_step_id,
		     action, status_before, status_after,
		     performed_by, metadata)
		VALUES ($1, $2, $3,
		        $4, $5, $6,
		        $7, $8)
		RETURNING id, performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.ApplicationID,
		entry.ActivityID,
		entry.ProcessStepID,
		entry.Action,
		entry.StatusBefore,
		entry.StatusAfter,
		entry.PerformedBy,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// ListByApplication returns the audit trail for an application oldest-first.
func (r *ActivityAuditRepository) ListByApplication(ctx context.Context, applicationID string) ([]*ActivityAuditEntry, error) {
	query := `
		SELECT id, application_id, activity_id, process_step_id,
		       action, status_before, status_after,
		       performed_by, performed_at, metadata
		FROM activity_audit_log
		WHERE application_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	var entries []*ActivityAuditEntry
	for rows.Next() {
		e := &ActivityAuditEntry{}
		var metadataJSON []byte
		err := rows.Scan(
			&e.ID,
			&e.ApplicationID,
			&e.ActivityID,
			&e.ProcessStepID,
			&e.Action,
			&e.StatusBefore,
			&e.StatusAfter,
			&e.PerformedBy,
			&e.PerformedAt,
			&metadataJSON,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, e)
	}

	return entries, nil
}

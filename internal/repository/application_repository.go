package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/talentflow-ai/be-hr-pipeline/internal/database"
	"github.com/talentflow-ai/be-hr-pipeline/internal/errors"
)

// ApplicationRepository is the read side over application and job request
// rows. Status writes go through the Application Command service; this
// repository never mutates.
type ApplicationRepository struct {
	db *database.DB
}

// NewApplicationRepository creates a new ApplicationRepository.
func NewApplicationRepository(db *database.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// GetApplication retrieves an application by ID.
func (r *ApplicationRepository) GetApplication(ctx context.Context, id string) (*Application, error) {
	query := `
		SELECT id, job_request_id, cv_id, status, created_at, updated_at
		FROM applications
		WHERE id = $1
	`

	a := &Application{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.JobRequestID,
		&a.CVID,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("application", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get application")
	}

	return a, nil
}

// GetJobRequest retrieves a job request by ID.
func (r *ApplicationRepository) GetJobRequest(ctx context.Context, id string) (*JobRequest, error) {
	query := `
		SELECT id, template_id, title, quantity, created_at
		FROM job_requests
		WHERE id = $1
	`

	jr := &JobRequest{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&jr.ID,
		&jr.TemplateID,
		&jr.Title,
		&jr.Quantity,
		&jr.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("job_request", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get job request")
	}

	return jr, nil
}

// CountActiveApplications counts the applications of a job request that
// consume a hire slot. This is a point-in-time read outside any application
// lock.
func (r *ApplicationRepository) CountActiveApplications(ctx context.Context, jobRequestID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM applications
		WHERE job_request_id = $1
		  AND status = ANY($2)
	`

	statuses := make([]string, 0, len(activeStatuses))
	for _, s := range activeStatuses {
		statuses = append(statuses, string(s))
	}

	var count int64
	if err := r.db.QueryRow(ctx, query, jobRequestID, statuses).Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count applications")
	}

	return count, nil
}

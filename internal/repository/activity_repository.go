package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/talentflow-ai/be-hr-pipeline/internal/database"
	"github.com/talentflow-ai/be-hr-pipeline/internal/errors"
)

// ActivityRepository persists Activity rows. All writes run inside
// WithApplicationLock so the cross-record ordering invariant is checked and
// applied under a single critical section per application.
type ActivityRepository struct {
	db *database.DB
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(db *database.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// WithApplicationLock runs fn inside a transaction holding a row lock on the
// application. Activities of different applications never contend.
func (r *ActivityRepository) WithApplicationLock(ctx context.Context, applicationID string, fn func(ctx context.Context, tx ActivityTx) error) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx,
			`SELECT id FROM applications WHERE id = $1 FOR UPDATE`,
			applicationID,
		).Scan(&id)
		if err == pgx.ErrNoRows {
			return errors.NotFound("application", applicationID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock application")
		}

		return fn(ctx, &activityTx{tx: tx})
	})
}

// ListActivities returns an application's activities ordered by step order,
// outside any lock. Read-side queries (listing, idle detection) use this.
func (r *ActivityRepository) ListActivities(ctx context.Context, applicationID string) ([]*Activity, error) {
	rows, err := r.db.Query(ctx, selectActivities+`
		WHERE application_id = $1
		ORDER BY step_order ASC
	`, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list activities")
	}
	defer rows.Close()

	return scanActivityRows(rows)
}

// ── transactional view ───────────────────────────────────────────────────────

const selectActivities = `
	SELECT id, application_id, process_step_id, step_order, step_name,
	       activity_type, status, scheduled_date, notes,
	       created_at, updated_at
	FROM activities
`

type activityTx struct {
	tx pgx.Tx
}

func (t *activityTx) ListActivities(ctx context.Context, applicationID string) ([]*Activity, error) {
	rows, err := t.tx.Query(ctx, selectActivities+`
		WHERE application_id = $1
		ORDER BY step_order ASC
	`, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list activities")
	}
	defer rows.Close()

	return scanActivityRows(rows)
}

func (t *activityTx) CreateActivity(ctx context.Context, a *Activity) error {
	query := `
		INSERT INTO activities
		    (application_id, process_step_id, step_order, step_name,
		     activity_type, status, scheduled_date, notes)
		VALUES ($1, $2, $3, $4,
		        $5::activity_type, $6::activity_status, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := t.tx.QueryRow(ctx, query,
		a.ApplicationID,
		a.ProcessStepID,
		a.StepOrder,
		a.StepName,
		a.ActivityType,
		a.Status,
		a.ScheduledDate,
		a.Notes,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create activity")
	}

	return nil
}

func (t *activityTx) UpdateActivityStatus(ctx context.Context, id string, status ActivityStatus, notes *string) error {
	query := `
		UPDATE activities
		SET status     = $2::activity_status,
		    notes      = COALESCE($3, notes),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := t.tx.QueryRow(ctx, query, id, status, notes).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("activity", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update activity status")
	}
	return nil
}

func (t *activityTx) UpdateActivitySchedule(ctx context.Context, id string, date time.Time) error {
	query := `
		UPDATE activities
		SET scheduled_date = $2,
		    updated_at     = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := t.tx.QueryRow(ctx, query, id, date).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("activity", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update activity schedule")
	}
	return nil
}

func (t *activityTx) DeleteActivity(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete activity")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("activity", id)
	}
	return nil
}

func (t *activityTx) DeleteActivities(ctx context.Context, applicationID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM activities WHERE application_id = $1`, applicationID)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to delete activities")
	}
	return tag.RowsAffected(), nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type activityScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row activityScanner) (*Activity, error) {
	a := &Activity{}
	err := row.Scan(
		&a.ID,
		&a.ApplicationID,
		&a.ProcessStepID,
		&a.StepOrder,
		&a.StepName,
		&a.ActivityType,
		&a.Status,
		&a.ScheduledDate,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanActivityRows(rows pgx.Rows) ([]*Activity, error) {
	var activities []*Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan activity")
		}
		activities = append(activities, a)
	}
	return activities, nil
}

package repository

import (
	"context"
	"time"
)

// ── Domain types for the hiring pipeline ─────────────────────────────────────

// ActivityStatus is the closed set of per-activity states.
type ActivityStatus string

const (
	ActivityScheduled ActivityStatus = "scheduled"
	ActivityCompleted ActivityStatus = "completed"
	ActivityPassed    ActivityStatus = "passed"
	ActivityFailed    ActivityStatus = "failed"
	ActivityNoShow    ActivityStatus = "no_show"
)

// activityTransitions is the explicit transition table. NoShow never appears
// as a target here: it is reachable only through the withdrawal cascade.
var activityTransitions = map[ActivityStatus][]ActivityStatus{
	ActivityScheduled: {ActivityCompleted},
	ActivityCompleted: {ActivityPassed, ActivityFailed},
	ActivityPassed:    {},
	ActivityFailed:    {},
	ActivityNoShow:    {},
}

// CanTransitionTo reports whether next is an allowed direct transition.
func (s ActivityStatus) CanTransitionTo(next ActivityStatus) bool {
	for _, allowed := range activityTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further status or schedule
// edits.
func (s ActivityStatus) Terminal() bool {
	return s == ActivityPassed || s == ActivityFailed || s == ActivityNoShow
}

// Valid reports whether s is a member of the status set.
func (s ActivityStatus) Valid() bool {
	_, ok := activityTransitions[s]
	return ok
}

// ActivityType distinguishes remote and on-site events.
type ActivityType string

const (
	ActivityTypeOnline  ActivityType = "online"
	ActivityTypeOffline ActivityType = "offline"
)

// ApplicationStatus is the parent application's lifecycle state.
type ApplicationStatus string

const (
	ApplicationSubmitted      ApplicationStatus = "submitted"
	ApplicationInterviewing   ApplicationStatus = "interviewing"
	ApplicationHired          ApplicationStatus = "hired"
	ApplicationRejected       ApplicationStatus = "rejected"
	ApplicationWithdrawn      ApplicationStatus = "withdrawn"
	ApplicationExpired        ApplicationStatus = "expired"
	ApplicationClosedBySystem ApplicationStatus = "closed_by_system"
)

// AcceptsActivityWrites reports whether activities may be created or edited
// while the application is in this status.
func (s ApplicationStatus) AcceptsActivityWrites() bool {
	return s == ApplicationSubmitted || s == ApplicationInterviewing
}

// activeStatuses are the application statuses that consume a hire slot.
var activeStatuses = []ApplicationStatus{
	ApplicationSubmitted,
	ApplicationInterviewing,
	ApplicationHired,
}

// ProcessStep is one ordered step of a hiring process template. Steps are
// owned by the Process Catalog service and immutable for the lifetime of the
// applications referencing them.
type ProcessStep struct {
	ID          string
	TemplateID  string
	StepOrder   int
	StepName    string
	Description *string
}

// JobRequest links applications to a process template and carries the hire
// quota. Read-only from this service's perspective.
type JobRequest struct {
	ID         string
	TemplateID string
	Title      string
	Quantity   int
	CreatedAt  time.Time
}

// Application is the parent aggregate of a candidate's activities. Status is
// written only by the Application Command service; this service reads it.
type Application struct {
	ID           string
	JobRequestID string
	CVID         string
	Status       ApplicationStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Activity is the per-application instance of one process step. StepOrder and
// StepName are denormalized from the catalog at creation time, since the
// ordering invariant is checked on every sibling write.
type Activity struct {
	ID            string
	ApplicationID string
	ProcessStepID string
	StepOrder     int
	StepName      string
	ActivityType  ActivityType
	Status        ActivityStatus
	ScheduledDate *time.Time
	Notes         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActivityAuditEntry is one immutable record in the pipeline audit log.
type ActivityAuditEntry struct {
	ID            string
	ApplicationID string
	ActivityID    *string
	ProcessStepID *string
	Action        string // created | transitioned | schedule_set | deleted | bulk_deleted | provisioned | application_advanced | withdrawn
	StatusBefore  *string
	StatusAfter   *string
	PerformedBy   string
	PerformedAt   time.Time
	Metadata      map[string]interface{}
}

// ActivityTx is the per-application transactional view of the activity set.
// Every mutation of an application's activities goes through one of these,
// obtained from ActivityRepository.WithApplicationLock, so sibling-ordering
// checks and writes happen under the same row lock.
type ActivityTx interface {
	ListActivities(ctx context.Context, applicationID string) ([]*Activity, error)
	CreateActivity(ctx context.Context, a *Activity) error
	UpdateActivityStatus(ctx context.Context, id string, status ActivityStatus, notes *string) error
	UpdateActivitySchedule(ctx context.Context, id string, date time.Time) error
	DeleteActivity(ctx context.Context, id string) error
	DeleteActivities(ctx context.Context, applicationID string) (int64, error)
}

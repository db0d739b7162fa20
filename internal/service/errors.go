package service

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/talentflow-ai/be-hr-pipeline/internal/errors"
	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

// Caller-facing error taxonomy of the pipeline core. Each type carries enough
// context (step name, offending date, current status) for the caller to
// render an actionable message. All of these are recoverable: they are
// returned, never panicked, and the handler maps them to HTTP statuses.

// ValidationError reports a missing or rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// OrderingError reports a schedule that violates the sibling ordering
// invariant, naming the offending neighboring step and its date.
type OrderingError struct {
	StepName  string
	StepDate  time.Time
	Requested time.Time
	// Relation is "before" when the requested date falls before an
	// earlier step, "after" when it falls after a later one.
	Relation string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("requested date %s falls %s step %q scheduled at %s",
		e.Requested.Format(time.RFC3339), e.Relation, e.StepName, e.StepDate.Format(time.RFC3339))
}

// PrecedingStepMissingError reports a scheduling or creation attempt for a
// step whose immediate predecessor has no activity yet.
type PrecedingStepMissingError struct {
	StepName  string
	StepOrder int
}

func (e *PrecedingStepMissingError) Error() string {
	return fmt.Sprintf("preceding step %q (order %d) has no activity yet", e.StepName, e.StepOrder)
}

// TransitionNotAllowedError reports a status change outside the allowed-next
// set, including the withdrawn-application and gating cases.
type TransitionNotAllowedError struct {
	Current   repository.ActivityStatus
	Requested repository.ActivityStatus
	Reason    string
}

func (e *TransitionNotAllowedError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("transition from %q to %q is not allowed", e.Current, e.Requested)
}

// HasProgressError reports a delete attempted on activities that have left
// the scheduled status.
type HasProgressError struct {
	StepName string
	Status   repository.ActivityStatus
}

func (e *HasProgressError) Error() string {
	return fmt.Sprintf("activity for step %q has progressed to %q and can no longer be deleted", e.StepName, e.Status)
}

// DuplicateStepError reports an attempt to create a second activity for a
// step already covered.
type DuplicateStepError struct {
	StepName string
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("an activity already exists for step %q", e.StepName)
}

// emptyNotes reports whether notes carry no usable content.
func emptyNotes(notes *string) bool {
	return notes == nil || strings.TrimSpace(*notes) == ""
}

func errNotFoundActivity(id string) error {
	return apperrors.NotFound("activity", id)
}

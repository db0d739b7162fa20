package service

import (
	"context"

	"github.com/talentflow-ai/be-hr-pipeline/internal/logger"
)

// CapacityService answers how many openings a job request still has.
type CapacityService struct {
	apps ApplicationStore
	log  *logger.Logger
}

// NewCapacityService creates a new CapacityService.
func NewCapacityService(apps ApplicationStore, log *logger.Logger) *CapacityService {
	return &CapacityService{apps: apps, log: log}
}

// SlotsResult reports a job request's capacity snapshot.
type SlotsResult struct {
	JobRequestID   string
	Quantity       int
	ActiveCount    int
	RemainingSlots int
}

// RemainingSlots counts the applications still occupying a slot (submitted,
// interviewing or hired) and subtracts them from the requested headcount.
// Over-subscription clamps to zero rather than going negative.
func (s *CapacityService) RemainingSlots(ctx context.Context, jobRequestID string) (*SlotsResult, error) {
	jobRequest, err := s.apps.GetJobRequest(ctx, jobRequestID)
	if err != nil {
		return nil, err
	}

	active, err := s.apps.CountActiveApplications(ctx, jobRequestID)
	if err != nil {
		return nil, err
	}

	remaining := jobRequest.Quantity - int(active)
	if remaining < 0 {
		remaining = 0
	}

	return &SlotsResult{
		JobRequestID:   jobRequestID,
		Quantity:       jobRequest.Quantity,
		ActiveCount:    int(active),
		RemainingSlots: remaining,
	}, nil
}

package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/talentflow-ai/be-hr-pipeline/internal/errors"
	"github.com/talentflow-ai/be-hr-pipeline/internal/logger"
	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
)

// In-memory fakes backing the service tests. memStore mirrors the repository
// contract closely enough that the services cannot tell the difference: the
// lock callback sees and commits against the same activity set.

type memStore struct {
	mu         sync.Mutex
	apps       *fakeAppStore
	activities map[string][]*repository.Activity
	nextID     int
}

func newMemStore(apps *fakeAppStore) *memStore {
	return &memStore{apps: apps, activities: make(map[string][]*repository.Activity)}
}

func (m *memStore) WithApplicationLock(ctx context.Context, applicationID string, fn func(ctx context.Context, tx repository.ActivityTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apps.apps[applicationID]; !ok {
		return apperrors.NotFound("application", applicationID)
	}

	snapshot := m.snapshot(applicationID)
	if err := fn(ctx, &memTx{store: m}); err != nil {
		m.activities[applicationID] = snapshot
		return err
	}
	return nil
}

func (m *memStore) ListActivities(ctx context.Context, applicationID string) ([]*repository.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(applicationID), nil
}

func (m *memStore) list(applicationID string) []*repository.Activity {
	out := make([]*repository.Activity, len(m.activities[applicationID]))
	copy(out, m.activities[applicationID])
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out
}

func (m *memStore) snapshot(applicationID string) []*repository.Activity {
	out := make([]*repository.Activity, 0, len(m.activities[applicationID]))
	for _, a := range m.activities[applicationID] {
		clone := *a
		out = append(out, &clone)
	}
	return out
}

type memTx struct {
	store *memStore
}

func (t *memTx) ListActivities(ctx context.Context, applicationID string) ([]*repository.Activity, error) {
	return t.store.list(applicationID), nil
}

func (t *memTx) CreateActivity(ctx context.Context, a *repository.Activity) error {
	t.store.nextID++
	a.ID = fmt.Sprintf("act-%d", t.store.nextID)
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	stored := *a
	t.store.activities[a.ApplicationID] = append(t.store.activities[a.ApplicationID], &stored)
	return nil
}

func (t *memTx) UpdateActivityStatus(ctx context.Context, id string, status repository.ActivityStatus, notes *string) error {
	a := t.find(id)
	if a == nil {
		return apperrors.NotFound("activity", id)
	}
	a.Status = status
	if notes != nil {
		a.Notes = notes
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) UpdateActivitySchedule(ctx context.Context, id string, date time.Time) error {
	a := t.find(id)
	if a == nil {
		return apperrors.NotFound("activity", id)
	}
	a.ScheduledDate = &date
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) DeleteActivity(ctx context.Context, id string) error {
	for appID, list := range t.store.activities {
		for i, a := range list {
			if a.ID == id {
				t.store.activities[appID] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return apperrors.NotFound("activity", id)
}

func (t *memTx) DeleteActivities(ctx context.Context, applicationID string) (int64, error) {
	n := int64(len(t.store.activities[applicationID]))
	delete(t.store.activities, applicationID)
	return n, nil
}

func (t *memTx) find(id string) *repository.Activity {
	for _, list := range t.store.activities {
		for _, a := range list {
			if a.ID == id {
				return a
			}
		}
	}
	return nil
}

type fakeAppStore struct {
	apps        map[string]*repository.Application
	jobRequests map[string]*repository.JobRequest
	activeCount int64
}

func (f *fakeAppStore) GetApplication(ctx context.Context, id string) (*repository.Application, error) {
	app, ok := f.apps[id]
	if !ok {
		return nil, apperrors.NotFound("application", id)
	}
	clone := *app
	return &clone, nil
}

func (f *fakeAppStore) GetJobRequest(ctx context.Context, id string) (*repository.JobRequest, error) {
	jr, ok := f.jobRequests[id]
	if !ok {
		return nil, apperrors.NotFound("job request", id)
	}
	clone := *jr
	return &clone, nil
}

func (f *fakeAppStore) CountActiveApplications(ctx context.Context, jobRequestID string) (int64, error) {
	return f.activeCount, nil
}

type fakeCatalog struct {
	steps []*repository.ProcessStep
}

func (f *fakeCatalog) ListSteps(ctx context.Context, templateID string) ([]*repository.ProcessStep, error) {
	return f.steps, nil
}

// fakeAppCommand applies status updates back onto the fake application
// store, so a re-fetch observes the cascade like it would in production.
type fakeAppCommand struct {
	apps    *fakeAppStore
	updates []repository.ApplicationStatus
	failErr error
}

func (f *fakeAppCommand) UpdateApplicationStatus(ctx context.Context, applicationID string, status repository.ApplicationStatus) error {
	if f.failErr != nil {
		return f.failErr
	}
	if app, ok := f.apps.apps[applicationID]; ok {
		app.Status = status
	}
	f.updates = append(f.updates, status)
	return nil
}

type fakeAudit struct {
	entries []*repository.ActivityAuditEntry
}

func (f *fakeAudit) Append(ctx context.Context, entry *repository.ActivityAuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) ListByApplication(ctx context.Context, applicationID string) ([]*repository.ActivityAuditEntry, error) {
	var out []*repository.ActivityAuditEntry
	for _, e := range f.entries {
		if e.ApplicationID == applicationID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) PublishActivityEvent(ctx context.Context, eventType, applicationID, resourceID, actorID string, payload map[string]interface{}) {
	f.events = append(f.events, eventType)
}

// fixture wires a full service graph over the fakes for one application with
// an n-step template.
type fixture struct {
	store      *memStore
	apps       *fakeAppStore
	catalog    *fakeCatalog
	appCommand *fakeAppCommand
	audit      *fakeAudit
	notifier   *fakeNotifier

	activities  *ActivityService
	appStatus   *ApplicationStatusService
	provisioner *AutoProvisionService
	capacity    *CapacityService
	idle        *IdleService
}

const (
	testAppID = "app-1"
	testJobID = "job-1"
	testTplID = "tpl-1"
)

func stepNames(n int) []string {
	base := []string{"Screening", "Technical Interview", "Culture Fit", "Offer", "Final Review"}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		if i < len(base) {
			names[i] = base[i]
		} else {
			names[i] = fmt.Sprintf("Step %d", i+1)
		}
	}
	return names
}

func newFixture(numSteps int) *fixture {
	steps := make([]*repository.ProcessStep, numSteps)
	for i, name := range stepNames(numSteps) {
		steps[i] = &repository.ProcessStep{
			ID:         fmt.Sprintf("step-%d", i+1),
			TemplateID: testTplID,
			StepOrder:  i + 1,
			StepName:   name,
		}
	}

	apps := &fakeAppStore{
		apps: map[string]*repository.Application{
			testAppID: {
				ID:           testAppID,
				JobRequestID: testJobID,
				CVID:         "cv-1",
				Status:       repository.ApplicationSubmitted,
				CreatedAt:    time.Now().UTC(),
			},
		},
		jobRequests: map[string]*repository.JobRequest{
			testJobID: {ID: testJobID, TemplateID: testTplID, Title: "Backend Engineer", Quantity: 2},
		},
	}

	f := &fixture{
		store:      newMemStore(apps),
		apps:       apps,
		catalog:    &fakeCatalog{steps: steps},
		appCommand: &fakeAppCommand{apps: apps},
		audit:      &fakeAudit{},
		notifier:   &fakeNotifier{},
	}

	log := logger.New(logger.Config{Level: "disabled", ServiceName: "test"})

	f.appStatus = NewApplicationStatusService(f.store, f.apps, f.audit, f.catalog, f.appCommand, f.notifier, log)
	f.activities = NewActivityService(f.store, f.apps, f.audit, f.catalog, f.appStatus, f.notifier, log)
	f.provisioner = NewAutoProvisionService(f.store, f.apps, f.audit, f.catalog, f.appStatus, f.notifier, log)
	f.capacity = NewCapacityService(f.apps, log)
	f.idle = NewIdleService(f.store, f.apps, log)

	return f
}

func (f *fixture) step(n int) *repository.ProcessStep {
	return f.catalog.steps[n-1]
}

func (f *fixture) appStatusNow() repository.ApplicationStatus {
	return f.apps.apps[testAppID].Status
}

// seedActivity inserts an activity directly, bypassing service validation.
func (f *fixture) seedActivity(stepN int, status repository.ActivityStatus, scheduled *time.Time) *repository.Activity {
	step := f.step(stepN)
	f.store.nextID++
	a := &repository.Activity{
		ID:            fmt.Sprintf("act-%d", f.store.nextID),
		ApplicationID: testAppID,
		ProcessStepID: step.ID,
		StepOrder:     step.StepOrder,
		StepName:      step.StepName,
		ActivityType:  repository.ActivityTypeOnline,
		Status:        status,
		ScheduledDate: scheduled,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	f.store.activities[testAppID] = append(f.store.activities[testAppID], a)
	return a
}

func datePtr(t time.Time) *time.Time { return &t }

func day(n int) time.Time {
	return time.Date(2026, time.March, n, 10, 0, 0, 0, time.UTC)
}

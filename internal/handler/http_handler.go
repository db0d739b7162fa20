package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/talentflow-ai/be-hr-pipeline/internal/errors"
	"github.com/talentflow-ai/be-hr-pipeline/internal/logger"
	"github.com/talentflow-ai/be-hr-pipeline/internal/middleware"
	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
	"github.com/talentflow-ai/be-hr-pipeline/internal/service"
)

// HTTPHandler exposes the pipeline services over JSON.
type HTTPHandler struct {
	activities  *service.ActivityService
	appStatus   *service.ApplicationStatusService
	provisioner *service.AutoProvisionService
	capacity    *service.CapacityService
	idle        *service.IdleService
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(
	activities *service.ActivityService,
	appStatus *service.ApplicationStatusService,
	provisioner *service.AutoProvisionService,
	capacity *service.CapacityService,
	idle *service.IdleService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		activities:  activities,
		appStatus:   appStatus,
		provisioner: provisioner,
		capacity:    capacity,
		idle:        idle,
		log:         log,
	}
}

type createActivityRequest struct {
	ApplicationID string  `json:"application_id"`
	ProcessStepID string  `json:"process_step_id"`
	ActivityType  string  `json:"activity_type"`
	ScheduledDate *string `json:"scheduled_date,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	CreatedBy     string  `json:"created_by"`
}

type transitionRequest struct {
	ApplicationID string  `json:"application_id"`
	ActivityID    string  `json:"activity_id"`
	Status        string  `json:"status"`
	Notes         *string `json:"notes,omitempty"`
	ActedBy       string  `json:"acted_by"`
}

type scheduleRequest struct {
	ApplicationID string `json:"application_id"`
	ActivityID    string `json:"activity_id"`
	ScheduledDate string `json:"scheduled_date"`
	ActedBy       string `json:"acted_by"`
}

type withdrawRequest struct {
	ApplicationID string `json:"application_id"`
	Reason        string `json:"reason,omitempty"`
	ActedBy       string `json:"acted_by"`
}

type autoProvisionRequest struct {
	ApplicationID string `json:"application_id"`
	ActedBy       string `json:"acted_by"`
}

// HandleActivities routes the activity collection endpoint.
func (h *HTTPHandler) HandleActivities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
	}
}

func (h *HTTPHandler) createActivity(w http.ResponseWriter, r *http.Request) {
	var req createActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", "invalid_input")
		return
	}
	if req.ApplicationID == "" || req.ProcessStepID == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id and process_step_id are required", "invalid_input")
		return
	}

	var scheduledDate *time.Time
	if req.ScheduledDate != nil {
		date, err := parseDate(*req.ScheduledDate)
		if err != nil {
			h.respondServiceError(w, r, apperrors.InvalidInput("scheduled_date", "must be RFC 3339"))
			return
		}
		scheduledDate = &date
	}

	activityType := repository.ActivityType(req.ActivityType)
	if req.ActivityType == "" {
		activityType = repository.ActivityTypeOnline
	}

	activity, err := h.activities.CreateActivity(r.Context(), &service.CreateActivityRequest{
		ApplicationID: req.ApplicationID,
		ProcessStepID: req.ProcessStepID,
		ActivityType:  activityType,
		ScheduledDate: scheduledDate,
		Notes:         req.Notes,
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, activity)
}

func (h *HTTPHandler) listActivities(w http.ResponseWriter, r *http.Request) {
	applicationID := r.URL.Query().Get("application_id")
	if applicationID == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id is required", "invalid_input")
		return
	}

	activities, err := h.activities.ListActivities(r.Context(), applicationID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"activities": activities})
}

// HandleTransition applies a status change to one activity.
func (h *HTTPHandler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", "invalid_input")
		return
	}
	if req.ApplicationID == "" || req.ActivityID == "" || req.Status == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id, activity_id and status are required", "invalid_input")
		return
	}

	result, err := h.activities.TransitionActivity(r.Context(), &service.TransitionRequest{
		ApplicationID: req.ApplicationID,
		ActivityID:    req.ActivityID,
		NewStatus:     repository.ActivityStatus(req.Status),
		Notes:         req.Notes,
		ActedBy:       req.ActedBy,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	resp := map[string]interface{}{"activity": result.Activity}
	if result.ApplicationAdvancedTo != nil {
		resp["application_status"] = *result.ApplicationAdvancedTo
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// HandleSchedule sets an activity's scheduled date.
func (h *HTTPHandler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", "invalid_input")
		return
	}
	if req.ApplicationID == "" || req.ActivityID == "" || req.ScheduledDate == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id, activity_id and scheduled_date are required", "invalid_input")
		return
	}

	date, err := parseDate(req.ScheduledDate)
	if err != nil {
		h.respondServiceError(w, r, apperrors.InvalidInput("scheduled_date", "must be RFC 3339"))
		return
	}

	activity, err := h.activities.SetActivitySchedule(r.Context(), req.ApplicationID, req.ActivityID, date, req.ActedBy)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, activity)
}

// HandleScheduleProposal suggests a default date for a step.
func (h *HTTPHandler) HandleScheduleProposal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
		return
	}

	applicationID := r.URL.Query().Get("application_id")
	processStepID := r.URL.Query().Get("process_step_id")
	if applicationID == "" || processStepID == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id and process_step_id are required", "invalid_input")
		return
	}

	proposed, err := h.activities.ProposeSchedule(r.Context(), applicationID, processStepID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	resp := map[string]interface{}{"proposed_date": nil}
	if proposed != nil {
		resp["proposed_date"] = proposed.Format(time.RFC3339)
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// HandleDelete removes a single still-scheduled activity.
func (h *HTTPHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
		return
	}

	applicationID := r.URL.Query().Get("application_id")
	activityID := r.URL.Query().Get("activity_id")
	actedBy := r.URL.Query().Get("acted_by")
	if applicationID == "" || activityID == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id and activity_id are required", "invalid_input")
		return
	}

	if err := h.activities.DeleteActivity(r.Context(), applicationID, activityID, actedBy); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleBulkDelete rewinds an application by deleting all its activities.
func (h *HTTPHandler) HandleBulkDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
		return
	}

	applicationID := r.URL.Query().Get("application_id")
	if applicationID == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id is required", "invalid_input")
		return
	}

	removed, err := h.activities.BulkDeleteActivities(r.Context(), applicationID, r.URL.Query().Get("acted_by"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

// HandleAutoProvision runs the step provisioner for an application.
func (h *HTTPHandler) HandleAutoProvision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
		return
	}

	var req autoProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", "invalid_input")
		return
	}
	if req.ApplicationID == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id is required", "invalid_input")
		return
	}

	result, err := h.provisioner.AutoCreateActivities(r.Context(), req.ApplicationID, req.ActedBy)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"created": result.Created,
	}
	if result.StoppedAtStep != nil {
		resp["stopped_at_step"] = result.StoppedAtStep.StepName
	}
	if result.ApplicationAdvancedTo != nil {
		resp["application_status"] = *result.ApplicationAdvancedTo
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// HandleWithdraw withdraws an application and cascades onto its activities.
func (h *HTTPHandler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body", "invalid_input")
		return
	}
	if req.ApplicationID == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id is required", "invalid_input")
		return
	}

	result, err := h.appStatus.WithdrawApplication(r.Context(), req.ApplicationID, req.Reason, req.ActedBy)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// HandleIdleCheck reports whether an application's pipeline has stalled.
func (h *HTTPHandler) HandleIdleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
		return
	}

	applicationID := r.URL.Query().Get("application_id")
	if applicationID == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id is required", "invalid_input")
		return
	}

	threshold := 0
	if raw := r.URL.Query().Get("threshold_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.respondServiceError(w, r, apperrors.InvalidInput("threshold_days", "must be a non-negative integer"))
			return
		}
		threshold = parsed
	}

	result, err := h.idle.CheckApplication(r.Context(), applicationID, threshold)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// HandleHistory returns the audit trail for an application.
func (h *HTTPHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
		return
	}

	applicationID := r.URL.Query().Get("application_id")
	if applicationID == "" {
		h.respondError(w, r, http.StatusBadRequest, "application_id is required", "invalid_input")
		return
	}

	entries, err := h.activities.GetActivityHistory(r.Context(), applicationID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

// HandleSlots reports a job request's remaining capacity.
func (h *HTTPHandler) HandleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", "invalid_input")
		return
	}

	jobRequestID := r.URL.Query().Get("job_request_id")
	if jobRequestID == "" {
		h.respondError(w, r, http.StatusBadRequest, "job_request_id is required", "invalid_input")
		return
	}

	result, err := h.capacity.RemainingSlots(r.Context(), jobRequestID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// HandleHealth is the liveness endpoint.
func (h *HTTPHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// respondServiceError translates the service error taxonomy to HTTP.
func (h *HTTPHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *service.ValidationError
		ordering   *service.OrderingError
		transition *service.TransitionNotAllowedError
		progress   *service.HasProgressError
		duplicate  *service.DuplicateStepError
		preceding  *service.PrecedingStepMissingError
	)

	switch {
	case errors.As(err, &validation):
		h.respondError(w, r, http.StatusBadRequest, err.Error(), "invalid_input")
	case errors.As(err, &ordering), errors.As(err, &transition),
		errors.As(err, &progress), errors.As(err, &duplicate):
		h.respondError(w, r, http.StatusConflict, err.Error(), "conflict")
	case errors.As(err, &preceding):
		h.respondError(w, r, http.StatusUnprocessableEntity, err.Error(), "unprocessable")
	case apperrors.CodeOf(err) == apperrors.ErrCodeInvalidInput:
		h.respondError(w, r, http.StatusBadRequest, err.Error(), "invalid_input")
	case apperrors.IsNotFound(err):
		h.respondError(w, r, http.StatusNotFound, err.Error(), "not_found")
	default:
		h.log.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		h.respondError(w, r, http.StatusInternalServerError, "internal server error", "internal")
	}
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	h.respondJSON(w, status, map[string]string{"error": message, "code": code})
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

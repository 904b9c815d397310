package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/contractsentinel/internal/api/middleware"
	"github.com/kiranshivaraju/contractsentinel/internal/api/response"
	"github.com/kiranshivaraju/contractsentinel/internal/fault"
	"github.com/kiranshivaraju/contractsentinel/internal/store"
	"github.com/kiranshivaraju/contractsentinel/pkg/models"
)

// JobService defines the ledger operations the job handlers depend on.
type JobService interface {
	CreateJob(ctx context.Context, tenantID, documentReference, modelVersion string) (uuid.UUID, error)
	TransitionStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, details map[string]any) (models.JobStatus, error)
	GetJob(ctx context.Context, jobID uuid.UUID, tenantID string) (*models.Job, error)
	Status(ctx context.Context, jobID uuid.UUID, tenantID string) (models.JobStatus, error)
}

// JobPublisher enqueues a job for the worker.
type JobPublisher interface {
	Publish(ctx context.Context, jobID uuid.UUID, ref string) error
}

type createJobResponse struct {
	JobID  uuid.UUID        `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

type jobStatusResponse struct {
	JobID  uuid.UUID        `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// modelVersion is recorded on every job it creates.
func NewCreateJobHandler(jobs JobService, pub JobPublisher, modelVersion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := mw.GetTenantID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
			return
		}

		var req struct {
			DocumentReference string `json:"document_reference"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		ref := strings.TrimSpace(req.DocumentReference)
		if ref == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "document_reference is required", nil)
			return
		}

		jobID, err := jobs.CreateJob(r.Context(), tenantID, ref, modelVersion)
		if err != nil {
			if fault.Is(err, fault.KindInvalid) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			slog.Error("create job failed", "tenant_id", tenantID, "error", err)
			response.Error(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE",
				"The job could not be recorded", nil)
			return
		}

		if err := pub.Publish(r.Context(), jobID, ref); err != nil {
			slog.Error("publish job failed", "job_id", jobID, "error", err)
			details := map[string]any{"error": err.Error(), "error_kind": string(fault.KindOf(err))}
			if _, terr := jobs.TransitionStatus(context.WithoutCancel(r.Context()), jobID, models.JobStatusFailed, details); terr != nil {
				slog.Error("failed to record publish failure", "job_id", jobID, "error", terr)
			}
			response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE",
				"The job could not be queued", map[string]any{"job_id": jobID})
			return
		}

		response.Accepted(w, createJobResponse{JobID: jobID, Status: models.JobStatusQueued})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// Jobs belonging to another tenant are reported as not found.
func NewGetJobHandler(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, jobID, ok := jobRequest(w, r)
		if !ok {
			return
		}

		job, err := jobs.GetJob(r.Context(), jobID, tenantID)
		if err != nil {
			writeLookupError(w, jobID, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/status.
func NewJobStatusHandler(jobs JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, jobID, ok := jobRequest(w, r)
		if !ok {
			return
		}

		status, err := jobs.Status(r.Context(), jobID, tenantID)
		if err != nil {
			writeLookupError(w, jobID, err)
			return
		}
		response.JSON(w, jobStatusResponse{JobID: jobID, Status: status})
	}
}

func jobRequest(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant", nil)
		return "", uuid.Nil, false
	}

	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
		return "", uuid.Nil, false
	}
	return tenantID, jobID, true
}

func writeLookupError(w http.ResponseWriter, jobID uuid.UUID, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
		return
	}
	slog.Error("job lookup failed", "job_id", jobID, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}

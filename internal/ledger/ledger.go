// Package ledger owns the job lifecycle: creation, status transitions with
// their audit entries, and the attached clause findings.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/contractsentinel/internal/cache"
	"github.com/kiranshivaraju/contractsentinel/internal/fault"
	"github.com/kiranshivaraju/contractsentinel/internal/store"
	"github.com/kiranshivaraju/contractsentinel/pkg/models"
)

const defaultStatusTTL = 30 * time.Minute

// Ledger writes jobs through a store.Store and mirrors each status into an
// optional cache. Cache failures are logged and never returned.
type Ledger struct {
	store     store.Store
	cache     cache.Cache
	statusTTL time.Duration
}

// New creates a Ledger. c may be nil.
func New(st store.Store, c cache.Cache, statusTTL time.Duration) *Ledger {
	if statusTTL <= 0 {
		statusTTL = defaultStatusTTL
	}
	return &Ledger{store: st, cache: c, statusTTL: statusTTL}
}

// CreateJob records a new QUEUED job with a single JOB_CREATED audit entry
// and returns its identifier.
func (l *Ledger) CreateJob(ctx context.Context, tenantID, documentReference, modelVersion string) (uuid.UUID, error) {
	if tenantID == "" {
		return uuid.Nil, fault.Invalid("create job", errors.New("tenant id is required"))
	}
	if documentReference == "" {
		return uuid.Nil, fault.Invalid("create job", errors.New("document reference is required"))
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:                uuid.New(),
		TenantID:          tenantID,
		Status:            models.JobStatusQueued,
		DocumentReference: documentReference,
		ModelVersion:      modelVersion,
		AuditTrail: []models.AuditEntry{
			models.NewAuditEntry(models.ActionJobCreated, map[string]any{"document_reference": documentReference}),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := l.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return uuid.Nil, fault.Invalid("create job", err)
		}
		return uuid.Nil, fault.Unavailable("create job", err)
	}

	l.mirror(ctx, job.ID, store.Transition{TenantID: tenantID, Status: models.JobStatusQueued})
	slog.Info("job created", "job_id", job.ID, "tenant_id", tenantID)
	return job.ID, nil
}

// TransitionStatus appends a STATUS_CHANGED_TO_<status> audit entry and moves
// the job to status when the transition is allowed. It returns the status in
// force afterwards, which differs from status when the job had already moved
// past it.
func (l *Ledger) TransitionStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, details map[string]any) (models.JobStatus, error) {
	if !status.Valid() {
		return "", fault.Invalid("transition job", fmt.Errorf("unknown status %q", status))
	}

	entry := models.NewAuditEntry(models.StatusChangedAction(status), details)
	t, err := l.store.TransitionJobStatus(ctx, jobID, status, entry)
	if errors.Is(err, store.ErrNotFound) {
		return "", fault.Invalid("transition job", fmt.Errorf("job %s: %w", jobID, err))
	}
	if err != nil {
		return "", fault.Unavailable("transition job", err)
	}

	if t.Status != status {
		slog.Warn("job status transition not applied",
			"job_id", jobID, "requested", status, "current", t.Status)
	}
	l.mirror(ctx, jobID, t)
	return t.Status, nil
}

// AttachFindings stores the final clause findings on the job.
func (l *Ledger) AttachFindings(ctx context.Context, jobID uuid.UUID, findings []models.ClauseFinding) error {
	err := l.store.AttachFindings(ctx, jobID, findings)
	if errors.Is(err, store.ErrNotFound) {
		return fault.Invalid("attach findings", fmt.Errorf("job %s: %w", jobID, err))
	}
	if err != nil {
		return fault.Unavailable("attach findings", err)
	}
	return nil
}

// GetJob returns the job if it belongs to tenantID, or store.ErrNotFound.
func (l *Ledger) GetJob(ctx context.Context, jobID uuid.UUID, tenantID string) (*models.Job, error) {
	return l.store.GetJob(ctx, jobID, tenantID)
}

// Status returns the job status for tenantID, reading the cache first.
func (l *Ledger) Status(ctx context.Context, jobID uuid.UUID, tenantID string) (models.JobStatus, error) {
	if l.cache != nil {
		entry, found, err := l.cache.GetJobStatus(ctx, jobID)
		if err != nil {
			slog.Warn("job status cache read failed", "job_id", jobID, "error", err)
		}
		if found {
			if entry.TenantID != tenantID {
				return "", store.ErrNotFound
			}
			return entry.Status, nil
		}
	}

	job, err := l.store.GetJob(ctx, jobID, tenantID)
	if err != nil {
		return "", err
	}
	l.mirror(ctx, jobID, store.Transition{TenantID: job.TenantID, Status: job.Status})
	return job.Status, nil
}

func (l *Ledger) mirror(ctx context.Context, jobID uuid.UUID, t store.Transition) {
	if l.cache == nil {
		return
	}
	entry := cache.JobStatusEntry{TenantID: t.TenantID, Status: t.Status, UpdatedAt: time.Now().UTC()}
	if err := l.cache.SetJobStatus(ctx, jobID, entry, l.statusTTL); err != nil {
		slog.Warn("job status cache write failed", "job_id", jobID, "error", err)
	}
}

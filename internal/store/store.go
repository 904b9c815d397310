package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/contractsentinel/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Transition is the outcome of a status write: the status in force after the
// write and the owning tenant.
type Transition struct {
	TenantID string
	Status   models.JobStatus
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	Close()

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	// CreateJob writes the job row and every entry of job.AuditTrail in one transaction.
	CreateJob(ctx context.Context, job *models.Job) error
	// GetJob returns the job with its audit trail (oldest first) and findings.
	// Jobs owned by another tenant are reported as ErrNotFound.
	GetJob(ctx context.Context, id uuid.UUID, tenantID string) (*models.Job, error)
	// TransitionJobStatus appends entry to the audit trail and moves the job to
	// status when models.TransitionSources(status) contains the current status.
	// The append happens whether or not the status changes.
	TransitionJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, entry models.AuditEntry) (Transition, error)
	AttachFindings(ctx context.Context, id uuid.UUID, findings []models.ClauseFinding) error
}

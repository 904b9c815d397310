package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/contractsentinel/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create job: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, tenant_id, status, document_reference, model_version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.TenantID, job.Status, job.DocumentReference, job.ModelVersion, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isPgError(err, pgerrcode.UniqueViolation) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}

	for _, e := range job.AuditTrail {
		if err := insertAuditEntry(ctx, tx, job.ID, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, tenantID string) (*models.Job, error) {
	var j models.Job
	var findings []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, status, document_reference, model_version, findings, created_at, updated_at
		 FROM jobs WHERE id = $1 AND tenant_id = $2`, id, tenantID,
	).Scan(&j.ID, &j.TenantID, &j.Status, &j.DocumentReference, &j.ModelVersion, &findings, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &j.Findings); err != nil {
			return nil, fmt.Errorf("decode findings: %w", err)
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT occurred_at, action, actor, details FROM job_audit_entries WHERE job_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("get audit trail: %w", err)
	}
	defer rows.Close()

	j.AuditTrail = []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var details []byte
		if err := rows.Scan(&e.Timestamp, &e.Action, &e.Actor, &details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		j.AuditTrail = append(j.AuditTrail, e)
	}
	return &j, rows.Err()
}

func (s *PostgresStore) TransitionJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, entry models.AuditEntry) (Transition, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Transition{}, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := insertAuditEntry(ctx, tx, id, entry); err != nil {
		return Transition{}, err
	}

	sources := make([]string, 0, 2)
	for _, src := range models.TransitionSources(status) {
		sources = append(sources, string(src))
	}
	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`,
		id, status, time.Now().UTC(), sources)
	if err != nil {
		return Transition{}, fmt.Errorf("update job status: %w", err)
	}

	var t Transition
	if err := tx.QueryRow(ctx, `SELECT tenant_id, status FROM jobs WHERE id = $1`, id).Scan(&t.TenantID, &t.Status); err != nil {
		return Transition{}, fmt.Errorf("read job status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Transition{}, fmt.Errorf("commit transition: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) AttachFindings(ctx context.Context, id uuid.UUID, findings []models.ClauseFinding) error {
	if findings == nil {
		findings = []models.ClauseFinding{}
	}
	payload, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET findings = $2, updated_at = NOW() WHERE id = $1`, id, payload)
	if err != nil {
		return fmt.Errorf("attach findings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertAuditEntry(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, e models.AuditEntry) error {
	var details []byte
	if e.Details != nil {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO job_audit_entries (job_id, occurred_at, action, actor, details)
		 VALUES ($1, $2, $3, $4, $5)`,
		jobID, e.Timestamp, e.Action, e.Actor, details)
	if err != nil {
		if isPgError(err, pgerrcode.ForeignKeyViolation) {
			return ErrNotFound
		}
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// isPgError reports whether err is a Postgres error with the given SQLSTATE.
func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

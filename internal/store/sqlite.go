package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/contractsentinel/pkg/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id           TEXT PRIMARY KEY,
    tenant_id    TEXT NOT NULL,
    name         TEXT NOT NULL,
    key_hash     TEXT NOT NULL,
    key_prefix   TEXT NOT NULL,
    last_used_at TEXT,
    deleted_at   TEXT,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys (key_prefix);

CREATE TABLE IF NOT EXISTS jobs (
    id                 TEXT PRIMARY KEY,
    tenant_id          TEXT NOT NULL,
    status             TEXT NOT NULL,
    document_reference TEXT NOT NULL,
    model_version      TEXT NOT NULL DEFAULT '',
    findings           TEXT,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS job_audit_entries (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id      TEXT NOT NULL REFERENCES jobs (id) ON DELETE CASCADE,
    occurred_at TEXT NOT NULL,
    action      TEXT NOT NULL,
    actor       TEXT NOT NULL,
    details     TEXT
);
CREATE INDEX IF NOT EXISTS idx_job_audit_entries_job ON job_audit_entries (job_id, seq);
`

// SQLiteStore implements Store on a single SQLite file for local runs and
// tests. All access goes through one connection, which serializes writers.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at dsn and applies the schema.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

// --- API Keys ---

func (s *SQLiteStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, last_used_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = ? AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var (
			k                    models.APIKey
			id, created, updated string
			lastUsed             sql.NullString
		)
		if err := rows.Scan(&id, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &lastUsed, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		if k.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse api key id: %w", err)
		}
		if k.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if k.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			t, err := parseTime(lastUsed.String)
			if err != nil {
				return nil, err
			}
			k.LastUsedAt = &t
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ?, updated_at = ? WHERE id = ?`, now, now, id.String())
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ID.String(), key.TenantID, key.Name, key.KeyHash, key.KeyPrefix,
		formatTime(key.CreatedAt), formatTime(key.UpdatedAt))
	if err != nil {
		if isSQLiteConstraint(err, "UNIQUE") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create job: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, tenant_id, status, document_reference, model_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.TenantID, string(job.Status), job.DocumentReference, job.ModelVersion,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		if isSQLiteConstraint(err, "UNIQUE") {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}

	for _, e := range job.AuditTrail {
		if err := sqliteAppendAudit(ctx, tx, job.ID, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID, tenantID string) (*models.Job, error) {
	var (
		j                        models.Job
		status, created, updated string
		findings                 sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, status, document_reference, model_version, findings, created_at, updated_at
		 FROM jobs WHERE id = ? AND tenant_id = ?`, id.String(), tenantID,
	).Scan(&j.TenantID, &status, &j.DocumentReference, &j.ModelVersion, &findings, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.ID = id
	j.Status = models.JobStatus(status)
	if j.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if findings.Valid && findings.String != "" {
		if err := json.Unmarshal([]byte(findings.String), &j.Findings); err != nil {
			return nil, fmt.Errorf("decode findings: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT occurred_at, action, actor, details FROM job_audit_entries WHERE job_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return nil, fmt.Errorf("get audit trail: %w", err)
	}
	defer rows.Close()

	j.AuditTrail = []models.AuditEntry{}
	for rows.Next() {
		var (
			e       models.AuditEntry
			at      string
			details sql.NullString
		)
		if err := rows.Scan(&at, &e.Action, &e.Actor, &details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.Timestamp, err = parseTime(at); err != nil {
			return nil, err
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		j.AuditTrail = append(j.AuditTrail, e)
	}
	return &j, rows.Err()
}

func (s *SQLiteStore) TransitionJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, entry models.AuditEntry) (Transition, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Transition{}, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var t Transition
	var current string
	err = tx.QueryRowContext(ctx, `SELECT tenant_id, status FROM jobs WHERE id = ?`, id.String()).Scan(&t.TenantID, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return Transition{}, ErrNotFound
	}
	if err != nil {
		return Transition{}, fmt.Errorf("read job status: %w", err)
	}

	if err := sqliteAppendAudit(ctx, tx, id, entry); err != nil {
		return Transition{}, err
	}

	t.Status = models.JobStatus(current)
	if t.Status.CanTransitionTo(status) {
		_, err = tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(status), formatTime(time.Now()), id.String(), current)
		if err != nil {
			return Transition{}, fmt.Errorf("update job status: %w", err)
		}
		t.Status = status
	}

	if err := tx.Commit(); err != nil {
		return Transition{}, fmt.Errorf("commit transition: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) AttachFindings(ctx context.Context, id uuid.UUID, findings []models.ClauseFinding) error {
	if findings == nil {
		findings = []models.ClauseFinding{}
	}
	payload, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET findings = ?, updated_at = ? WHERE id = ?`, string(payload), formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("attach findings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach findings: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func sqliteAppendAudit(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, e models.AuditEntry) error {
	var details sql.NullString
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO job_audit_entries (job_id, occurred_at, action, actor, details) VALUES (?, ?, ?, ?, ?)`,
		jobID.String(), formatTime(e.Timestamp), e.Action, e.Actor, details)
	if err != nil {
		if isSQLiteConstraint(err, "FOREIGN KEY") {
			return ErrNotFound
		}
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// isSQLiteConstraint matches on the driver message; modernc reports
// constraint failures as "constraint failed: <KIND> constraint failed ...".
func isSQLiteConstraint(err error, kind string) bool {
	return err != nil && strings.Contains(err.Error(), kind+" constraint failed")
}

// Package pipeline drives a single job from QUEUED to a terminal status.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/contractsentinel/internal/document"
	"github.com/kiranshivaraju/contractsentinel/internal/fault"
	"github.com/kiranshivaraju/contractsentinel/internal/metrics"
	"github.com/kiranshivaraju/contractsentinel/internal/redact"
	"github.com/kiranshivaraju/contractsentinel/pkg/models"
)

// DocumentStore returns the raw bytes behind a document reference.
type DocumentStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Redactor replaces sensitive spans before text reaches a model.
type Redactor interface {
	Redact(ctx context.Context, text string) redact.Result
}

// Analyzer evaluates sanitized text. It never fails.
type Analyzer interface {
	Analyze(ctx context.Context, sanitizedText, jobID string) []models.ClauseFinding
}

// Ledger records status transitions and findings.
type Ledger interface {
	TransitionStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, details map[string]any) (models.JobStatus, error)
	AttachFindings(ctx context.Context, jobID uuid.UUID, findings []models.ClauseFinding) error
}

// Orchestrator runs fetch, extract, redact, analyze and persist for one job.
type Orchestrator struct {
	docs     DocumentStore
	redactor Redactor
	analyzer Analyzer
	ledger   Ledger
	metrics  *metrics.Recorder
}

// New creates an Orchestrator. rec may be nil.
func New(docs DocumentStore, redactor Redactor, analyzer Analyzer, ledger Ledger, rec *metrics.Recorder) *Orchestrator {
	return &Orchestrator{
		docs:     docs,
		redactor: redactor,
		analyzer: analyzer,
		ledger:   ledger,
		metrics:  rec,
	}
}

// ProcessJob runs the pipeline for one inbound message. It never returns an
// error and never panics: any stage failure moves the job to FAILED with the
// cause recorded in the audit entry. A replayed message for a job that has
// already left QUEUED is logged and ignored.
func (o *Orchestrator) ProcessJob(ctx context.Context, jobID uuid.UUID, ref string) {
	logger := slog.With("job_id", jobID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job processing panicked", "panic", r, "stack", string(debug.Stack()))
			o.fail(ctx, logger, jobID, fmt.Errorf("panic: %v", r))
		}
	}()

	status, err := o.ledger.TransitionStatus(ctx, jobID, models.JobStatusProcessing, nil)
	if err != nil {
		logger.Error("failed to start job", "error", err)
		o.fail(ctx, logger, jobID, err)
		return
	}
	if status != models.JobStatusProcessing {
		logger.Info("job already settled, skipping", "status", status)
		return
	}

	if err := o.run(ctx, logger, jobID, ref); err != nil {
		o.fail(ctx, logger, jobID, err)
	}
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, ref string) error {
	var raw []byte
	if err := o.stage(metrics.StageFetch, func() (err error) {
		raw, err = o.docs.Fetch(ctx, ref)
		return err
	}); err != nil {
		return err
	}

	var text string
	if err := o.stage(metrics.StageExtract, func() (err error) {
		text, err = document.Extract(ref, raw)
		return err
	}); err != nil {
		return err
	}

	var redacted redact.Result
	_ = o.stage(metrics.StageRedact, func() error {
		redacted = o.redactor.Redact(ctx, text)
		return nil
	})
	o.metrics.AddRedactions(len(redacted.Tokens))
	logger.Info("document redacted", "redaction_count", len(redacted.Tokens))

	var findings []models.ClauseFinding
	_ = o.stage(metrics.StageAnalyze, func() error {
		findings = o.analyzer.Analyze(ctx, redacted.Text, jobID.String())
		return nil
	})

	return o.stage(metrics.StagePersist, func() error {
		if err := o.ledger.AttachFindings(ctx, jobID, findings); err != nil {
			return err
		}
		details := map[string]any{
			"analysis_summary": fmt.Sprintf("Analyzed %d clauses", len(findings)),
			"redaction_count":  len(redacted.Tokens),
		}
		status, err := o.ledger.TransitionStatus(ctx, jobID, models.JobStatusNeedsReview, details)
		if err != nil {
			return err
		}
		if status != models.JobStatusNeedsReview {
			logger.Warn("job settled concurrently", "status", status)
			return nil
		}
		o.metrics.IncJobOutcome(models.JobStatusNeedsReview, "")
		logger.Info("job ready for review", "clauses", len(findings), "flagged", models.AnyFlagged(findings))
		return nil
	})
}

func (o *Orchestrator) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.ObserveStage(name, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// fail records the terminal FAILED transition. The write outlives ctx so a
// shutting-down worker does not leave the job in PROCESSING.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, cause error) {
	kind := fault.KindOf(cause)
	logger.Error("job failed", "error", cause, "error_kind", kind)

	details := map[string]any{
		"error":      cause.Error(),
		"error_kind": string(kind),
	}
	if _, err := o.ledger.TransitionStatus(context.WithoutCancel(ctx), jobID, models.JobStatusFailed, details); err != nil {
		logger.Error("failed to record job failure", "error", err)
		return
	}
	o.metrics.IncJobOutcome(models.JobStatusFailed, string(kind))
}

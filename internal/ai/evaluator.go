package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/contractsentinel/pkg/models"
)

// DefaultShadowWait bounds how long Analyze waits for the shadow model after
// the primary model has answered.
const DefaultShadowWait = 5 * time.Second

// ShadowSink receives shadow comparison records.
type ShadowSink interface {
	RecordShadowComparison(c models.ShadowComparison)
}

// Evaluator runs the primary model and, when configured, a shadow model over
// the same prompt. Only the primary result is ever returned.
type Evaluator struct {
	primary          models.TextGenerator
	shadow           models.TextGenerator
	shadowWait       time.Duration
	inferenceTimeout time.Duration
	sink             ShadowSink
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithShadow enables shadow mode. A nil model leaves it disabled.
func WithShadow(m models.TextGenerator, wait time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		e.shadow = m
		if wait > 0 {
			e.shadowWait = wait
		}
	}
}

// WithInferenceTimeout bounds each individual model call.
func WithInferenceTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) { e.inferenceTimeout = d }
}

// WithSink sets where shadow comparisons are recorded. Defaults to LogSink.
func WithSink(s ShadowSink) EvaluatorOption {
	return func(e *Evaluator) { e.sink = s }
}

// NewEvaluator creates an Evaluator. primary must not be nil.
func NewEvaluator(primary models.TextGenerator, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		primary:    primary,
		shadowWait: DefaultShadowWait,
		sink:       LogSink{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PrimaryModel returns the identifier of the authoritative model.
func (e *Evaluator) PrimaryModel() string { return e.primary.Model() }

// Analyze evaluates sanitized contract text. It never returns an error: a
// primary failure yields a single FLAGGED finding describing the failure, and
// shadow failures are discarded.
func (e *Evaluator) Analyze(ctx context.Context, sanitizedText, jobID string) []models.ClauseFinding {
	prompt := BuildPrompt(sanitizedText)

	var shadowTask Task[[]models.ClauseFinding]
	if e.shadow != nil {
		shadowTask = e.task(e.shadow, prompt)
	}

	p, s, shadowOK := RunPair(ctx, e.task(e.primary, prompt), shadowTask, e.shadowWait)

	if p.Err != nil {
		slog.Error("primary model failed",
			"job_id", jobID,
			"provider", e.primary.Name(),
			"model", e.primary.Model(),
			"elapsed_ms", p.Elapsed.Milliseconds(),
			"error", p.Err,
		)
		return []models.ClauseFinding{FailureFinding(p.Err)}
	}

	if e.shadow != nil {
		switch {
		case ctx.Err() != nil && (!shadowOK || s.Err != nil):
			slog.Info("shadow model abandoned, analysis cancelled", "job_id", jobID, "model", e.shadow.Model(), "error", ctx.Err())
		case !shadowOK:
			slog.Warn("shadow model timed out", "job_id", jobID, "model", e.shadow.Model())
		case s.Err != nil:
			slog.Warn("shadow model failed", "job_id", jobID, "model", e.shadow.Model(), "error", s.Err)
		default:
			e.sink.RecordShadowComparison(models.ShadowComparison{
				JobID:          jobID,
				PrimaryModel:   e.primary.Model(),
				ShadowModel:    e.shadow.Model(),
				Agreement:      models.AnyFlagged(p.Value) == models.AnyFlagged(s.Value),
				LatencyDeltaMs: (p.Elapsed - s.Elapsed).Milliseconds(),
				PrimaryCount:   len(p.Value),
				ShadowCount:    len(s.Value),
			})
		}
	}

	return p.Value
}

func (e *Evaluator) task(m models.TextGenerator, prompt string) Task[[]models.ClauseFinding] {
	return func(ctx context.Context) ([]models.ClauseFinding, error) {
		if e.inferenceTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.inferenceTimeout)
			defer cancel()
		}
		raw, err := m.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return ParseFindings(raw)
	}
}

// LogSink writes shadow comparisons to the default logger.
type LogSink struct{}

func (LogSink) RecordShadowComparison(c models.ShadowComparison) {
	slog.Info("shadow_mode_comparison",
		"job_id", c.JobID,
		"primary_model", c.PrimaryModel,
		"shadow_model", c.ShadowModel,
		"agreement", c.Agreement,
		"latency_delta_ms", c.LatencyDeltaMs,
		"primary_count", c.PrimaryCount,
		"shadow_count", c.ShadowCount,
	)
}

// MultiSink fans a comparison out to several sinks. Nil entries are skipped.
type MultiSink []ShadowSink

func (m MultiSink) RecordShadowComparison(c models.ShadowComparison) {
	for _, s := range m {
		if s != nil {
			s.RecordShadowComparison(c)
		}
	}
}

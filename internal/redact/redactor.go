// Package redact replaces sensitive spans of a document with opaque tokens
// before the text leaves the worker. Span offsets are UTF-8 byte offsets as
// reported by the inspection service.
package redact

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultInfoTypes are the detection categories requested when none are configured.
var DefaultInfoTypes = []string{"PERSON_NAME", "US_SOCIAL_SECURITY_NUMBER", "EMAIL_ADDRESS"}

// Finding is one sensitive span reported by an Inspector.
// StartByte and EndByte index the UTF-8 encoding of the inspected text.
type Finding struct {
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
	InfoType  string `json:"info_type"`
	Quote     string `json:"quote"`
}

// Inspector locates sensitive spans in text.
// Implementations must be safe for concurrent use.
type Inspector interface {
	Inspect(ctx context.Context, text string, infoTypes []string) ([]Finding, error)
}

// Result is the output of one Redact call. Tokens maps each inserted token to
// the original value it replaced and is never persisted.
type Result struct {
	Text   string
	Tokens map[string]string
}

// Redactor is created once at startup and shared by all jobs.
type Redactor struct {
	inspector Inspector
	infoTypes []string
	suffix    func() string
}

// New creates a Redactor. A nil inspector turns Redact into a pass-through.
func New(inspector Inspector, infoTypes []string) *Redactor {
	if len(infoTypes) == 0 {
		infoTypes = DefaultInfoTypes
	}
	return &Redactor{
		inspector: inspector,
		infoTypes: infoTypes,
		suffix:    randomSuffix,
	}
}

// Redact replaces every applicable finding in text with a synthetic token.
// It never fails: when inspection is unavailable the original text is returned
// with an empty token map.
func (r *Redactor) Redact(ctx context.Context, text string) Result {
	if r.inspector == nil {
		return Result{Text: text, Tokens: map[string]string{}}
	}

	findings, err := r.inspector.Inspect(ctx, text, r.infoTypes)
	if err != nil {
		slog.Warn("redaction skipped: inspector failed", "error", err)
		return Result{Text: text, Tokens: map[string]string{}}
	}

	return r.apply(text, findings)
}

// replacement is a validated, non-overlapping span scheduled for substitution.
type replacement struct {
	start, end int
	token      string
}

// apply plans the replacements and builds the output buffer in one pass.
func (r *Redactor) apply(text string, findings []Finding) Result {
	tokens := make(map[string]string, len(findings))
	plan := r.plan(text, findings, tokens)
	if len(plan) == 0 {
		return Result{Text: text, Tokens: tokens}
	}

	// plan is ordered by descending start; emit ascending.
	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for i := len(plan) - 1; i >= 0; i-- {
		rep := plan[i]
		b.WriteString(text[cursor:rep.start])
		b.WriteString(rep.token)
		cursor = rep.end
	}
	b.WriteString(text[cursor:])

	out := b.String()
	if !utf8.ValidString(out) && utf8.ValidString(text) {
		// Boundary checks in plan make this unreachable; keep the input intact if they ever regress.
		slog.Error("redaction produced invalid UTF-8, returning original text")
		return Result{Text: text, Tokens: map[string]string{}}
	}
	return Result{Text: out, Tokens: tokens}
}

// plan sorts findings by descending start byte and keeps each one only if its
// range does not intersect a range already kept. Ties on start prefer the
// longer span. Findings with negative or empty ranges or offsets that split a
// multi-byte character are dropped.
func (r *Redactor) plan(text string, findings []Finding, tokens map[string]string) []replacement {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartByte != sorted[j].StartByte {
			return sorted[i].StartByte > sorted[j].StartByte
		}
		return sorted[i].EndByte > sorted[j].EndByte
	})

	plan := make([]replacement, 0, len(sorted))
	lowest := len(text) + 1
	for _, f := range sorted {
		// Inspectors occasionally report an end offset past the buffer; clamp it
		// the way a slice assignment would.
		if f.EndByte > len(text) && f.StartByte < len(text) {
			f.EndByte = len(text)
		}
		if !validRange(text, f.StartByte, f.EndByte) {
			slog.Debug("redaction: dropping finding with invalid range",
				"info_type", f.InfoType, "start", f.StartByte, "end", f.EndByte)
			continue
		}
		// Every kept span starts at or after f.StartByte, so they intersect f
		// exactly when the lowest kept start falls before f.EndByte.
		if lowest < f.EndByte {
			slog.Debug("redaction: skipping overlapping finding",
				"info_type", f.InfoType, "start", f.StartByte, "end", f.EndByte)
			continue
		}

		token := r.newToken(f.InfoType, tokens)
		quote := f.Quote
		if quote == "" {
			quote = text[f.StartByte:f.EndByte]
		}
		tokens[token] = quote
		plan = append(plan, replacement{start: f.StartByte, end: f.EndByte, token: token})
		lowest = f.StartByte
	}
	return plan
}

func (r *Redactor) newToken(infoType string, taken map[string]string) string {
	if infoType == "" {
		infoType = "UNKNOWN"
	}
	for {
		tok := fmt.Sprintf("[%s_%s]", infoType, r.suffix())
		if _, dup := taken[tok]; !dup {
			return tok
		}
	}
}

func validRange(text string, start, end int) bool {
	if start < 0 || end > len(text) || start >= end {
		return false
	}
	return isRuneBoundary(text, start) && isRuneBoundary(text, end)
}

func isRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return utf8.RuneStart(s[i])
}

func randomSuffix() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

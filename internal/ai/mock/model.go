package mock

import (
	"context"
	"time"

	"github.com/kiranshivaraju/contractsentinel/pkg/models"
)

// DefaultResponse is what NewModel answers with when no response is given.
const DefaultResponse = "```json\n" + `[
  {
    "original_text": "Supplier shall indemnify Customer against all claims.",
    "risk_score": 0.8,
    "status": "FLAGGED",
    "regulation_violation": null,
    "reasoning": "Indemnification is one-sided."
  },
  {
    "original_text": "Invoices are payable within 30 days.",
    "risk_score": 0.1,
    "status": "PASS",
    "reasoning": "Payment terms are within 60 days."
  }
]` + "\n```"

// Model satisfies models.TextGenerator for tests and local runs.
type Model struct {
	Name_        string
	Model_       string
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *Model) Name() string  { return m.Name_ }
func (m *Model) Model() string { return m.Model_ }

func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return "", nil
}

// NewModel returns a Model that always answers with response, or with
// DefaultResponse when response is empty.
func NewModel(modelID, response string) *Model {
	if response == "" {
		response = DefaultResponse
	}
	return &Model{
		Name_:  "mock",
		Model_: modelID,
		GenerateFunc: func(_ context.Context, _ string) (string, error) {
			return response, nil
		},
	}
}

// NewFailingModel returns a Model that always returns err.
func NewFailingModel(modelID string, err error) *Model {
	return &Model{
		Name_:  "mock-failing",
		Model_: modelID,
		GenerateFunc: func(_ context.Context, _ string) (string, error) {
			return "", err
		},
	}
}

// NewSlowModel answers with response after delay, or returns the context
// error if ctx is cancelled first.
func NewSlowModel(modelID, response string, delay time.Duration) *Model {
	return &Model{
		Name_:  "mock-slow",
		Model_: modelID,
		GenerateFunc: func(ctx context.Context, _ string) (string, error) {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-t.C:
				return response, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
}

// NewBlockingModel blocks until ctx is cancelled.
func NewBlockingModel(modelID string) *Model {
	return &Model{
		Name_:  "mock-blocking",
		Model_: modelID,
		GenerateFunc: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

var _ models.TextGenerator = (*Model)(nil)

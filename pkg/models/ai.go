// Package models contains shared data models used across the contract sentinel codebase.
package models

import "context"

// TextGenerator is the interface every model integration implements.
// Never call a specific provider directly; always inject this interface.
type TextGenerator interface {
	// Generate sends a plain-text prompt and returns the raw completion text.
	Generate(ctx context.Context, prompt string) (string, error)
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
	// Model returns the model identifier used for requests.
	Model() string
}

// ShadowComparison is the advisory record produced when the shadow model
// answers within its deadline. Nothing reads it back into the pipeline.
type ShadowComparison struct {
	JobID          string `json:"job_id"`
	PrimaryModel   string `json:"primary_model"`
	ShadowModel    string `json:"shadow_model"`
	Agreement      bool   `json:"agreement"`
	LatencyDeltaMs int64  `json:"latency_delta_ms"`
	PrimaryCount   int    `json:"primary_count"`
	ShadowCount    int    `json:"shadow_count"`
}

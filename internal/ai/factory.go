package ai

import (
	"fmt"

	"github.com/kiranshivaraju/contractsentinel/internal/ai/anthropic"
	"github.com/kiranshivaraju/contractsentinel/internal/ai/mock"
	"github.com/kiranshivaraju/contractsentinel/internal/ai/openai"
	"github.com/kiranshivaraju/contractsentinel/internal/config"
	"github.com/kiranshivaraju/contractsentinel/pkg/models"
)

// NewModel constructs the text generator described by cfg.
// Called once at startup for the primary model.
func NewModel(cfg config.ModelConfig) (models.TextGenerator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, config.ProviderVLLM, config.ProviderOllama:
		return openai.NewClient(openai.Config{
			Provider: cfg.Provider,
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Timeout:  cfg.Timeout,
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewClient(anthropic.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case config.ProviderMock:
		modelID := cfg.Model
		if modelID == "" {
			modelID = "mock-v1"
		}
		return mock.NewModel(modelID, ""), nil
	default:
		return nil, fmt.Errorf("%w %q: must be one of openai, vllm, ollama, anthropic, mock", ErrUnknownProvider, cfg.Provider)
	}
}

// NewShadowModel is NewModel for the optional shadow model. It returns nil
// without error when shadow mode is disabled.
func NewShadowModel(cfg config.ModelConfig) (models.TextGenerator, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	return NewModel(cfg)
}

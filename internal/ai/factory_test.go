package ai_test

import (
	"testing"

	"github.com/kiranshivaraju/contractsentinel/internal/ai"
	"github.com/kiranshivaraju/contractsentinel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModel_Ollama(t *testing.T) {
	cfg := config.ModelConfig{Provider: "ollama", BaseURL: "http://localhost:11434/v1", Model: "llama3"}
	m, err := ai.NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ollama", m.Name())
	assert.Equal(t, "llama3", m.Model())
}

func TestNewModel_VLLM(t *testing.T) {
	cfg := config.ModelConfig{Provider: "vllm", BaseURL: "http://localhost:8000/v1", Model: "mistral-7b"}
	m, err := ai.NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, "vllm", m.Name())
}

func TestNewModel_OpenAI(t *testing.T) {
	cfg := config.ModelConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o"}
	m, err := ai.NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Name())
}

func TestNewModel_Anthropic(t *testing.T) {
	cfg := config.ModelConfig{Provider: "anthropic", APIKey: "sk-ant-test", Model: "claude-sonnet-4-5"}
	m, err := ai.NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Name())
	assert.Equal(t, "claude-sonnet-4-5", m.Model())
}

func TestNewModel_Mock(t *testing.T) {
	m, err := ai.NewModel(config.ModelConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", m.Name())
	assert.Equal(t, "mock-v1", m.Model())
}

func TestNewModel_Unknown(t *testing.T) {
	_, err := ai.NewModel(config.ModelConfig{Provider: "unknown-provider"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrUnknownProvider)
	assert.Contains(t, err.Error(), "unknown-provider")
}

func TestNewModel_Empty(t *testing.T) {
	_, err := ai.NewModel(config.ModelConfig{})
	require.Error(t, err)
}

func TestNewShadowModel_Disabled(t *testing.T) {
	for _, p := range []string{"", "none"} {
		m, err := ai.NewShadowModel(config.ModelConfig{Provider: p})
		require.NoError(t, err)
		assert.Nil(t, m)
	}
}

func TestNewShadowModel_Enabled(t *testing.T) {
	m, err := ai.NewShadowModel(config.ModelConfig{Provider: "mock", Model: "shadow-v1"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "shadow-v1", m.Model())
}

package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/contractsentinel/internal/ai/openai"
	"github.com/kiranshivaraju/contractsentinel/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "user", body.Messages[1].Role)
		assert.Equal(t, "review this", body.Messages[1].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[]"}}]}`))
	}))
	defer srv.Close()

	c := openai.NewClient(openai.Config{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-4o"})
	out, err := c.Generate(context.Background(), "review this")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Equal(t, "openai", c.Name())
	assert.Equal(t, "gpt-4o", c.Model())
}

func TestGenerate_NoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := openai.NewClient(openai.Config{Provider: "ollama", BaseURL: srv.URL, Model: "llama3"})
	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "ollama", c.Name())
}

func TestGenerate_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := openai.NewClient(openai.Config{BaseURL: srv.URL}).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindUnavailable))
}

func TestGenerate_BadRequestIsModelFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"context length exceeded"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := openai.NewClient(openai.Config{BaseURL: srv.URL}).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindModelFailure))
	assert.Contains(t, err.Error(), "400")
}

func TestGenerate_NoChoicesIsModelFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := openai.NewClient(openai.Config{BaseURL: srv.URL}).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindModelFailure))
}

func TestGenerate_TimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := openai.NewClient(openai.Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindUnavailable))
	assert.Equal(t, "openai: timeout", err.Error())
}

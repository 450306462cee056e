package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"weekly-meal-planner/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `  {"a":1}  `, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"truncated inside fence", "```json\n{\"a\":[1,\n```", `{"a":[1,`},
		{"prose is kept", `Here you go: {"a":1}`, `Here you go: {"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.in))
		})
	}
}

func TestGroqClientGenerateContent(t *testing.T) {
	var captured struct {
		Model    string        `json:"model"`
		Messages []groqMessage `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "{\"ok\":true}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer server.Close()

	client := newGroqClient("test-key", "test-model", server.URL)
	resp, err := client.GenerateContent(context.Background(), "be terse", "plan my week")
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, "test-model", resp.Usage.Model)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "plan my week", captured.Messages[1].Content)
	assert.Equal(t, "test-model", captured.Model)
}

func TestGroqClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newGroqClient("k", "m", server.URL)
	_, err := client.GenerateContent(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
}

func TestNewFromConfigWithoutKeys(t *testing.T) {
	gen, err := NewFromConfig(context.Background(), &config.Config{LLMProvider: config.ProviderAuto})
	require.NoError(t, err)
	assert.Nil(t, gen)
}

func TestNewFromConfigPrefersConfiguredProvider(t *testing.T) {
	cfg := &config.Config{
		GroqAPIKey:  "groq",
		GroqModel:   "m",
		LLMProvider: config.ProviderGroq,
	}
	gen, err := NewFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	_, ok := gen.(*groqClient)
	assert.True(t, ok, "expected a groq client, got %T", gen)
}

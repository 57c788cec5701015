package openaicompat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedRequest struct {
	Path          string
	Authorization string
	Body          map[string]any
}

func completionServer(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Authorization = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func completionBody(content string) string {
	payload, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(payload)
}

func TestGenerateContentSendsChatCompletion(t *testing.T) {
	srv, captured := completionServer(t, http.StatusOK, completionBody(`{"similarity_score": 64, "feedback": "Good"}`))

	client, err := New(Config{BaseURL: srv.URL, APIKey: "secret", MaxRetries: 0}, zap.NewNop())
	require.NoError(t, err)

	out, err := client.GenerateContent(context.Background(), "You are a judge.", "Rate this answer.")
	require.NoError(t, err)
	assert.Equal(t, `{"similarity_score": 64, "feedback": "Good"}`, out)

	assert.Equal(t, "/chat/completions", captured.Path)
	assert.Equal(t, "Bearer secret", captured.Authorization)
	assert.Equal(t, DefaultModel, captured.Body["model"])
	assert.Equal(t, 0.2, captured.Body["temperature"])
	assert.Equal(t, float64(800), captured.Body["max_tokens"])

	messages, ok := captured.Body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])
	assert.Equal(t, "Rate this answer.", messages[1].(map[string]any)["content"])
}

func TestGenerateContentEmptyChoice(t *testing.T) {
	srv, _ := completionServer(t, http.StatusOK, completionBody("  "))

	client, err := New(Config{BaseURL: srv.URL, APIKey: "secret"}, nil)
	require.NoError(t, err)

	_, err = client.GenerateContent(context.Background(), "", "prompt")
	assert.Error(t, err)
}

func TestGenerateContentUpstreamError(t *testing.T) {
	srv, _ := completionServer(t, http.StatusBadRequest, `{"error": {"message": "bad model", "type": "invalid_request_error"}}`)

	client, err := New(Config{BaseURL: srv.URL, APIKey: "secret", Model: "nope"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "nope", client.Model())

	_, err = client.GenerateContent(context.Background(), "sys", "prompt")
	assert.Error(t, err)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{APIKey: "  "}, nil)
	assert.Error(t, err)
}

func TestGenerateContentRejectsEmptyPrompt(t *testing.T) {
	client, err := New(Config{APIKey: "secret"}, nil)
	require.NoError(t, err)

	_, err = client.GenerateContent(context.Background(), "sys", "")
	assert.Error(t, err)
}

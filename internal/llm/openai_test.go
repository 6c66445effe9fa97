package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		// Answer out of order to check the client re-sorts by index.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), float32(len(req.Input[i]))},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "Hi Ada!"},
			}},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIClient_Embed(t *testing.T) {
	server := newOpenAITestServer(t)
	config := DefaultOpenAIConfig()
	config.BaseURL = server.URL + "/v1"

	client, err := NewOpenAIClient(config, "test-key")
	require.NoError(t, err)

	vectors, err := client.Embed(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 1}, vectors[0])
	assert.Equal(t, []float32{1, 3}, vectors[1])

	vectors, err = client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestOpenAIClient_GenerateContent(t *testing.T) {
	server := newOpenAITestServer(t)
	config := DefaultOpenAIConfig()
	config.BaseURL = server.URL + "/v1"

	client, err := NewClient(context.Background(), config, "test-key")
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	text, err := client.GenerateContent(context.Background(), "prompt", TierLite)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada!", text)
}

func TestNewClient_Errors(t *testing.T) {
	_, err := NewOpenAIClient(DefaultOpenAIConfig(), "")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = NewClient(context.Background(), &Config{Provider: "anthropic"}, "key")
	assert.Error(t, err)

	_, err = NewGeminiClient(context.Background(), DefaultGeminiConfig(), "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

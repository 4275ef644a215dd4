package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestTransport(t *testing.T, handler http.HandlerFunc) Transport {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tr, err := NewOpenAICompatibleTransport(Nvidia, Credentials{APIKey: "nv-test-key", BaseURL: server.URL + "/v1/"}, Options{
		Timeout: 2 * time.Second,
		Headers: map[string]string{"X-Title": "Shopee Growth Quest"},
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestOpenAICompatibleSend(t *testing.T) {
	tr := newOpenAITestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer nv-test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Shopee Growth Quest", r.Header.Get("X-Title"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "meta/llama-3.1-70b-instruct", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "Write an ad headline", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "meta/llama-3.1-70b-instruct",
			"choices": [{"message": {"role": "assistant", "content": "Flash Sale: 50% Off!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`))
	})

	completion, err := tr.Send(context.Background(), "meta/llama-3.1-70b-instruct", "Write an ad headline")
	require.NoError(t, err)
	assert.Equal(t, "Flash Sale: 50% Off!", completion.Text)
	assert.Equal(t, "meta/llama-3.1-70b-instruct", completion.Model)
	assert.Equal(t, 12, completion.InputTokens)
	assert.Equal(t, 7, completion.OutputTokens)
}

func TestOpenAICompatibleSendFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "unauthorized with error envelope",
			status:     http.StatusUnauthorized,
			body:       `{"error": {"message": "Invalid API key provided", "code": 401}}`,
			wantStatus: 401,
			wantMsg:    "Invalid API key provided",
		},
		{
			name:       "string error",
			status:     http.StatusTooManyRequests,
			body:       `{"error": "rate limit exceeded"}`,
			wantStatus: 429,
			wantMsg:    "rate limit exceeded",
		},
		{
			name:       "plain text body",
			status:     http.StatusBadGateway,
			body:       "upstream unavailable",
			wantStatus: 502,
			wantMsg:    "upstream unavailable",
		},
		{
			name:       "malformed success body",
			status:     http.StatusOK,
			body:       `{"choices": [`,
			wantStatus: 200,
			wantMsg:    "malformed response",
		},
		{
			name:       "no choices",
			status:     http.StatusOK,
			body:       `{"choices": []}`,
			wantStatus: 200,
			wantMsg:    "no choices",
		},
		{
			name:       "empty content",
			status:     http.StatusOK,
			body:       `{"choices": [{"message": {"content": "  "}}]}`,
			wantStatus: 200,
			wantMsg:    "empty response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newOpenAITestTransport(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := tr.Send(context.Background(), "m", "p")
			require.Error(t, err)

			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, Nvidia, te.Provider)
			assert.Equal(t, OpGenerate, te.Op)
			assert.Equal(t, tt.wantStatus, te.StatusCode)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestOpenAICompatibleNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	tr, err := NewOpenAICompatibleTransport(OpenRouter, Credentials{APIKey: "k", BaseURL: url}, Options{Timeout: time.Second, Logger: quietLogger()})
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), "m", "p")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpenRouter, te.Provider)
	assert.Equal(t, 0, te.StatusCode)
	assert.Contains(t, err.Error(), "request failed")
}

func TestOpenAICompatibleOversizedResponse(t *testing.T) {
	tr := newOpenAITestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "`))
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxResponseBytes))
		_, _ = w.Write([]byte(`"}}]}`))
	})

	_, err := tr.Send(context.Background(), "m", "p")
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpGenerate, te.Op)
	assert.Contains(t, err.Error(), "response exceeds")
}

func TestOpenAICompatibleListModels(t *testing.T) {
	tr := newOpenAITestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": [
			{"id": "meta/llama-3.1-70b-instruct"},
			{"id": "nvidia/nv-embedqa-e5-v5"},
			{"id": "mistralai/mixtral-8x7b-instruct-v0.1", "name": "Mixtral 8x7B"},
			{"id": "meta/llama-guard-4-12b"},
			{"id": ""}
		]}`))
	})

	models, err := tr.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 4)

	assert.Equal(t, ModelDescriptor{ID: "meta/llama-3.1-70b-instruct", DisplayName: "meta/llama-3.1-70b-instruct", SupportsGeneration: true}, models[0])
	assert.False(t, models[1].SupportsGeneration)
	assert.Equal(t, "Mixtral 8x7B", models[2].DisplayName)
	assert.False(t, models[3].SupportsGeneration)
}

func TestOpenAICompatibleListModelsFailure(t *testing.T) {
	tr := newOpenAITestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := tr.ListModels(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpListModels, te.Op)
	assert.Equal(t, 404, te.StatusCode)
}

func TestNewOpenAICompatibleTransportRequiresKey(t *testing.T) {
	_, err := NewOpenAICompatibleTransport(OpenRouter, Credentials{}, Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestExtractUsageFromResponse(t *testing.T) {
	usage := extractUsageFromResponse([]byte(`{"usage": {"input_tokens": 4, "output_tokens": 9}}`))
	assert.Equal(t, 4, usage.InputTokens)
	assert.Equal(t, 9, usage.OutputTokens)

	assert.Equal(t, UsageInfo{}, extractUsageFromResponse([]byte(`not json`)))
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"growth_quest/internal/utils"
)

const (
	maxErrorBodyChars = 300
	maxResponseBytes  = 8 << 20
)

// non-chat model families some OpenAI-compatible listings mix in
var nonGenerativeMarkers = []string{"embed", "rerank", "whisper", "tts", "guard"}

// OpenAICompatibleTransport talks to any backend exposing the OpenAI
// /chat/completions and /models endpoints.
type OpenAICompatibleTransport struct {
	id      Identity
	auth    Authenticator
	client  *http.Client
	baseURL string
	headers map[string]string
	logger  *utils.Logger
}

// NewOpenAICompatibleTransport creates a transport for an OpenAI-compatible provider
func NewOpenAICompatibleTransport(id Identity, creds Credentials, opts Options) (Transport, error) {
	if creds.APIKey == "" {
		return nil, &ConfigurationError{Provider: id, Reason: "missing API key"}
	}

	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = id.DefaultBaseURL()
	}
	if baseURL == "" {
		return nil, &ConfigurationError{Provider: id, Reason: "missing base URL"}
	}

	return &OpenAICompatibleTransport{
		id:      id,
		auth:    NewSimpleAPIKeyAuth(creds.APIKey, "Authorization", "Bearer "),
		client:  opts.httpClient(),
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: opts.Headers,
		logger:  opts.logger(string(id)),
	}, nil
}

// Identity returns the provider this transport serves
func (p *OpenAICompatibleTransport) Identity() Identity {
	return p.id
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Send posts one user-role message to /chat/completions
func (p *OpenAICompatibleTransport) Send(ctx context.Context, model, prompt string) (*Completion, error) {
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, p.fail(OpGenerate, 0, "failed to marshal request", err)
	}

	respBody, status, err := p.do(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, p.fail(OpGenerate, 0, err.Error(), err)
	}
	if status < 200 || status >= 300 {
		return nil, p.fail(OpGenerate, status, extractErrorMessage(respBody), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, p.fail(OpGenerate, status, "malformed response: "+err.Error(), err)
	}
	if len(parsed.Choices) == 0 {
		return nil, p.fail(OpGenerate, status, "response contained no choices", nil)
	}
	text := parsed.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return nil, p.fail(OpGenerate, status, "empty response", nil)
	}

	usage := extractUsageFromResponse(respBody)
	completion := &Completion{
		Text:         text,
		Model:        parsed.Model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
	}
	if completion.Model == "" {
		completion.Model = model
	}

	p.logger.Debug("Chat completion received", "model", completion.Model, "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	return completion, nil
}

// ListModels reads /models
func (p *OpenAICompatibleTransport) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	respBody, status, err := p.do(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, p.fail(OpListModels, 0, err.Error(), err)
	}
	if status != http.StatusOK {
		return nil, p.fail(OpListModels, status, extractErrorMessage(respBody), nil)
	}

	var listing struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &listing); err != nil {
		return nil, p.fail(OpListModels, status, "malformed model listing: "+err.Error(), err)
	}

	models := make([]ModelDescriptor, 0, len(listing.Data))
	for _, m := range listing.Data {
		if m.ID == "" {
			continue
		}
		display := m.Name
		if display == "" {
			display = m.ID
		}
		models = append(models, ModelDescriptor{
			ID:                 m.ID,
			DisplayName:        display,
			SupportsGeneration: isChatModel(m.ID),
		})
	}
	return models, nil
}

// Close cleans up resources
func (p *OpenAICompatibleTransport) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *OpenAICompatibleTransport) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	authCtx, err := p.auth.Authenticate(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("authentication failed: %w", err)
	}
	if err := authCtx.ApplyToRequest(ctx, httpReq); err != nil {
		return nil, 0, fmt.Errorf("failed to apply auth: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if len(respBody) > maxResponseBytes {
		return nil, resp.StatusCode, fmt.Errorf("response exceeds %d bytes", maxResponseBytes)
	}
	return respBody, resp.StatusCode, nil
}

func (p *OpenAICompatibleTransport) fail(op string, status int, msg string, cause error) *TransportError {
	return &TransportError{Provider: p.id, Op: op, StatusCode: status, Message: msg, Cause: cause}
}

func isChatModel(id string) bool {
	lower := strings.ToLower(id)
	for _, marker := range nonGenerativeMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// extractErrorMessage pulls the upstream message out of an OpenAI-style
// error body, falling back to the raw (truncated) body.
func extractErrorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var detailed struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &detailed); err == nil && detailed.Message != "" {
			return detailed.Message
		}
		var plain string
		if err := json.Unmarshal(envelope.Error, &plain); err == nil && plain != "" {
			return plain
		}
	}

	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return "empty error body"
	}
	return utils.Truncate(raw, maxErrorBodyChars)
}

// UsageInfo contains token usage reported by the provider
type UsageInfo struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// extractUsageFromResponse extracts token usage from a completion body
func extractUsageFromResponse(body []byte) UsageInfo {
	var response struct {
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
			// Responses-API style names some gateways emit
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return UsageInfo{}
	}

	usage := UsageInfo{
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
		TotalTokens:  response.Usage.TotalTokens,
	}
	if usage.InputTokens == 0 {
		usage.InputTokens = response.Usage.InputTokens
	}
	if usage.OutputTokens == 0 {
		usage.OutputTokens = response.Usage.OutputTokens
	}
	return usage
}

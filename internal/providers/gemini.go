package providers

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"slices"
	"strings"

	"google.golang.org/genai"

	"growth_quest/internal/utils"
)

const generateContentAction = "generateContent"

// geminiModels is the part of the genai Models service the transport uses.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	All(ctx context.Context) iter.Seq2[*genai.Model, error]
}

// GeminiTransport is the native transport for the primary backend, built on
// the Google Gen AI SDK.
type GeminiTransport struct {
	id         Identity
	models     geminiModels
	httpClient *http.Client
	logger     *utils.Logger
}

// NewGeminiTransport creates a Gemini API client authenticated with an API key
func NewGeminiTransport(id Identity, creds Credentials, opts Options) (Transport, error) {
	if creds.APIKey == "" {
		return nil, &ConfigurationError{Provider: id, Reason: "missing API key"}
	}

	httpClient := opts.httpClient()
	cc := &genai.ClientConfig{
		APIKey:     creds.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if creds.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: creds.BaseURL}
	}

	// NewClient only validates the config; no request is made here.
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, &ConfigurationError{Provider: id, Reason: "failed to create client: " + err.Error(), Cause: err}
	}

	tr := newGeminiTransport(id, client.Models, opts.logger(string(id)))
	tr.httpClient = httpClient
	return tr, nil
}

func newGeminiTransport(id Identity, models geminiModels, logger *utils.Logger) *GeminiTransport {
	return &GeminiTransport{id: id, models: models, logger: logger}
}

// Identity returns the provider this transport serves
func (g *GeminiTransport) Identity() Identity {
	return g.id
}

// Send generates content for a single text prompt
func (g *GeminiTransport) Send(ctx context.Context, model, prompt string) (*Completion, error) {
	resp, err := g.models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return nil, g.wrap(OpGenerate, err)
	}
	if resp == nil {
		return nil, &TransportError{Provider: g.id, Op: OpGenerate, Message: "empty response"}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &TransportError{Provider: g.id, Op: OpGenerate, Message: "prompt blocked: " + string(resp.PromptFeedback.BlockReason)}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, &TransportError{Provider: g.id, Op: OpGenerate, Message: "empty response"}
	}

	completion := &Completion{Text: text, Model: resp.ModelVersion}
	if completion.Model == "" {
		completion.Model = model
	}
	if resp.UsageMetadata != nil {
		completion.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		completion.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	g.logger.Debug("Content generated", "model", completion.Model, "input_tokens", completion.InputTokens, "output_tokens", completion.OutputTokens)
	return completion, nil
}

// ListModels pages through the Gemini model listing
func (g *GeminiTransport) ListModels(ctx context.Context) ([]ModelDescriptor, error) {
	var models []ModelDescriptor
	for m, err := range g.models.All(ctx) {
		if err != nil {
			return nil, g.wrap(OpListModels, err)
		}
		if m == nil || m.Name == "" {
			continue
		}
		id := strings.TrimPrefix(m.Name, "models/")
		display := m.DisplayName
		if display == "" {
			display = id
		}
		models = append(models, ModelDescriptor{
			ID:                 id,
			DisplayName:        display,
			SupportsGeneration: slices.Contains(m.SupportedActions, generateContentAction),
		})
	}
	return models, nil
}

// Close drops the pooled connections of the underlying HTTP client
func (g *GeminiTransport) Close() error {
	if g.httpClient != nil {
		g.httpClient.CloseIdleConnections()
	}
	return nil
}

func (g *GeminiTransport) wrap(op string, err error) *TransportError {
	te := &TransportError{Provider: g.id, Op: op, Message: err.Error(), Cause: err}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		te.StatusCode = apiErr.Code
		if apiErr.Message != "" {
			te.Message = apiErr.Message
		}
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		te.StatusCode = apiErrPtr.Code
		if apiErrPtr.Message != "" {
			te.Message = apiErrPtr.Message
		}
	}
	return te
}

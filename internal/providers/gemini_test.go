package providers

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGeminiModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	listing  []*genai.Model
	listErr  error
	model    string
	contents []*genai.Content
}

func (f *fakeGeminiModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	return f.resp, f.err
}

func (f *fakeGeminiModels) All(ctx context.Context) iter.Seq2[*genai.Model, error] {
	return func(yield func(*genai.Model, error) bool) {
		for _, m := range f.listing {
			if !yield(m, nil) {
				return
			}
		}
		if f.listErr != nil {
			yield(nil, f.listErr)
		}
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 4,
		},
	}
}

func TestGeminiSend(t *testing.T) {
	fake := &fakeGeminiModels{resp: textResponse("Top seller: wireless earbuds")}
	tr := newGeminiTransport(Gemini, fake, quietLogger())

	completion, err := tr.Send(context.Background(), "gemini-2.0-flash", "Which product sold best?")
	require.NoError(t, err)
	assert.Equal(t, "Top seller: wireless earbuds", completion.Text)
	assert.Equal(t, "gemini-2.0-flash", completion.Model)
	assert.Equal(t, 10, completion.InputTokens)
	assert.Equal(t, 4, completion.OutputTokens)

	assert.Equal(t, "gemini-2.0-flash", fake.model)
	require.Len(t, fake.contents, 1)
	require.Len(t, fake.contents[0].Parts, 1)
	assert.Equal(t, "Which product sold best?", fake.contents[0].Parts[0].Text)
}

func TestGeminiSendFailures(t *testing.T) {
	t.Run("api error keeps status and message", func(t *testing.T) {
		fake := &fakeGeminiModels{err: genai.APIError{Code: 403, Message: "API key not valid", Status: "PERMISSION_DENIED"}}
		_, err := newGeminiTransport(Gemini, fake, quietLogger()).Send(context.Background(), "m", "p")

		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, 403, te.StatusCode)
		assert.Contains(t, err.Error(), "API key not valid")
	})

	t.Run("network error", func(t *testing.T) {
		fake := &fakeGeminiModels{err: errors.New("dial tcp: connection refused")}
		_, err := newGeminiTransport(Gemini, fake, quietLogger()).Send(context.Background(), "m", "p")
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("empty candidates", func(t *testing.T) {
		fake := &fakeGeminiModels{resp: &genai.GenerateContentResponse{}}
		_, err := newGeminiTransport(Gemini, fake, quietLogger()).Send(context.Background(), "m", "p")
		assert.ErrorContains(t, err, "empty response")
	})

	t.Run("blocked prompt", func(t *testing.T) {
		fake := &fakeGeminiModels{resp: &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}}
		_, err := newGeminiTransport(Gemini, fake, quietLogger()).Send(context.Background(), "m", "p")
		assert.ErrorContains(t, err, "prompt blocked")
	})
}

func TestGeminiListModels(t *testing.T) {
	fake := &fakeGeminiModels{listing: []*genai.Model{
		{Name: "models/gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", SupportedActions: []string{"generateContent", "countTokens"}},
		{Name: "models/text-embedding-004", SupportedActions: []string{"embedContent"}},
		{Name: "models/gemini-1.5-pro", SupportedActions: []string{"generateContent"}},
	}}

	models, err := newGeminiTransport(Gemini, fake, quietLogger()).ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 3)
	assert.Equal(t, ModelDescriptor{ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", SupportsGeneration: true}, models[0])
	assert.False(t, models[1].SupportsGeneration)
	assert.Equal(t, "gemini-1.5-pro", models[2].DisplayName)
}

func TestGeminiListModelsError(t *testing.T) {
	fake := &fakeGeminiModels{
		listing: []*genai.Model{{Name: "models/gemini-2.0-flash"}},
		listErr: errors.New("page token expired"),
	}

	_, err := newGeminiTransport(Gemini, fake, quietLogger()).ListModels(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpListModels, te.Op)
}

func TestNewGeminiTransport(t *testing.T) {
	_, err := NewGeminiTransport(Gemini, Credentials{}, Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	tr, err := NewGeminiTransport(Gemini, Credentials{APIKey: "AIza-test"}, Options{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, Gemini, tr.Identity())
	assert.NoError(t, tr.Close())
}

type idleTracker struct {
	http.RoundTripper
	closed int
}

func (t *idleTracker) CloseIdleConnections() {
	t.closed++
}

func TestGeminiCloseReleasesIdleConnections(t *testing.T) {
	tracker := &idleTracker{RoundTripper: http.DefaultTransport}
	tr, err := NewGeminiTransport(Gemini, Credentials{APIKey: "AIza-test"}, Options{
		HTTPClient: &http.Client{Transport: tracker},
		Logger:     quietLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	assert.Equal(t, 1, tracker.closed)
}

package providers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFactoryBuildsTransportPerKind(t *testing.T) {
	f := NewDefaultFactory()

	for _, id := range Identities() {
		tr, err := f.Create(id, Credentials{APIKey: "test-key", BaseURL: id.DefaultBaseURL()}, Options{Logger: quietLogger()})
		require.NoError(t, err, id)
		assert.Equal(t, id, tr.Identity())

		switch id.Kind() {
		case KindNative:
			assert.IsType(t, &GeminiTransport{}, tr)
		case KindOpenAICompatible:
			assert.IsType(t, &OpenAICompatibleTransport{}, tr)
		}
		assert.NoError(t, tr.Close())
	}
}

func TestFactoryCreateErrors(t *testing.T) {
	f := NewFactory()

	_, err := f.Create(Gemini, Credentials{APIKey: "k"}, Options{})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	f.Register(Gemini, func(id Identity, creds Credentials, opts Options) (Transport, error) {
		return nil, errors.New("should not be called")
	})
	_, err = f.Create(Gemini, Credentials{}, Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity(" OpenRouter ")
	require.NoError(t, err)
	assert.Equal(t, OpenRouter, id)

	_, err = ParseIdentity("bedrock")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	assert.Equal(t, KindNative, Gemini.Kind())
	assert.Equal(t, KindOpenAICompatible, Nvidia.Kind())
	assert.Equal(t, "https://integrate.api.nvidia.com/v1", Nvidia.DefaultBaseURL())
}

func TestCredentialSet(t *testing.T) {
	creds := CredentialSet{
		Gemini:     {APIKey: "AIzaSyA1234567890abcd"},
		OpenRouter: {APIKey: "short"},
	}

	assert.True(t, creds.Has(Gemini))
	assert.False(t, creds.Has(Nvidia))
	assert.Equal(t, "AIza...abcd", creds.Masked(Gemini))
	assert.Equal(t, "****", creds.Masked(OpenRouter))
	assert.Equal(t, "", creds.Masked(Nvidia))
	assert.Equal(t, "https://integrate.api.nvidia.com/v1", creds.Get(Nvidia).BaseURL)
	assert.Equal(t, []Identity{Gemini, OpenRouter}, creds.Configured())
}

func TestResultRender(t *testing.T) {
	ok := Result{Status: StatusOK, Text: "Hello"}
	assert.Equal(t, "Hello", ok.Render())

	fb := Result{Status: StatusFallback, Text: "Hello", Provider: Gemini, FailedProvider: Nvidia}
	assert.Equal(t, "Hello\n\n[fallback] nvidia failed; backup response served by gemini", fb.Render())
	assert.True(t, fb.OK())

	failed := Result{Status: StatusFailed, Err: &TransportError{Provider: Gemini, Op: OpGenerate, StatusCode: 500, Message: "internal"}}
	assert.Equal(t, "Error: gemini generate failed: status 500: internal", failed.Render())
	assert.False(t, failed.OK())

	assert.Equal(t, "Error: generation failed", Result{Status: StatusFailed}.Render())
}

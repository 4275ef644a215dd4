package providers

import (
	"fmt"
	"strings"
)

// Identity names one of the supported text-generation backends.
type Identity string

const (
	Gemini     Identity = "gemini"
	OpenRouter Identity = "openrouter"
	Nvidia     Identity = "nvidia"
)

// Primary is the backend every failed generation falls back to.
const Primary = Gemini

// Kind is the wire shape a backend speaks.
type Kind string

const (
	KindNative           Kind = "native"
	KindOpenAICompatible Kind = "openai-compatible"
)

type identityInfo struct {
	kind           Kind
	displayName    string
	defaultModel   string
	defaultBaseURL string
}

var identities = map[Identity]identityInfo{
	Gemini: {
		kind:         KindNative,
		displayName:  "Google Gemini",
		defaultModel: "gemini-2.0-flash",
	},
	OpenRouter: {
		kind:           KindOpenAICompatible,
		displayName:    "OpenRouter",
		defaultModel:   "meta-llama/llama-3.3-70b-instruct:free",
		defaultBaseURL: "https://openrouter.ai/api/v1",
	},
	Nvidia: {
		kind:           KindOpenAICompatible,
		displayName:    "NVIDIA NIM",
		defaultModel:   "meta/llama-3.1-70b-instruct",
		defaultBaseURL: "https://integrate.api.nvidia.com/v1",
	},
}

// Identities returns every known provider in display order.
func Identities() []Identity {
	return []Identity{Gemini, OpenRouter, Nvidia}
}

// ParseIdentity resolves a provider name, ignoring case and surrounding space.
func ParseIdentity(name string) (Identity, error) {
	id := Identity(strings.ToLower(strings.TrimSpace(name)))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return id, nil
}

// Valid reports whether id is one of the known providers.
func (id Identity) Valid() bool {
	_, ok := identities[id]
	return ok
}

func (id Identity) String() string {
	return string(id)
}

// Kind returns the wire shape used to talk to the provider.
func (id Identity) Kind() Kind {
	return identities[id].kind
}

// DisplayName returns a human-friendly provider name.
func (id Identity) DisplayName() string {
	if info, ok := identities[id]; ok {
		return info.displayName
	}
	return string(id)
}

// DefaultModel returns the built-in model used when none is configured.
func (id Identity) DefaultModel() string {
	return identities[id].defaultModel
}

// DefaultBaseURL returns the built-in endpoint for OpenAI-compatible providers.
func (id Identity) DefaultBaseURL() string {
	return identities[id].defaultBaseURL
}

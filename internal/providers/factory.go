package providers

import (
	"fmt"
	"sync"
)

// Creator builds a transport for one provider
type Creator func(id Identity, creds Credentials, opts Options) (Transport, error)

// Factory maps provider identities to transport constructors
type Factory struct {
	mu       sync.RWMutex
	creators map[Identity]Creator
}

// NewFactory creates an empty factory
func NewFactory() *Factory {
	return &Factory{creators: make(map[Identity]Creator)}
}

// NewDefaultFactory registers the built-in transport for every known provider
func NewDefaultFactory() *Factory {
	f := NewFactory()
	for _, id := range Identities() {
		switch id.Kind() {
		case KindNative:
			f.Register(id, NewGeminiTransport)
		case KindOpenAICompatible:
			f.Register(id, NewOpenAICompatibleTransport)
		}
	}
	return f
}

// Register sets the creator for a provider, replacing any previous one
func (f *Factory) Register(id Identity, creator Creator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[id] = creator
}

// Create builds a transport. Missing credentials yield *ConfigurationError.
func (f *Factory) Create(id Identity, creds Credentials, opts Options) (Transport, error) {
	f.mu.RLock()
	creator, ok := f.creators[id]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no transport registered for %q: %w", id, ErrUnknownProvider)
	}
	if creds.APIKey == "" {
		return nil, &ConfigurationError{Provider: id, Reason: "missing API key"}
	}
	return creator(id, creds, opts)
}


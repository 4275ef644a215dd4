package providers

import (
	"context"
	"fmt"
	"net/http"
)

// Authenticator handles authentication for a provider.
// OpenAI-compatible backends use a static key in a header; the native SDK
// authenticates on its own.
type Authenticator interface {
	Authenticate(ctx context.Context) (AuthContext, error)
}

// AuthContext applies authentication to an outbound HTTP request
type AuthContext interface {
	ApplyToRequest(ctx context.Context, req *http.Request) error
}

// SimpleAPIKeyAuth puts a static API key in a request header
type SimpleAPIKeyAuth struct {
	apiKey string
	header string
	prefix string
}

// NewSimpleAPIKeyAuth creates an authenticator that sets header to prefix+apiKey
func NewSimpleAPIKeyAuth(apiKey, header, prefix string) *SimpleAPIKeyAuth {
	return &SimpleAPIKeyAuth{apiKey: apiKey, header: header, prefix: prefix}
}

// Authenticate returns the header context, failing when no key is set
func (a *SimpleAPIKeyAuth) Authenticate(ctx context.Context) (AuthContext, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("API key is empty")
	}
	return headerAuthContext{header: a.header, value: a.prefix + a.apiKey}, nil
}

type headerAuthContext struct {
	header string
	value  string
}

func (h headerAuthContext) ApplyToRequest(ctx context.Context, req *http.Request) error {
	req.Header.Set(h.header, h.value)
	return nil
}

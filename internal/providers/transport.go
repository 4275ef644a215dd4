package providers

import (
	"context"
	"net/http"
	"time"

	"growth_quest/internal/utils"
)

const defaultTransportTimeout = 60 * time.Second

// Completion is the text a transport produced for one prompt.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Transport is implemented once per provider. It sends a single prompt and
// lists the provider's models. Every failure is returned as *TransportError.
type Transport interface {
	// Identity returns the provider this transport talks to
	Identity() Identity

	// Send generates text for a single user prompt with the given model
	Send(ctx context.Context, model, prompt string) (*Completion, error)

	// ListModels returns the provider's raw model listing
	ListModels(ctx context.Context) ([]ModelDescriptor, error)

	// Close releases idle connections and SDK resources
	Close() error
}

// Options tune how transports are built.
type Options struct {
	// Timeout bounds every HTTP round trip made by the transport
	Timeout time.Duration

	// HTTPClient overrides the client built from Timeout (tests, proxies)
	HTTPClient *http.Client

	// Headers are added to every outbound request
	Headers map[string]string

	Logger *utils.Logger
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return defaultTransportTimeout
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{
		Timeout: o.timeout(),
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func (o Options) logger(prefix string) *utils.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return utils.NewLogger(prefix)
}

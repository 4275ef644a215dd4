package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured matches every ConfigurationError via errors.Is
	ErrNotConfigured = errors.New("provider not configured")

	// ErrUnknownProvider is returned for provider names outside the known set
	ErrUnknownProvider = errors.New("unknown provider")
)

// Transport operations reported in TransportError.Op
const (
	OpGenerate   = "generate"
	OpListModels = "list models"
)

// ConfigurationError reports a provider that cannot be used until its
// credentials or setup are fixed. It is a state, never a transient failure.
type ConfigurationError struct {
	Provider Identity
	Reason   string
	Cause    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: %s", e.Provider, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrNotConfigured
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// TransportError is the single failure signal a transport reports. Message
// keeps the upstream text for diagnostics.
type TransportError struct {
	Provider   Identity
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed: status %d: %s", e.Provider, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Op, msg)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// HTTPStatus exposes the upstream status for retry classification.
func (e *TransportError) HTTPStatus() int {
	return e.StatusCode
}

// FallbackExhaustedError carries both causes when the active provider and
// the primary fallback failed on the same request.
type FallbackExhaustedError struct {
	Failed   Identity
	Primary  Identity
	Original error
	Fallback error
}

func (e *FallbackExhaustedError) Error() string {
	return fmt.Sprintf("%v; fallback to %s also failed: %v", e.Original, e.Primary, e.Fallback)
}

func (e *FallbackExhaustedError) Unwrap() []error {
	return []error{e.Original, e.Fallback}
}

// DiscoveryError describes a failed model listing. Catalogs log it and
// serve their static list instead.
type DiscoveryError struct {
	Provider Identity
	Cause    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("model discovery for %s failed: %v", e.Provider, e.Cause)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// asTransportError normalizes any error returned by a transport.
func asTransportError(provider Identity, op string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Provider: provider, Op: op, Message: err.Error(), Cause: err}
}

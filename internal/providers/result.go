package providers

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FailurePrefix starts every rendered failure so callers can display it as-is.
const FailurePrefix = "Error: "

// Status is the outcome of a generation call.
type Status string

const (
	StatusOK       Status = "ok"
	StatusFallback Status = "fallback"
	StatusFailed   Status = "failed"
)

// Selection is the active (provider, model) pair.
type Selection struct {
	Provider Identity
	Model    string
}

func (s Selection) String() string {
	return fmt.Sprintf("%s/%s", s.Provider, s.Model)
}

// Result is the typed outcome of Gateway.Generate. Failures are carried in
// Err, never raised.
type Result struct {
	Status         Status
	Text           string
	Provider       Identity
	Model          string
	FailedProvider Identity
	Err            error
	RequestID      uuid.UUID
	Latency        time.Duration
	InputTokens    int
	OutputTokens   int
}

// OK reports whether the result carries text, direct or from fallback.
func (r Result) OK() bool {
	return r.Status == StatusOK || r.Status == StatusFallback
}

// IsFallback reports whether the text was served by the primary after the
// active provider failed.
func (r Result) IsFallback() bool {
	return r.Status == StatusFallback
}

// Render flattens the result to the string callers display.
func (r Result) Render() string {
	switch r.Status {
	case StatusOK:
		return r.Text
	case StatusFallback:
		return r.Text + FallbackMarker(r.FailedProvider, r.Provider)
	}
	if r.Err == nil {
		return FailurePrefix + "generation failed"
	}
	return FailurePrefix + r.Err.Error()
}

// FallbackMarker is appended to text served by the fallback path.
func FallbackMarker(failed, servedBy Identity) string {
	return fmt.Sprintf("\n\n[fallback] %s failed; backup response served by %s", failed, servedBy)
}

// ModelDescriptor is one entry of a provider's model listing.
type ModelDescriptor struct {
	ID                 string
	DisplayName        string
	SupportsGeneration bool
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Generation statuses, mirroring providers.Status
const (
	GenerationStatusOK       = "ok"
	GenerationStatusFallback = "fallback"
	GenerationStatusFailed   = "failed"
)

// GenerationRecord is the audit entry written for every gateway generation.
// The prompt itself is never stored in clear: only its digest and length,
// plus an optional encrypted payload.
type GenerationRecord struct {
	ID               uuid.UUID `db:"id" json:"id"`
	RequestID        uuid.UUID `db:"request_id" json:"request_id"`
	Provider         string    `db:"provider" json:"provider"`
	Model            string    `db:"model" json:"model"`
	Status           string    `db:"status" json:"status"`
	FailedProvider   *string   `db:"failed_provider" json:"failed_provider,omitempty"`
	Fallback         bool      `db:"fallback" json:"fallback"`
	PromptSHA256     string    `db:"prompt_sha256" json:"prompt_sha256"`
	PromptChars      int       `db:"prompt_chars" json:"prompt_chars"`
	ResponseChars    int       `db:"response_chars" json:"response_chars"`
	InputTokens      int       `db:"input_tokens" json:"input_tokens"`
	OutputTokens     int       `db:"output_tokens" json:"output_tokens"`
	LatencyMS        int64     `db:"latency_ms" json:"latency_ms"`
	ErrorMessage     *string   `db:"error_message" json:"error_message,omitempty"`
	EncryptedPayload *string   `db:"encrypted_payload" json:"encrypted_payload,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Succeeded reports whether the generation produced text
func (r *GenerationRecord) Succeeded() bool {
	return r.Status == GenerationStatusOK || r.Status == GenerationStatusFallback
}

// GenerationPayload is the plaintext sealed into EncryptedPayload
type GenerationPayload struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// ProviderSummary aggregates generation records per provider
type ProviderSummary struct {
	Provider     string  `db:"provider" json:"provider"`
	Total        int     `db:"total" json:"total"`
	Succeeded    int     `db:"succeeded" json:"succeeded"`
	Fallbacks    int     `db:"fallbacks" json:"fallbacks"`
	Failed       int     `db:"failed" json:"failed"`
	AvgLatencyMS float64 `db:"avg_latency_ms" json:"avg_latency_ms"`
	InputTokens  int64   `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64   `db:"output_tokens" json:"output_tokens"`
}

// SuccessRate returns the fraction of generations that produced text
func (s ProviderSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

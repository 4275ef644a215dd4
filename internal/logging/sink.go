package logging

import (
	"context"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"growth_quest/internal/models"
	"growth_quest/internal/providers"
	"growth_quest/internal/queue"
	"growth_quest/internal/utils"
)

// DefaultEnqueueTimeout bounds how long a generation waits on a full queue
const DefaultEnqueueTimeout = 100 * time.Millisecond

// PayloadSealer encrypts the prompt and response kept with a record.
// *storage.Encryption satisfies it.
type PayloadSealer interface {
	EncryptPayload(payload models.GenerationPayload) (string, error)
}

// QueueSink turns gateway events into generation records and enqueues them
// for the generation worker. Records that cannot be enqueued in time are
// dropped and counted.
type QueueSink struct {
	queue   queue.Queue[models.GenerationRecord]
	sealer  PayloadSealer
	timeout time.Duration
	logger  *utils.Logger
	dropped atomic.Int64
}

// SinkOption configures a QueueSink
type SinkOption func(*QueueSink)

// WithSealer stores an encrypted copy of prompt and response with each record
func WithSealer(sealer PayloadSealer) SinkOption {
	return func(s *QueueSink) { s.sealer = sealer }
}

// WithEnqueueTimeout overrides DefaultEnqueueTimeout
func WithEnqueueTimeout(d time.Duration) SinkOption {
	return func(s *QueueSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewQueueSink creates a sink writing to q
func NewQueueSink(q queue.Queue[models.GenerationRecord], opts ...SinkOption) *QueueSink {
	s := &QueueSink{
		queue:   q,
		timeout: DefaultEnqueueTimeout,
		logger:  utils.NewLogger("record-sink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements providers.Recorder
func (s *QueueSink) Record(ctx context.Context, event providers.GenerationEvent) {
	record := BuildRecord(event)

	if s.sealer != nil {
		sealed, err := s.sealer.EncryptPayload(models.GenerationPayload{
			Prompt:   event.Prompt,
			Response: event.Result.Text,
		})
		if err != nil {
			s.logger.Warn("Failed to seal generation payload", "request_id", record.RequestID, "error", err)
		} else {
			record.EncryptedPayload = &sealed
		}
	}

	// The caller may cancel right after Generate returns; the record should still go out.
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.queue.Enqueue(enqueueCtx, record); err != nil {
		s.dropped.Add(1)
		s.logger.Warn("Generation record dropped", "request_id", record.RequestID, "error", err)
	}
}

// Dropped returns how many records could not be enqueued
func (s *QueueSink) Dropped() int64 {
	return s.dropped.Load()
}

// BuildRecord converts a gateway event to its audit record. The prompt is
// kept only as a SHA-256 digest and a length.
func BuildRecord(event providers.GenerationEvent) models.GenerationRecord {
	result := event.Result

	provider := result.Provider
	if provider == "" {
		provider = event.Selection.Provider
	}
	model := result.Model
	if model == "" {
		model = event.Selection.Model
	}

	record := models.GenerationRecord{
		ID:            uuid.New(),
		RequestID:     result.RequestID,
		Provider:      string(provider),
		Model:         model,
		Status:        string(result.Status),
		Fallback:      result.IsFallback(),
		PromptSHA256:  utils.HashString(event.Prompt),
		PromptChars:   utf8.RuneCountInString(event.Prompt),
		ResponseChars: utf8.RuneCountInString(result.Text),
		InputTokens:   result.InputTokens,
		OutputTokens:  result.OutputTokens,
		LatencyMS:     result.Latency.Milliseconds(),
		CreatedAt:     event.CreatedAt,
	}
	if record.RequestID == uuid.Nil {
		record.RequestID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if result.FailedProvider != "" {
		record.FailedProvider = utils.StringPtr(string(result.FailedProvider))
	}
	if result.Err != nil {
		record.ErrorMessage = utils.StringPtr(utils.Truncate(result.Err.Error(), 2000))
	}
	return record
}

// NoopSink discards generation events.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Record(ctx context.Context, event providers.GenerationEvent) {}

package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growth_quest/internal/models"
	"growth_quest/internal/providers"
	"growth_quest/internal/queue"
	"growth_quest/internal/utils"
)

type fakeSealer struct {
	err      error
	payloads []models.GenerationPayload
}

func (f *fakeSealer) EncryptPayload(payload models.GenerationPayload) (string, error) {
	f.payloads = append(f.payloads, payload)
	if f.err != nil {
		return "", f.err
	}
	return "sealed:" + payload.Prompt, nil
}

func fallbackEvent() providers.GenerationEvent {
	return providers.GenerationEvent{
		Prompt:    "Describe the quest",
		Selection: providers.Selection{Provider: providers.OpenRouter, Model: "meta-llama/llama-3.3-70b-instruct:free"},
		Result: providers.Result{
			Status:         providers.StatusFallback,
			Text:           "Quest text",
			Provider:       providers.Gemini,
			Model:          "gemini-2.0-flash",
			FailedProvider: providers.OpenRouter,
			RequestID:      uuid.New(),
			Latency:        1500 * time.Millisecond,
			InputTokens:    4,
			OutputTokens:   7,
		},
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestBuildRecord_Fallback(t *testing.T) {
	event := fallbackEvent()
	record := BuildRecord(event)

	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, event.Result.RequestID, record.RequestID)
	assert.Equal(t, "gemini", record.Provider)
	assert.Equal(t, "gemini-2.0-flash", record.Model)
	assert.Equal(t, models.GenerationStatusFallback, record.Status)
	assert.True(t, record.Fallback)
	require.NotNil(t, record.FailedProvider)
	assert.Equal(t, "openrouter", *record.FailedProvider)
	assert.Equal(t, utils.HashString("Describe the quest"), record.PromptSHA256)
	assert.Equal(t, 18, record.PromptChars)
	assert.Equal(t, 10, record.ResponseChars)
	assert.Equal(t, int64(1500), record.LatencyMS)
	assert.Equal(t, 4, record.InputTokens)
	assert.Equal(t, 7, record.OutputTokens)
	assert.Nil(t, record.ErrorMessage)
	assert.Nil(t, record.EncryptedPayload)
	assert.Equal(t, event.CreatedAt, record.CreatedAt)
	assert.True(t, record.Succeeded())
}

func TestBuildRecord_Failure(t *testing.T) {
	event := providers.GenerationEvent{
		Prompt:    "hi",
		Selection: providers.Selection{Provider: providers.Nvidia, Model: "meta/llama-3.1-70b-instruct"},
		Result: providers.Result{
			Status: providers.StatusFailed,
			Err:    errors.New("nvidia generate failed: status 500: boom"),
		},
	}
	record := BuildRecord(event)

	assert.Equal(t, "nvidia", record.Provider)
	assert.Equal(t, "meta/llama-3.1-70b-instruct", record.Model)
	assert.Equal(t, models.GenerationStatusFailed, record.Status)
	assert.False(t, record.Fallback)
	assert.NotEqual(t, uuid.Nil, record.RequestID)
	assert.False(t, record.CreatedAt.IsZero())
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, "nvidia generate failed: status 500: boom", *record.ErrorMessage)
	assert.False(t, record.Succeeded())
}

func TestQueueSink_EnqueuesSealedRecord(t *testing.T) {
	q := queue.NewMemoryQueue[models.GenerationRecord](nil)
	sealer := &fakeSealer{}
	sink := NewQueueSink(q, WithSealer(sealer))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // a cancelled caller context must not lose the record

	event := fallbackEvent()
	sink.Record(ctx, event)

	items, err := q.DequeueWithTimeout(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].EncryptedPayload)
	assert.Equal(t, "sealed:Describe the quest", *items[0].EncryptedPayload)
	require.Len(t, sealer.payloads, 1)
	assert.Equal(t, "Quest text", sealer.payloads[0].Response)
	assert.Zero(t, sink.Dropped())
}

func TestQueueSink_SealFailureStillRecords(t *testing.T) {
	q := queue.NewMemoryQueue[models.GenerationRecord](nil)
	sink := NewQueueSink(q, WithSealer(&fakeSealer{err: errors.New("bad key")}))

	sink.Record(context.Background(), fallbackEvent())

	items, err := q.DequeueWithTimeout(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].EncryptedPayload)
}

func TestQueueSink_DropsWhenQueueUnavailable(t *testing.T) {
	cfg := queue.DefaultConfig("tiny")
	cfg.Capacity = 1
	q := queue.NewMemoryQueue[models.GenerationRecord](cfg)
	sink := NewQueueSink(q, WithEnqueueTimeout(10*time.Millisecond))

	start := time.Now()
	sink.Record(context.Background(), fallbackEvent())
	sink.Record(context.Background(), fallbackEvent()) // queue full
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), sink.Dropped())

	require.NoError(t, q.Close())
	sink.Record(context.Background(), fallbackEvent())
	assert.Equal(t, int64(2), sink.Dropped())
}

func TestNoopSink(t *testing.T) {
	var recorder providers.Recorder = NewNoopSink()
	recorder.Record(context.Background(), fallbackEvent())
}

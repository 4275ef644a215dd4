package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestQueueIntegration exercises enqueue, batch processing and the DLQ
// round trip with both backends.
func TestQueueIntegration(t *testing.T) {
	backends := map[string]func(t *testing.T, config *Config) (Queue[testRecord], DeadLetterQueue[testRecord]){
		"memory": func(t *testing.T, config *Config) (Queue[testRecord], DeadLetterQueue[testRecord]) {
			return NewMemoryQueue[testRecord](config), NewMemoryDeadLetterQueue[testRecord]()
		},
		"redis": func(t *testing.T, config *Config) (Queue[testRecord], DeadLetterQueue[testRecord]) {
			_, client := setupTestRedis(t)
			return NewRedisQueueWithClient[testRecord](client, config), NewRedisDeadLetterQueueWithClient[testRecord](client, config)
		},
	}

	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig("integration-test")
			config.BatchSize = 5
			config.BatchTimeout = 100 * time.Millisecond

			q, dlq := build(t, config)
			defer q.Close()
			defer dlq.Close()

			ctx := context.Background()
			for i := 0; i < 10; i++ {
				if err := q.Enqueue(ctx, testRecord{ID: i}); err != nil {
					t.Fatalf("Enqueue failed: %v", err)
				}
			}

			length, err := q.Length(ctx)
			if err != nil {
				t.Fatalf("Length failed: %v", err)
			}
			if length != 10 {
				t.Errorf("Expected queue length 10, got %d", length)
			}

			batch, err := q.DequeueWithTimeout(ctx, config.BatchSize, config.BatchTimeout)
			if err != nil {
				t.Fatalf("Dequeue failed: %v", err)
			}
			if len(batch) != 5 {
				t.Fatalf("Expected 5 items in batch, got %d", len(batch))
			}

			// Simulate a failed write
			if err := dlq.Add(ctx, batch[0], ErrMaxRetriesExceeded); err != nil {
				t.Fatalf("DLQ Add failed: %v", err)
			}

			dead, err := dlq.List(ctx, 0)
			if err != nil {
				t.Fatalf("DLQ List failed: %v", err)
			}
			if len(dead) != 1 || dead[0].Item.ID != 0 {
				t.Fatalf("Unexpected DLQ contents: %+v", dead)
			}
			if dead[0].Error != ErrMaxRetriesExceeded.Error() {
				t.Errorf("Expected error %q, got %q", ErrMaxRetriesExceeded, dead[0].Error)
			}

			// Retry: put it back on the queue and remove from the DLQ
			if err := q.Enqueue(ctx, dead[0].Item); err != nil {
				t.Fatalf("Re-enqueue failed: %v", err)
			}
			if err := dlq.Remove(ctx, dead[0].ID); err != nil {
				t.Fatalf("DLQ Remove failed: %v", err)
			}

			rest, err := q.Dequeue(ctx, 10)
			if err != nil {
				t.Fatalf("Dequeue failed: %v", err)
			}
			if len(rest) != 6 {
				t.Fatalf("Expected 6 remaining items, got %d", len(rest))
			}
			if rest[5].ID != 0 {
				t.Errorf("Retried item should be last, got %d", rest[5].ID)
			}

			if err := dlq.Remove(ctx, dead[0].ID); !errors.Is(err, ErrItemNotFound) {
				t.Errorf("Expected ErrItemNotFound, got %v", err)
			}
		})
	}
}

package queue

import (
	"context"
	"time"
)

// Package queue buffers generation records between the gateway and the
// audit writers. Two backends are provided:
//
// 1. Memory queue (channel-based): no persistence, no external
//    dependencies. Used when the CLI runs standalone.
//
// 2. Redis queue (Redis list): survives restarts and can be drained by a
//    worker in another process.
//
// Architecture:
//
//	┌─────────────┐
//	│   Gateway   │  Generate() -> GenerationEvent
//	└──────┬──────┘
//	       │ QueueSink (non-blocking enqueue)
//	       ▼
//	┌──────────────┐
//	│ Generation   │
//	│ Queue        │
//	└──────┬───────┘
//	       │
//	       ▼
//	┌──────────────┐
//	│ Generation   │
//	│ Worker       │
//	│ (batches)    │
//	└──────┬───────┘
//	       │ (retry)
//	       ├──────────┬──────────┬─────────┐
//	       ▼          ▼          ▼         ▼
//	 ┌──────────┐ ┌───────┐ ┌────────┐ ┌─────┐
//	 │ Postgres │ │ JSONL │ │   S3   │ │ DLQ │
//	 └──────────┘ └───────┘ └────────┘ └─────┘
//
// Features:
// - Batch processing (BatchSize items or BatchTimeout, whichever first)
// - Retry with exponential backoff (MaxRetries)
// - Dead-letter queue for records no writer accepted

// Queue is a typed FIFO
type Queue[T any] interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item T) error

	// Dequeue retrieves up to maxItems items.
	// Blocks until at least one item is available or ctx is cancelled.
	Dequeue(ctx context.Context, maxItems int) ([]T, error)

	// DequeueWithTimeout is Dequeue bounded by timeout.
	// Returns an empty slice when nothing arrived in time.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// DeadLetterQueue holds items that could not be processed
type DeadLetterQueue[T any] interface {
	// Add stores a failed item with the error that made it fail
	Add(ctx context.Context, item T, err error) error

	// List returns up to maxItems items, oldest first. maxItems <= 0 means all.
	List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error)

	// Remove deletes an item by ID
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem is a failed item plus diagnostics
type DeadLetterItem[T any] struct {
	ID        string    `json:"id"`
	Item      T         `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
}

// Config holds queue configuration
type Config struct {
	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration

	// Capacity bounds the memory queue; zero means 10 batches
	Capacity int

	// UseRedis indicates whether to use Redis or in-memory queue
	UseRedis bool

	// RedisAddr is the Redis server address (if UseRedis is true)
	RedisAddr string

	// RedisPassword is the Redis password (if UseRedis is true)
	RedisPassword string

	// RedisDB is the Redis database number (if UseRedis is true)
	RedisDB int

	// QueueName is the name/key for the queue
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		UseRedis:     false,
		QueueName:    queueName,
	}
}

func (c *Config) capacity() int {
	if c.Capacity > 0 {
		return c.Capacity
	}
	if c.BatchSize > 0 {
		return c.BatchSize * 10
	}
	return 1000
}

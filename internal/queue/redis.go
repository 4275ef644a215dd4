package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BLPOP only accepts whole seconds; shorter timeouts would block forever.
const minBlockingTimeout = time.Second

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(config *Config) (*redis.Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisQueue implements Queue using a Redis list of JSON documents
type RedisQueue[T any] struct {
	client     *redis.Client
	ownsClient bool
	config     *Config
	qKey       string
}

// NewRedisQueue creates a new Redis-backed queue with its own connection
func NewRedisQueue[T any](config *Config) (*RedisQueue[T], error) {
	client, err := NewRedisClient(config)
	if err != nil {
		return nil, err
	}
	q := NewRedisQueueWithClient[T](client, config)
	q.ownsClient = true
	return q, nil
}

// NewRedisQueueWithClient creates a queue on a shared client. Close leaves the client open.
func NewRedisQueueWithClient[T any](client *redis.Client, config *Config) *RedisQueue[T] {
	if config == nil {
		config = DefaultConfig("redis")
	}
	return &RedisQueue[T]{
		client: client,
		config: config,
		qKey:   fmt.Sprintf("queue:%s", config.QueueName),
	}
}

// Enqueue adds an item to the queue
func (q *RedisQueue[T]) Enqueue(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := q.client.RPush(ctx, q.qKey, data).Err(); err != nil {
		return mapRedisError("failed to push to Redis", err)
	}
	return nil
}

// Dequeue retrieves items from the queue
func (q *RedisQueue[T]) Dequeue(ctx context.Context, maxItems int) ([]T, error) {
	result, err := q.client.BLPop(ctx, 0, q.qKey).Result()
	if err != nil {
		return nil, mapRedisError("failed to pop from Redis", err)
	}
	return q.collect(ctx, result[1], maxItems), nil
}

// DequeueWithTimeout retrieves items with a timeout
func (q *RedisQueue[T]) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error) {
	if timeout < minBlockingTimeout {
		timeout = minBlockingTimeout
	}

	result, err := q.client.BLPop(ctx, timeout, q.qKey).Result()
	if err == redis.Nil {
		return []T{}, nil
	}
	if err != nil {
		return nil, mapRedisError("failed to pop from Redis", err)
	}
	return q.collect(ctx, result[1], maxItems), nil
}

// collect decodes the first popped value and pops more without blocking.
// Entries that fail to decode are dropped.
func (q *RedisQueue[T]) collect(ctx context.Context, first string, maxItems int) []T {
	items := make([]T, 0, maxItems)
	if item, ok := decode[T](first); ok {
		items = append(items, item)
	}

	for popped := 1; popped < maxItems; popped++ {
		raw, err := q.client.LPop(ctx, q.qKey).Result()
		if err != nil {
			break // redis.Nil or a transient error: return what we have
		}
		if item, ok := decode[T](raw); ok {
			items = append(items, item)
		}
	}
	return items
}

func decode[T any](raw string) (T, bool) {
	var item T
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return item, false
	}
	return item, true
}

// Length returns the current queue length
func (q *RedisQueue[T]) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, mapRedisError("failed to get queue length", err)
	}
	return int(length), nil
}

// Close shuts down the queue
func (q *RedisQueue[T]) Close() error {
	if !q.ownsClient {
		return nil
	}
	return q.client.Close()
}

// RedisDeadLetterQueue implements DeadLetterQueue using a Redis hash
type RedisDeadLetterQueue[T any] struct {
	client     *redis.Client
	ownsClient bool
	dlKey      string
}

// NewRedisDeadLetterQueue creates a new Redis-backed dead letter queue
func NewRedisDeadLetterQueue[T any](config *Config) (*RedisDeadLetterQueue[T], error) {
	client, err := NewRedisClient(config)
	if err != nil {
		return nil, err
	}
	q := NewRedisDeadLetterQueueWithClient[T](client, config)
	q.ownsClient = true
	return q, nil
}

// NewRedisDeadLetterQueueWithClient creates a dead letter queue on a shared client
func NewRedisDeadLetterQueueWithClient[T any](client *redis.Client, config *Config) *RedisDeadLetterQueue[T] {
	if config == nil {
		config = DefaultConfig("redis")
	}
	return &RedisDeadLetterQueue[T]{
		client: client,
		dlKey:  fmt.Sprintf("dlq:%s", config.QueueName),
	}
}

// Add adds a failed item to the dead letter queue
func (q *RedisDeadLetterQueue[T]) Add(ctx context.Context, item T, err error) error {
	dlItem := newDeadLetterItem(item, err)

	data, marshalErr := json.Marshal(dlItem)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", marshalErr)
	}

	if err := q.client.HSet(ctx, q.dlKey, dlItem.ID, data).Err(); err != nil {
		return mapRedisError("failed to add to dead letter queue", err)
	}
	return nil
}

// List retrieves items from the dead letter queue, oldest first
func (q *RedisDeadLetterQueue[T]) List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, mapRedisError("failed to list dead letter items", err)
	}

	items := make([]DeadLetterItem[T], 0, len(results))
	for _, data := range results {
		var dlItem DeadLetterItem[T]
		if err := json.Unmarshal([]byte(data), &dlItem); err != nil {
			continue // Skip malformed items
		}
		items = append(items, dlItem)
	}

	sortByTimestamp(items)
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

// Remove removes an item from the dead letter queue
func (q *RedisDeadLetterQueue[T]) Remove(ctx context.Context, id string) error {
	removed, err := q.client.HDel(ctx, q.dlKey, id).Result()
	if err != nil {
		return mapRedisError("failed to remove from dead letter queue", err)
	}
	if removed == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Close shuts down the dead letter queue
func (q *RedisDeadLetterQueue[T]) Close() error {
	if !q.ownsClient {
		return nil
	}
	return q.client.Close()
}

func mapRedisError(msg string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrQueueClosed
	}
	return fmt.Errorf("%s: %w", msg, err)
}

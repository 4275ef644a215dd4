package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"growth_quest/internal/models"
	"growth_quest/internal/queue"
	"growth_quest/internal/utils"
)

// drainPollTimeout is how long Stop waits for stragglers once the queue looks empty
const drainPollTimeout = 50 * time.Millisecond

// WorkerStats counts what the worker has done since Start
type WorkerStats struct {
	Batches      int64
	Written      int64
	Retried      int64
	DeadLettered int64
}

// GenerationQueueWorker moves generation records from the queue to every
// configured RecordWriter. A batch is first written whole; if a writer
// rejects it, that writer gets each record individually with exponential
// backoff, and records still failing go to the dead letter queue.
type GenerationQueueWorker struct {
	queue   queue.Queue[models.GenerationRecord]
	dlq     queue.DeadLetterQueue[models.GenerationRecord]
	writers []RecordWriter
	config  *queue.Config
	logger  *utils.Logger

	started     atomic.Bool
	stopOnce    sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}
	drainCtx    context.Context

	batches      atomic.Int64
	written      atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
}

// NewGenerationQueueWorker creates a new generation queue worker
func NewGenerationQueueWorker(
	q queue.Queue[models.GenerationRecord],
	dlq queue.DeadLetterQueue[models.GenerationRecord],
	config *queue.Config,
	writers ...RecordWriter,
) *GenerationQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("generations")
	}

	return &GenerationQueueWorker{
		queue:       q,
		dlq:         dlq,
		writers:     writers,
		config:      config,
		logger:      utils.NewLogger("generation-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Writers returns the names of the configured writers
func (w *GenerationQueueWorker) Writers() []string {
	names := make([]string, len(w.writers))
	for i, writer := range w.writers {
		names[i] = writer.Name()
	}
	return names
}

// Start starts the worker goroutine. Calling it twice has no effect.
func (w *GenerationQueueWorker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

// Stop asks the worker to finish: records still queued are written before it
// returns, unless ctx expires first.
func (w *GenerationQueueWorker) Stop(ctx context.Context) error {
	if !w.started.Load() {
		return nil
	}

	w.stopOnce.Do(func() {
		w.drainCtx = ctx
		close(w.stopChan)
	})

	select {
	case <-w.stoppedChan:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("generation worker did not drain in time: %w", ctx.Err())
	}
}

// run is the main worker loop
func (w *GenerationQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	w.logger.Info("Generation worker started", "writers", w.Writers(), "batch_size", w.config.BatchSize)

	for loopCtx.Err() == nil {
		items, err := w.queue.DequeueWithTimeout(loopCtx, w.config.BatchSize, w.config.BatchTimeout)
		if errors.Is(err, queue.ErrQueueClosed) {
			w.logger.Info("Generation queue closed, worker exiting")
			return
		}
		if err != nil {
			if loopCtx.Err() != nil {
				break
			}
			w.logger.Error("Failed to dequeue generation records", "error", err)
			sleepContext(loopCtx, time.Second) // back off on error
			continue
		}
		w.processBatch(ctx, items)
	}

	select {
	case <-w.stopChan:
		w.drain(w.drainCtx)
		w.logger.Info("Generation worker stopped", "written", w.written.Load(), "dead_lettered", w.deadLettered.Load())
	default:
		w.logger.Info("Generation worker context cancelled")
	}
}

// drain writes whatever is still queued
func (w *GenerationQueueWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, drainPollTimeout)
		if err != nil || len(items) == 0 {
			return
		}
		w.processBatch(ctx, items)
	}
}

// processBatch writes one batch to every writer
func (w *GenerationQueueWorker) processBatch(ctx context.Context, records []models.GenerationRecord) {
	if len(records) == 0 {
		return
	}
	w.batches.Add(1)
	w.logger.Debug("Processing generation batch", "count", len(records))

	failures := make(map[int][]error)
	for _, writer := range w.writers {
		err := writer.WriteBatch(ctx, records)
		if err == nil {
			continue
		}

		w.logger.Warn("Batch write failed, falling back to individual writes",
			"writer", writer.Name(), "count", len(records), "error", err)
		for i := range records {
			if err := w.writeWithRetry(ctx, writer, records[i]); err != nil {
				failures[i] = append(failures[i], fmt.Errorf("%s: %w", writer.Name(), err))
			}
		}
	}

	for i := range records {
		errs, failed := failures[i]
		if !failed {
			w.written.Add(1)
			continue
		}
		w.deadLetter(ctx, records[i], errors.Join(errs...))
	}
}

// writeWithRetry writes a single record, retrying with exponential backoff
func (w *GenerationQueueWorker) writeWithRetry(ctx context.Context, writer RecordWriter, record models.GenerationRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying generation record", "writer", writer.Name(), "attempt", attempt, "backoff", backoff)
			w.retried.Add(1)
			if err := sleepContext(ctx, backoff); err != nil {
				return fmt.Errorf("retry interrupted: %w (last error: %v)", err, lastErr)
			}
		}

		err := writer.WriteBatch(ctx, []models.GenerationRecord{record})
		if err == nil {
			return nil
		}
		lastErr = err
		w.logger.Error("Failed to write generation record",
			"writer", writer.Name(), "request_id", record.RequestID, "attempt", attempt,
			"recoverable", utils.IsRecoverableError(err), "error", err)
	}

	return fmt.Errorf("%w: %w", queue.ErrMaxRetriesExceeded, lastErr)
}

func (w *GenerationQueueWorker) deadLetter(ctx context.Context, record models.GenerationRecord, cause error) {
	w.deadLettered.Add(1)
	if w.dlq == nil {
		w.logger.Error("Generation record dropped, no dead letter queue", "request_id", record.RequestID, "error", cause)
		return
	}
	// The record must reach the DLQ even when ctx is the cause of the failure.
	if err := w.dlq.Add(context.WithoutCancel(ctx), record, cause); err != nil {
		w.logger.Error("Failed to add to dead letter queue", "request_id", record.RequestID, "error", err)
		return
	}
	w.logger.Warn("Generation record moved to DLQ", "request_id", record.RequestID, "error", cause)
}

// Stats returns the worker counters
func (w *GenerationQueueWorker) Stats() WorkerStats {
	return WorkerStats{
		Batches:      w.batches.Load(),
		Written:      w.written.Load(),
		Retried:      w.retried.Load(),
		DeadLettered: w.deadLettered.Load(),
	}
}

// GetQueueLength returns the current queue length
func (w *GenerationQueueWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue
func (w *GenerationQueueWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem[models.GenerationRecord], error) {
	if w.dlq == nil {
		return nil, ErrNoDeadLetterQueue
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a failed record and removes it from the DLQ
func (w *GenerationQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return ErrNoDeadLetterQueue
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from DLQ: %w", err)
		}
		return nil
	}

	return fmt.Errorf("dead letter item %s: %w", id, queue.ErrItemNotFound)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package queue

import "errors"

var (
	// ErrQueueClosed is returned once a queue is closed and, for the memory
	// backend, drained
	ErrQueueClosed = errors.New("queue is closed")

	// ErrItemNotFound is returned when a dead letter item ID is unknown
	ErrItemNotFound = errors.New("dead letter item not found")

	// ErrMaxRetriesExceeded wraps the last error of a record that exhausted its retries
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

package storage

import "errors"

var (
	// ErrRecordNotFound is returned when a generation record is not found
	ErrRecordNotFound = errors.New("generation record not found")

	// ErrNoDeadLetterQueue is returned by dead-letter operations on a worker built without one
	ErrNoDeadLetterQueue = errors.New("dead letter queue not configured")
)

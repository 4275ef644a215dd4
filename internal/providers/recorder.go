package providers

import (
	"context"
	"time"
)

// GenerationEvent describes one completed Generate call.
type GenerationEvent struct {
	Prompt    string
	Selection Selection
	Result    Result
	CreatedAt time.Time
}

// Recorder receives an event for every generation. Implementations must not
// block the caller.
type Recorder interface {
	Record(ctx context.Context, event GenerationEvent)
}

// RecorderFunc adapts a function to Recorder
type RecorderFunc func(ctx context.Context, event GenerationEvent)

func (f RecorderFunc) Record(ctx context.Context, event GenerationEvent) {
	f(ctx, event)
}

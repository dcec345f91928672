// Package sink defines the contracts of the external playback collaborators:
// the append-only media sink and the playback position/control surface. The
// sink's one-shot completion events are rendered as blocking calls returning
// error; at most one Append or Remove may be outstanding per buffer, and the
// playback buffer is the only component allowed to call them.
package sink

import (
	"context"

	"hlsfeed/internal/models"
)

// Sink is the entity that accepts segment bytes for playback.
type Sink interface {
	// Open blocks until the sink is ready to hand out buffers.
	Open(ctx context.Context) error
	// CreateBuffer creates an append target for the given media descriptor.
	// Fails with ErrNotSupported when the descriptor cannot be played.
	CreateBuffer(mimeType string) (Buffer, error)
	// Close releases the sink. Idempotent.
	Close() error
}

// Buffer is one append target inside a sink.
type Buffer interface {
	// Append blocks until the sink has accepted the bytes. Callers must
	// never overlap Append/Remove calls on the same buffer.
	Append(ctx context.Context, data []byte) error
	// Remove blocks until [start, end) has been dropped from the buffer.
	Remove(ctx context.Context, start, end float64) error
	// Buffered returns a snapshot of the buffered time ranges. May return
	// more than one range; never cached by callers beyond one decision.
	Buffered() []models.TimeRange
}

// Playback is the external playback position and transport control surface.
type Playback interface {
	CurrentTime() float64
	SetCurrentTime(t float64)
	Play() error
	Pause()
}

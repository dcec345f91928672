// Package buffer mediates between fetched segments and the external append
// sink. All sink appends and removals of a session go through one
// PlaybackBuffer, whose single drain goroutine is the only sink writer:
// append order strictly equals enqueue order, and an append is never issued
// while another append or removal is outstanding.
package buffer

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"hlsfeed/internal/errs"
	"hlsfeed/internal/logger"
	"hlsfeed/internal/models"
	"hlsfeed/internal/sink"
)

// State is the sink-attachment lifecycle of a PlaybackBuffer.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateAppending
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateAppending:
		return "appending"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Config bounds the buffered window.
type Config struct {
	// MaxBufferLength is the forward-buffer size in seconds above which an
	// eviction is issued before the next append.
	MaxBufferLength float64
	// RetentionMargin is how many seconds behind the playhead survive an
	// eviction.
	RetentionMargin float64
}

const (
	defaultMaxBufferLength = 60
	defaultRetentionMargin = 10
)

// PlaybackBuffer owns the pending segment queue and the append cursor into
// the sink.
type PlaybackBuffer struct {
	logger   logger.Logger
	sink     sink.Sink
	position func() float64
	cfg      Config

	mu           sync.Mutex
	cond         *sync.Cond
	state        State
	initializing bool
	pending      []models.SegmentData
	buf          sink.Buffer

	ctx    context.Context
	cancel context.CancelFunc
	errCh  chan error
}

// New creates a buffer against snk. position reports the external playback
// position and is consulted once per eviction decision.
func New(log logger.Logger, snk sink.Sink, position func() float64, cfg Config) *PlaybackBuffer {
	if cfg.MaxBufferLength <= 0 {
		cfg.MaxBufferLength = defaultMaxBufferLength
	}
	if cfg.RetentionMargin <= 0 {
		cfg.RetentionMargin = defaultRetentionMargin
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &PlaybackBuffer{
		logger:   log,
		sink:     snk,
		position: position,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		errCh:    make(chan error, 16),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Initialize opens the sink, creates the append target for mimeType and
// starts the drain worker. Must complete before the first Enqueue.
func (b *PlaybackBuffer) Initialize(ctx context.Context, mimeType string) error {
	b.mu.Lock()
	if b.state != StateUninitialized || b.initializing {
		state := b.state
		b.mu.Unlock()
		if state == StateClosed {
			return errors.Wrap(errs.ErrClosed, "initializing buffer")
		}
		return errors.New("buffer already initialized")
	}
	b.initializing = true
	b.mu.Unlock()

	if err := b.sink.Open(ctx); err != nil {
		b.mu.Lock()
		b.initializing = false
		b.mu.Unlock()
		return errors.Wrap(err, "opening sink")
	}

	buf, err := b.sink.CreateBuffer(mimeType)
	if err != nil {
		b.mu.Lock()
		b.initializing = false
		b.mu.Unlock()
		return err
	}

	b.mu.Lock()
	b.initializing = false
	if b.state == StateClosed {
		b.mu.Unlock()
		b.sink.Close()
		return errors.Wrap(errs.ErrClosed, "initializing buffer")
	}
	b.buf = buf
	b.state = StateReady
	b.mu.Unlock()

	go b.drain()
	b.logger.Infof("Playback buffer ready (maxBufferLength=%.0fs, retentionMargin=%.0fs)",
		b.cfg.MaxBufferLength, b.cfg.RetentionMargin)
	return nil
}

// Enqueue places one segment at the tail of the pending queue and returns
// immediately. The drain worker appends pending segments to the sink in
// FIFO order. Fails with ErrNotInitialized before Initialize and with
// ErrClosed after Destroy.
func (b *PlaybackBuffer) Enqueue(seg models.SegmentData) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateUninitialized:
		return errs.ErrNotInitialized
	case StateClosed:
		return errs.ErrClosed
	}

	b.pending = append(b.pending, seg)
	b.cond.Signal()
	return nil
}

// BufferedRanges returns a snapshot of the sink's buffered time ranges.
// Nil until Initialize has completed.
func (b *PlaybackBuffer) BufferedRanges() []models.TimeRange {
	b.mu.Lock()
	buf := b.buf
	b.mu.Unlock()
	if buf == nil {
		return nil
	}
	return buf.Buffered()
}

// PendingCount reports how many segments await append.
func (b *PlaybackBuffer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// State returns the current lifecycle state.
func (b *PlaybackBuffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Errors delivers sink append/removal failures. Failures are recoverable:
// the buffer returns to ready and later enqueues proceed. When nobody reads
// the channel, errors beyond its capacity are logged and dropped.
func (b *PlaybackBuffer) Errors() <-chan error {
	return b.errCh
}

// Destroy drops the pending queue, stops the drain worker and closes the
// sink attachment. Safe to call multiple times.
func (b *PlaybackBuffer) Destroy() {
	b.mu.Lock()
	if b.state == StateClosed {
		b.mu.Unlock()
		return
	}
	dropped := len(b.pending)
	b.state = StateClosed
	b.pending = nil
	b.cond.Broadcast()
	b.mu.Unlock()

	b.cancel()
	b.sink.Close()
	if dropped > 0 {
		b.logger.Infof("Playback buffer destroyed, dropped %d pending segments", dropped)
	}
}

// drain is the single sink writer. It pops the queue head, runs the
// eviction check, then issues the append; one segment per iteration keeps
// append order equal to enqueue order.
func (b *PlaybackBuffer) drain() {
	for {
		b.mu.Lock()
		for len(b.pending) == 0 && b.state != StateClosed {
			b.cond.Wait()
		}
		if b.state == StateClosed {
			b.mu.Unlock()
			return
		}
		seg := b.pending[0]
		b.pending = b.pending[1:]
		b.state = StateAppending
		b.mu.Unlock()

		b.evictIfNeeded()

		if err := b.buf.Append(b.ctx, seg.Bytes); err != nil {
			if b.ctx.Err() == nil {
				b.report(&errs.SinkOperationError{Op: "append", Err: err})
			}
		} else {
			b.logger.Debugf("Appended segment %d (%d bytes)", seg.Sequence, len(seg.Bytes))
		}

		b.mu.Lock()
		if b.state != StateClosed {
			b.state = StateReady
		}
		b.mu.Unlock()
	}
}

// evictIfNeeded removes played-out data when the buffered window has grown
// past MaxBufferLength. The removal completes before the pending append is
// issued; the two are never outstanding together. A failed removal is
// reported but does not block the append, so media is never dropped over a
// trim failure.
func (b *PlaybackBuffer) evictIfNeeded() {
	ranges := b.buf.Buffered()
	if len(ranges) == 0 {
		return
	}

	position := b.position()
	bufferedEnd := ranges[len(ranges)-1].End
	if bufferedEnd-position <= b.cfg.MaxBufferLength {
		return
	}

	removeEnd := position - b.cfg.RetentionMargin
	if removeEnd <= 0 {
		return
	}

	b.logger.Debugf("Evicting buffered range [0, %.3f), position=%.3f, bufferedEnd=%.3f",
		removeEnd, position, bufferedEnd)
	if err := b.buf.Remove(b.ctx, 0, removeEnd); err != nil && b.ctx.Err() == nil {
		b.report(&errs.SinkOperationError{Op: "remove", Err: err})
	}
}

func (b *PlaybackBuffer) report(err error) {
	select {
	case b.errCh <- err:
	default:
		b.logger.Warnf("Dropping unconsumed buffer error: %v", err)
	}
}

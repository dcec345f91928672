package sink

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"hlsfeed/internal/errs"
	"hlsfeed/internal/logger"
	"hlsfeed/internal/models"
)

// rangeMergeSlack glues ranges whose endpoints differ only by float noise.
const rangeMergeSlack = 1e-9

// MemSink is an in-process simulation of a media sink plus its playback
// surface. Each appended segment extends the buffered ranges by a nominal
// duration; the playhead advances on the wall clock while playing. It
// rejects overlapping Append/Remove calls the way a real sink would.
type MemSink struct {
	logger          logger.Logger
	nominalDuration float64

	// NowFunc supplies the clock; tests override it.
	NowFunc func() time.Time

	mu        sync.Mutex
	opened    bool
	closed    bool
	position  float64
	playing   bool
	playStart time.Time
}

// NewMemSink builds a simulated sink whose appends each cover
// nominalDuration seconds of media time.
func NewMemSink(log logger.Logger, nominalDuration float64) *MemSink {
	return &MemSink{
		logger:          log,
		nominalDuration: nominalDuration,
		NowFunc:         time.Now,
	}
}

// Open marks the sink ready. Fails on a closed sink.
func (s *MemSink) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrap(errs.ErrClosed, "opening sink")
	}
	s.opened = true
	return nil
}

// CreateBuffer hands out an append target. Only mp4 video/audio descriptors
// are accepted by the simulation.
func (s *MemSink) CreateBuffer(mimeType string) (Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened || s.closed {
		return nil, errors.Wrap(errs.ErrClosed, "creating buffer")
	}
	if !strings.HasPrefix(mimeType, "video/") && !strings.HasPrefix(mimeType, "audio/") {
		return nil, errors.Wrapf(errs.ErrNotSupported, "mime type %q", mimeType)
	}
	return &memBuffer{sink: s}, nil
}

// Close releases the sink. Idempotent.
func (s *MemSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.position = s.currentTimeLocked()
		s.playing = false
	}
	s.closed = true
	return nil
}

// CurrentTime returns the playback position in seconds.
func (s *MemSink) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTimeLocked()
}

func (s *MemSink) currentTimeLocked() float64 {
	if s.playing {
		return s.position + s.NowFunc().Sub(s.playStart).Seconds()
	}
	return s.position
}

// SetCurrentTime moves the playhead.
func (s *MemSink) SetCurrentTime(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = t
	s.playStart = s.NowFunc()
}

// Play starts the playhead clock. Fails on a closed sink.
func (s *MemSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrap(errs.ErrClosed, "play")
	}
	if !s.playing {
		s.playing = true
		s.playStart = s.NowFunc()
	}
	return nil
}

// Pause freezes the playhead.
func (s *MemSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.position = s.currentTimeLocked()
		s.playing = false
	}
}

// memBuffer is the MemSink append target.
type memBuffer struct {
	sink *MemSink

	mu       sync.Mutex
	ranges   []models.TimeRange
	updating bool
}

// Append simulates accepting one segment: the buffered ranges grow by the
// sink's nominal duration, contiguously from the current buffered end. An
// overlapping Append/Remove is a caller error and fails immediately.
func (b *memBuffer) Append(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.beginUpdate("append"); err != nil {
		return err
	}
	defer b.endUpdate()

	b.mu.Lock()
	defer b.mu.Unlock()
	start := 0.0
	if n := len(b.ranges); n > 0 {
		start = b.ranges[n-1].End
	}
	b.ranges = addRange(b.ranges, models.TimeRange{Start: start, End: start + b.sink.nominalDuration})
	b.sink.logger.Debugf("Sink accepted %d bytes, buffered end now %.3f", len(data), start+b.sink.nominalDuration)
	return nil
}

// Remove drops [start, end) from the buffered ranges.
func (b *memBuffer) Remove(ctx context.Context, start, end float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if end <= start {
		return errors.Errorf("invalid removal range [%.3f, %.3f)", start, end)
	}
	if err := b.beginUpdate("remove"); err != nil {
		return err
	}
	defer b.endUpdate()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ranges = subtractRange(b.ranges, models.TimeRange{Start: start, End: end})
	return nil
}

// Buffered returns a copy of the buffered ranges.
func (b *memBuffer) Buffered() []models.TimeRange {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.TimeRange, len(b.ranges))
	copy(out, b.ranges)
	return out
}

func (b *memBuffer) beginUpdate(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink.mu.Lock()
	closed := b.sink.closed
	b.sink.mu.Unlock()
	if closed {
		return errors.Wrap(errs.ErrClosed, op)
	}
	if b.updating {
		return errors.Errorf("%s issued while another update is outstanding", op)
	}
	b.updating = true
	return nil
}

func (b *memBuffer) endUpdate() {
	b.mu.Lock()
	b.updating = false
	b.mu.Unlock()
}

// addRange inserts r and normalizes: sorted by start, overlapping or
// touching ranges merged.
func addRange(ranges []models.TimeRange, r models.TimeRange) []models.TimeRange {
	ranges = append(ranges, r)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	merged := ranges[:1]
	for _, next := range ranges[1:] {
		last := &merged[len(merged)-1]
		if next.Start <= last.End+rangeMergeSlack {
			if next.End > last.End {
				last.End = next.End
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// subtractRange cuts r out of every range it intersects.
func subtractRange(ranges []models.TimeRange, r models.TimeRange) []models.TimeRange {
	var out []models.TimeRange
	for _, cur := range ranges {
		if r.End <= cur.Start || r.Start >= cur.End {
			out = append(out, cur)
			continue
		}
		if r.Start > cur.Start {
			out = append(out, models.TimeRange{Start: cur.Start, End: r.Start})
		}
		if r.End < cur.End {
			out = append(out, models.TimeRange{Start: r.End, End: cur.End})
		}
	}
	return out
}

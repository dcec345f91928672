// Package controller drives the buffer-feeding pipeline: it loads the
// manifest, seeds the playback buffer, and on a fixed cadence re-fetches the
// manifest and tops the buffer up whenever the forward buffer runs low.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"hlsfeed/internal/buffer"
	"hlsfeed/internal/config"
	"hlsfeed/internal/fetch"
	"hlsfeed/internal/hls"
	"hlsfeed/internal/logger"
	"hlsfeed/internal/models"
	"hlsfeed/internal/sink"
)

// State is the controller lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Stats is a read-only snapshot of the session.
type Stats struct {
	State      string             `json:"state"`
	Position   float64            `json:"position"`
	Buffered   []models.TimeRange `json:"buffered"`
	Playing    bool               `json:"playing"`
	Dispatched int                `json:"dispatched_sequence"`
	Pending    int                `json:"pending_segments"`
	EndList    bool               `json:"end_list"`
}

// Controller is the control loop of one streaming session. Every other
// component is passive; the controller decides what to fetch next and never
// writes to the sink except through the playback buffer.
type Controller struct {
	logger   logger.Logger
	cfg      *config.Config
	loader   *hls.PlaylistLoader
	segments *fetch.Fetcher
	buffer   *buffer.PlaybackBuffer
	playback sink.Playback

	mu         sync.Mutex
	state      State
	playlist   *hls.Playlist
	dispatched int // highest sequence number handed to the fetcher, -1 before any

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires a controller against the given sink and playback surface.
func New(log logger.Logger, cfg *config.Config, snk sink.Sink, playback sink.Playback) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := fetch.NewHTTPClient()
	loader, err := hls.NewPlaylistLoader(httpClient, log, cfg.UserAgent, cfg.ManifestURL, cfg.ManifestTimeout)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		logger:   log,
		cfg:      cfg,
		loader:   loader,
		segments: fetch.New(httpClient, log, cfg.UserAgent, cfg.SegmentTimeout),
		buffer:   buffer.New(log, snk, playback.CurrentTime, buffer.Config{
			MaxBufferLength: cfg.MaxBufferLength,
			RetentionMargin: cfg.RetentionMargin,
		}),
		playback:   playback,
		dispatched: -1,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}, nil
}

// Load performs the initial manifest fetch, initializes the playback buffer,
// fetches the initial segment window, honors autoplay, and starts the
// periodic refresh task.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return errors.Errorf("load called in state %s", state)
	}
	c.state = StateLoading
	c.mu.Unlock()

	playlist, err := c.loader.Load(ctx)
	if err != nil {
		c.setState(StateIdle)
		return err
	}
	c.setPlaylist(playlist)

	if err := c.buffer.Initialize(ctx, c.cfg.MimeType); err != nil {
		c.setState(StateIdle)
		return err
	}

	initial := playlist.Segments
	if len(initial) > c.cfg.InitialSegments {
		initial = initial[:c.cfg.InitialSegments]
	}
	if err := c.dispatch(ctx, initial); err != nil {
		c.setState(StateIdle)
		return err
	}

	next := StatePaused
	if c.cfg.Autoplay {
		if err := c.playback.Play(); err != nil {
			c.setState(StateIdle)
			return errors.Wrap(err, "autoplay")
		}
		next = StatePlaying
	}
	c.setState(next)

	go c.refreshLoop()
	c.logger.Infof("Session loaded: %d segments known, endList=%v, state=%s",
		len(playlist.Segments), playlist.EndList, next)
	return nil
}

// Play delegates to the playback surface. A rejected play leaves the
// controller state unchanged.
func (c *Controller) Play() error {
	c.mu.Lock()
	if c.state == StateDestroyed || c.state == StateIdle {
		state := c.state
		c.mu.Unlock()
		return errors.Errorf("play called in state %s", state)
	}
	c.mu.Unlock()

	if err := c.playback.Play(); err != nil {
		return errors.Wrap(err, "play")
	}
	c.setState(StatePlaying)
	return nil
}

// Pause delegates to the playback surface.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.state == StateDestroyed || c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.playback.Pause()
	c.setState(StatePaused)
}

// Seek moves the playback position. When the buffered ranges do not already
// cover the target, the manifest is re-fetched, the dispatch cursor rewinds
// to the segment containing the target, and a fresh window is enqueued.
func (c *Controller) Seek(ctx context.Context, t float64) error {
	c.mu.Lock()
	if c.state == StateDestroyed || c.state == StateIdle {
		state := c.state
		c.mu.Unlock()
		return errors.Errorf("seek called in state %s", state)
	}
	c.mu.Unlock()

	c.playback.SetCurrentTime(t)

	for _, r := range c.buffer.BufferedRanges() {
		if r.Contains(t) {
			return nil
		}
	}

	playlist, err := c.loader.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "seek refresh")
	}
	c.setPlaylist(playlist)

	idx := playlist.IndexForTime(t)
	if idx < 0 {
		return nil
	}

	c.mu.Lock()
	c.dispatched = playlist.Segments[idx].Sequence - 1
	c.mu.Unlock()

	window := playlist.Segments[idx:]
	if len(window) > c.cfg.InitialSegments {
		window = window[:c.cfg.InitialSegments]
	}
	return c.dispatch(ctx, window)
}

// Destroy stops the refresh task, aborts in-flight fetches and tears down
// the playback buffer. Idempotent.
func (c *Controller) Destroy() {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	started := c.state != StateIdle && c.state != StateLoading
	c.state = StateDestroyed
	c.mu.Unlock()

	c.cancel()
	c.loader.Abort()
	c.segments.Abort()
	c.buffer.Destroy()
	if started {
		<-c.done
	}
	c.logger.Infof("Session destroyed")
}

// Stats returns a read-only snapshot. No side effects.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	state := c.state
	dispatched := c.dispatched
	endList := c.playlist != nil && c.playlist.EndList
	c.mu.Unlock()

	return Stats{
		State:      state.String(),
		Position:   c.playback.CurrentTime(),
		Buffered:   c.buffer.BufferedRanges(),
		Playing:    state == StatePlaying,
		Dispatched: dispatched,
		Pending:    c.buffer.PendingCount(),
		EndList:    endList,
	}
}

// refreshLoop is the periodic refresh task, active from Load until Destroy.
func (c *Controller) refreshLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debugf("Refresh loop stopped")
			return
		case err := <-c.buffer.Errors():
			c.logger.Warnf("Sink operation failed: %v", err)
		case <-ticker.C:
			c.refresh()
		}
	}
}

// refresh re-fetches the manifest and dispatches newly needed segments. A
// failed cycle is logged and retried on the next tick; it never terminates
// the session.
func (c *Controller) refresh() {
	if c.exhausted() {
		return
	}

	playlist, err := c.loader.Load(c.ctx)
	if err != nil {
		c.logger.Warnf("Manifest refresh failed, retrying next tick: %v", err)
		return
	}
	c.setPlaylist(playlist)

	forward := c.forwardBuffer()
	if forward >= c.cfg.LowWaterMark {
		return
	}

	c.mu.Lock()
	cursor := c.dispatched
	c.mu.Unlock()

	var fresh []hls.Segment
	for _, s := range playlist.Segments {
		if s.Sequence > cursor {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) == 0 {
		return
	}

	c.logger.Debugf("Forward buffer %.1fs below low-water %.1fs, dispatching %d segments after sequence %d",
		forward, c.cfg.LowWaterMark, len(fresh), cursor)
	if err := c.dispatch(c.ctx, fresh); err != nil {
		c.logger.Warnf("Segment dispatch failed, retrying next tick: %v", err)
	}
}

// dispatch fetches segments one at a time and enqueues them in manifest
// order. The single segment fetcher guarantees one request in flight; the
// per-segment cursor update lets a failed cycle resume where it stopped.
func (c *Controller) dispatch(ctx context.Context, segs []hls.Segment) error {
	for _, s := range segs {
		data, err := c.segments.Fetch(ctx, s.URL)
		if err != nil {
			return errors.Wrapf(err, "fetching segment %d", s.Sequence)
		}

		if err := c.buffer.Enqueue(models.SegmentData{
			Bytes:    data,
			Sequence: s.Sequence,
			Duration: s.Duration,
		}); err != nil {
			return errors.Wrapf(err, "enqueueing segment %d", s.Sequence)
		}

		c.mu.Lock()
		if s.Sequence > c.dispatched {
			c.dispatched = s.Sequence
		}
		c.mu.Unlock()
	}
	return nil
}

// forwardBuffer is the buffered duration ahead of the playhead.
func (c *Controller) forwardBuffer() float64 {
	ranges := c.buffer.BufferedRanges()
	if len(ranges) == 0 {
		return 0
	}
	forward := ranges[len(ranges)-1].End - c.playback.CurrentTime()
	if forward < 0 {
		return 0
	}
	return forward
}

// exhausted reports whether a VOD manifest has been fully dispatched; once
// true the refresh task stops polling the manifest.
func (c *Controller) exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playlist == nil || !c.playlist.EndList {
		return false
	}
	if len(c.playlist.Segments) == 0 {
		return true
	}
	last := c.playlist.Segments[len(c.playlist.Segments)-1]
	return c.dispatched >= last.Sequence
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if c.state != StateDestroyed {
		c.state = s
	}
	c.mu.Unlock()
}

// setPlaylist atomically replaces the current manifest.
func (c *Controller) setPlaylist(p *hls.Playlist) {
	c.mu.Lock()
	c.playlist = p
	c.mu.Unlock()
}

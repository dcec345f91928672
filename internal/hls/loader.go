package hls

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"hlsfeed/internal/fetch"
	"hlsfeed/internal/logger"
)

// PlaylistLoader fetches a playlist from its URL and parses it. It holds one
// fetcher, so at most one manifest request is in flight at a time.
type PlaylistLoader struct {
	manifestURL string
	base        *url.URL
	fetcher     *fetch.Fetcher
	logger      logger.Logger
}

// NewPlaylistLoader validates manifestURL and builds the loader.
func NewPlaylistLoader(client *http.Client, log logger.Logger, userAgent, manifestURL string, timeout time.Duration) (*PlaylistLoader, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid manifest URL %q", manifestURL)
	}

	return &PlaylistLoader{
		manifestURL: manifestURL,
		base:        base,
		fetcher:     fetch.New(client, log, userAgent, timeout),
		logger:      log,
	}, nil
}

// Load retrieves and parses the playlist. Cancelling ctx, or a concurrent
// Load or Abort, fails the outstanding request with ErrCancelled.
func (l *PlaylistLoader) Load(ctx context.Context) (*Playlist, error) {
	data, err := l.fetcher.Fetch(ctx, l.manifestURL)
	if err != nil {
		return nil, errors.Wrap(err, "loading playlist")
	}

	playlist, err := Parse(l.base, string(data))
	if err != nil {
		return nil, err
	}

	l.logger.Debugf("Loaded playlist %s: %d segments, targetDuration=%d, endList=%v",
		l.manifestURL, len(playlist.Segments), playlist.TargetDuration, playlist.EndList)
	return playlist, nil
}

// Abort cancels the in-flight manifest request, if any. Idempotent.
func (l *PlaylistLoader) Abort() {
	l.fetcher.Abort()
}

// URL returns the manifest URL this loader polls.
func (l *PlaylistLoader) URL() string {
	return l.manifestURL
}

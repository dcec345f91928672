// Package fetch implements the single-flight HTTP retrieval used for both
// manifests and media segments. A Fetcher holds at most one outstanding
// request: issuing a new request first cancels the old one, and completion
// handlers of a superseded request are no-ops (generation counter).
package fetch

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"hlsfeed/internal/errs"
	"hlsfeed/internal/logger"
)

// NewHTTPClient builds the shared transport for all fetchers of a session.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: 3 * time.Second,
		},
	}
}

// Fetcher retrieves one resource at a time over HTTP GET.
type Fetcher struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string
	timeout    time.Duration

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// New creates a fetcher. A timeout of zero disables the per-request deadline.
func New(client *http.Client, log logger.Logger, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: client,
		logger:     log,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Fetch retrieves url and returns the raw response body. An outstanding
// request on the same fetcher is cancelled first; that request fails with
// ErrCancelled. Non-2xx responses fail with StatusError, deadline expiry
// with ErrTimeout.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.gen++
	gen := f.gen
	var reqCtx context.Context
	var cancel context.CancelFunc
	if f.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}
	f.cancel = cancel
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		// Only the request that registered the cancel func may clear it.
		if f.gen == gen {
			f.cancel = nil
		}
		f.mu.Unlock()
		cancel()
	}()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", url)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.logger.Debugf("Fetching %s", url)
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, f.classify(reqCtx, err, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errs.StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, f.classify(reqCtx, err, url)
	}

	f.logger.Debugf("Fetched %s (%d bytes)", url, len(data))
	return data, nil
}

// Abort cancels the outstanding request, if any. Safe to call repeatedly
// and with no request in flight; a fetch issued afterwards is unaffected.
func (f *Fetcher) Abort() {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.mu.Unlock()
}

// classify maps a transport error to the taxonomy. The request context
// decides: deadline expiry means timeout, any other cancellation means the
// caller (or a superseding request) aborted.
func (f *Fetcher) classify(reqCtx context.Context, err error, url string) error {
	switch reqCtx.Err() {
	case context.DeadlineExceeded:
		return errors.Wrapf(errs.ErrTimeout, "fetching %s", url)
	case context.Canceled:
		return errors.Wrapf(errs.ErrCancelled, "fetching %s", url)
	}
	return errors.Wrapf(err, "fetching %s", url)
}

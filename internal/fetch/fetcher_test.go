package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsfeed/internal/errs"
	"hlsfeed/internal/logger"
)

func TestFetcher_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		fmt.Fprint(w, "segment data")
	}))
	defer server.Close()

	f := New(NewHTTPClient(), logger.Nop(), "test-agent", time.Second)
	data, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "segment data", string(data))
}

func TestFetcher_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := New(NewHTTPClient(), logger.Nop(), "", time.Second)
	_, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var statusErr *errs.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
}

func TestFetcher_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	f := New(NewHTTPClient(), logger.Nop(), "", 50*time.Millisecond)
	_, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTimeout)
}

func TestFetcher_CompletesBeforeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "fast enough")
	}))
	defer server.Close()

	f := New(NewHTTPClient(), logger.Nop(), "", 5*time.Second)
	data, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "fast enough", string(data))
}

func TestFetcher_AbortCancelsOutstanding(t *testing.T) {
	arrived := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-r.Context().Done()
	}))
	defer server.Close()

	f := New(NewHTTPClient(), logger.Nop(), "", 0)

	result := make(chan error, 1)
	go func() {
		_, err := f.Fetch(context.Background(), server.URL)
		result <- err
	}()

	<-arrived
	f.Abort()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, errs.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for aborted fetch to fail")
	}
}

func TestFetcher_NewRequestCancelsPrevious(t *testing.T) {
	firstArrived := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			close(firstArrived)
			<-r.Context().Done()
			return
		}
		fmt.Fprint(w, "second")
	}))
	defer server.Close()

	f := New(NewHTTPClient(), logger.Nop(), "", 0)

	firstResult := make(chan error, 1)
	go func() {
		_, err := f.Fetch(context.Background(), server.URL+"/slow")
		firstResult <- err
	}()
	<-firstArrived

	data, err := f.Fetch(context.Background(), server.URL+"/fast")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	select {
	case err := <-firstResult:
		assert.ErrorIs(t, err, errs.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for superseded fetch to fail")
	}
}

func TestFetcher_AbortIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	f := New(NewHTTPClient(), logger.Nop(), "", time.Second)

	// No request outstanding: both calls are no-ops.
	f.Abort()
	f.Abort()

	// A fetch issued after Abort is unaffected.
	data, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

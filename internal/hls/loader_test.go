package hls

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
	"hlsfeed/internal/fetch"
	"hlsfeed/internal/logger"
)

func TestPlaylistLoader_Load(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:9.009,\nseg0.ts\n#EXT-X-ENDLIST\n")
	}))
	defer server.Close()

	loader, err := NewPlaylistLoader(fetch.NewHTTPClient(), logger.Nop(), "test-agent", server.URL+"/main.m3u8", time.Second)
	require.NoError(t, err)

	playlist, err := loader.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, playlist.Segments, 1)
	assert.Equal(t, server.URL+"/seg0.ts", playlist.Segments[0].URL)
	assert.True(t, playlist.EndList)
	assert.Equal(t, 10, playlist.TargetDuration)
}

func TestPlaylistLoader_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	loader, err := NewPlaylistLoader(fetch.NewHTTPClient(), logger.Nop(), "", server.URL, time.Second)
	require.NoError(t, err)

	_, err = loader.Load(context.Background())
	require.Error(t, err)

	var statusErr *errs.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestPlaylistLoader_ParseErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a playlist\n")
	}))
	defer server.Close()

	loader, err := NewPlaylistLoader(fetch.NewHTTPClient(), logger.Nop(), "", server.URL, time.Second)
	require.NoError(t, err)

	_, err = loader.Load(context.Background())
	var parseErr *errs.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestPlaylistLoader_InvalidURL(t *testing.T) {
	_, err := NewPlaylistLoader(fetch.NewHTTPClient(), logger.Nop(), "", "http://bad host/main.m3u8", time.Second)
	assert.Error(t, err)
}

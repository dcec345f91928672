package hls

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsfeed/internal/errs"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParse_SegmentsInDocumentOrder(t *testing.T) {
	text := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:9.009,first
https://cdn.example.com/seg0.ts
#EXTINF:9.009,
https://cdn.example.com/seg1.ts
#EXTINF:3.003,
https://cdn.example.com/seg2.ts
`
	playlist, err := Parse(mustParseURL(t, "https://cdn.example.com/main.m3u8"), text)
	require.NoError(t, err)

	require.Len(t, playlist.Segments, 3)
	for i, s := range playlist.Segments {
		assert.Equal(t, i, s.Sequence)
	}
	assert.Equal(t, "https://cdn.example.com/seg0.ts", playlist.Segments[0].URL)
	assert.InDelta(t, 9.009, playlist.Segments[0].Duration, 1e-9)
	assert.InDelta(t, 3.003, playlist.Segments[2].Duration, 1e-9)
	assert.Equal(t, 10, playlist.TargetDuration)
	assert.Equal(t, 3, playlist.Version)
	assert.False(t, playlist.EndList)
}

func TestParse_EndListFlag(t *testing.T) {
	base := mustParseURL(t, "https://example.com/main.m3u8")

	withMarker := "#EXTM3U\n#EXTINF:4,\nseg.ts\n#EXT-X-ENDLIST\n"
	playlist, err := Parse(base, withMarker)
	require.NoError(t, err)
	assert.True(t, playlist.EndList)

	withoutMarker := "#EXTM3U\n#EXTINF:4,\nseg.ts\n"
	playlist, err = Parse(base, withoutMarker)
	require.NoError(t, err)
	assert.False(t, playlist.EndList)
}

func TestParse_ResolvesRelativeURLs(t *testing.T) {
	text := `#EXTM3U
#EXTINF:6,
media/seg0.ts
#EXTINF:6,
/root/seg1.ts
#EXTINF:6,
https://other.example.com/seg2.ts
`
	playlist, err := Parse(mustParseURL(t, "https://cdn.example.com/live/stream.m3u8"), text)
	require.NoError(t, err)
	require.Len(t, playlist.Segments, 3)

	assert.Equal(t, "https://cdn.example.com/live/media/seg0.ts", playlist.Segments[0].URL)
	assert.Equal(t, "https://cdn.example.com/root/seg1.ts", playlist.Segments[1].URL)
	assert.Equal(t, "https://other.example.com/seg2.ts", playlist.Segments[2].URL)
}

func TestParse_LenientNumericFields(t *testing.T) {
	text := `#EXTM3U
#EXT-X-VERSION:abc
#EXT-X-TARGETDURATION:oops
#EXTINF:not-a-number,
seg0.ts
seg1.ts
`
	playlist, err := Parse(mustParseURL(t, "https://example.com/main.m3u8"), text)
	require.NoError(t, err)

	assert.Equal(t, 0, playlist.Version)
	assert.Equal(t, 0, playlist.TargetDuration)
	require.Len(t, playlist.Segments, 2)
	// Unparsable EXTINF defaults to 0, as does a missing annotation.
	assert.Zero(t, playlist.Segments[0].Duration)
	assert.Zero(t, playlist.Segments[1].Duration)
}

func TestParse_IgnoresUnknownTags(t *testing.T) {
	text := `#EXTM3U
#EXT-X-MEDIA-SEQUENCE:100
#EXT-X-PROGRAM-DATE-TIME:2026-01-01T00:00:00Z
#EXTINF:5,
seg.ts
`
	playlist, err := Parse(mustParseURL(t, "https://example.com/main.m3u8"), text)
	require.NoError(t, err)
	require.Len(t, playlist.Segments, 1)
	assert.InDelta(t, 5.0, playlist.Segments[0].Duration, 1e-9)
}

func TestParse_RejectsMissingHeader(t *testing.T) {
	base := mustParseURL(t, "https://example.com/main.m3u8")

	var parseErr *errs.ParseError

	_, err := Parse(base, "#EXTINF:5,\nseg.ts\n")
	require.Error(t, err)
	require.ErrorAs(t, err, &parseErr)

	_, err = Parse(base, "\n\n")
	require.Error(t, err)
	require.ErrorAs(t, err, &parseErr)
}

func TestPlaylist_TotalDurationAndIndexForTime(t *testing.T) {
	playlist := &Playlist{Segments: []Segment{
		{Duration: 10, Sequence: 0},
		{Duration: 10, Sequence: 1},
		{Duration: 5, Sequence: 2},
	}}

	assert.InDelta(t, 25.0, playlist.TotalDuration(), 1e-9)
	assert.Equal(t, 0, playlist.IndexForTime(0))
	assert.Equal(t, 0, playlist.IndexForTime(9.9))
	assert.Equal(t, 1, playlist.IndexForTime(10))
	assert.Equal(t, 2, playlist.IndexForTime(24))
	// Past the end clamps to the last segment.
	assert.Equal(t, 2, playlist.IndexForTime(1000))

	empty := &Playlist{}
	assert.Equal(t, -1, empty.IndexForTime(5))
}

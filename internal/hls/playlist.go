// Package hls models the line-oriented media playlist and its parser.
package hls

import (
	"net/url"
	"strconv"
	"strings"

	"hlsfeed/internal/errs"
)

const (
	tagHeader         = "#EXTM3U"
	tagInf            = "#EXTINF:"
	tagTargetDuration = "#EXT-X-TARGETDURATION:"
	tagEndList        = "#EXT-X-ENDLIST"
	tagVersion        = "#EXT-X-VERSION:"
)

// Segment is one entry of a playlist. Immutable after parsing.
type Segment struct {
	// URL is absolute, resolved against the playlist's own URL.
	URL string
	// Duration in seconds as annotated by the preceding EXTINF line,
	// 0 when no annotation was given.
	Duration float64
	// Sequence is a zero-based counter in document order, unique within
	// one parse. Not guaranteed stable across refreshes of a live source.
	Sequence int
}

// Playlist is the parsed manifest. One playlist replaces the previous on
// each refresh; old and new segment lists are never merged.
type Playlist struct {
	Segments       []Segment
	TargetDuration int
	EndList        bool
	Version        int
}

// TotalDuration sums the declared segment durations.
func (p *Playlist) TotalDuration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}

// IndexForTime returns the index of the segment whose cumulative time span
// contains t, or the last index when t lies past the end. Returns -1 for an
// empty playlist.
func (p *Playlist) IndexForTime(t float64) int {
	if len(p.Segments) == 0 {
		return -1
	}
	var cursor float64
	for i, s := range p.Segments {
		if t < cursor+s.Duration {
			return i
		}
		cursor += s.Duration
	}
	return len(p.Segments) - 1
}

// Parse turns raw playlist text into a Playlist. Pure, no I/O. Segment URLs
// are resolved against base so relative entries behave like absolute ones.
//
// Numeric fields are parsed leniently: an unparsable EXTINF, TARGETDURATION
// or VERSION value defaults to 0 and never aborts the parse. The document
// marker is validated strictly: the first non-blank line must be #EXTM3U.
// Unrecognized tags are ignored for forward compatibility.
func Parse(base *url.URL, text string) (*Playlist, error) {
	playlist := &Playlist{}

	var pendingDuration float64
	sequence := 0
	sawHeader := false

	for n, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if !sawHeader {
			if line != tagHeader {
				return nil, &errs.ParseError{Line: n + 1, Reason: "missing " + tagHeader + " header"}
			}
			sawHeader = true
			continue
		}

		if strings.HasPrefix(line, "#") {
			switch {
			case strings.HasPrefix(line, tagInf):
				value := strings.SplitN(line[len(tagInf):], ",", 2)[0]
				pendingDuration = parseFloat(value)
			case strings.HasPrefix(line, tagTargetDuration):
				playlist.TargetDuration = parseInt(line[len(tagTargetDuration):])
			case line == tagEndList:
				playlist.EndList = true
			case strings.HasPrefix(line, tagVersion):
				playlist.Version = parseInt(line[len(tagVersion):])
			}
			continue
		}

		playlist.Segments = append(playlist.Segments, Segment{
			URL:      resolveURL(base, line),
			Duration: pendingDuration,
			Sequence: sequence,
		})
		sequence++
		pendingDuration = 0
	}

	if !sawHeader {
		return nil, &errs.ParseError{Line: 1, Reason: "empty document"}
	}

	return playlist, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}

// resolveURL resolves a playlist entry against the playlist URL. An entry
// that does not parse as a URL reference is kept verbatim.
func resolveURL(base *url.URL, line string) string {
	if base == nil {
		return line
	}
	ref, err := url.Parse(line)
	if err != nil {
		return line
	}
	return base.ResolveReference(ref).String()
}

package models

// SegmentData carries the fetched bytes of one media segment together with
// its provenance. Ownership transfers to the playback buffer on enqueue and
// ends once the bytes have been handed to the sink.
type SegmentData struct {
	// Bytes is the opaque binary container data as fetched.
	Bytes []byte
	// Sequence is the sequence number assigned at parse time.
	Sequence int
	// Duration is the segment duration in seconds, as declared by the
	// manifest. Informational; the sink derives its own timing.
	Duration float64
}

// TimeRange is one buffered interval [Start, End) in seconds.
type TimeRange struct {
	Start float64
	End   float64
}

// Duration returns the length of the range in seconds.
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t float64) bool {
	return t >= r.Start && t < r.End
}

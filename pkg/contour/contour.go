// Package contour represents a recording's pitch contour as an ordered list of
// control points and evaluates it as a piecewise-linear function of time.
//
// A [Segment] starts at (0, 0) and ends at (duration, 0); frequency 0 denotes
// silence. Timestamps never decrease. Two consecutive points may share a
// timestamp where a sound object begins or ends, which gives the contour a
// vertical edge between silence and pitch.
//
// This package is pitch-domain only. Conversion to note numbers lives in the
// note package.
package contour

import (
	"math"
	"sort"
)

// Point is a single control point of a [Segment].
type Point struct {
	// T is the time in seconds from the start of the recording.
	T float64 `json:"t" yaml:"t"`

	// Hz is the frequency at T, or 0 for silence.
	Hz float64 `json:"hz" yaml:"hz"`
}

// Segment is the full control-point sequence for one recording. A Segment is
// read-only once built; operations that change it return a new Segment.
type Segment []Point

// Span is a half-open time interval [Start, End) in seconds.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the timestamp of the final control point, or 0 for an
// empty segment.
func (s Segment) Duration() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].T
}

// ValueAt returns the contour frequency at time t.
//
// The bracketing pair is the last point at or before t and its successor, so
// at a vertical edge the value on the later side wins. Times outside the
// segment are clamped to its first or last point; the contour is never
// extrapolated. A zero-width bracket evaluates to 0.
func (s Segment) ValueAt(t float64) float64 {
	n := len(s)
	switch n {
	case 0:
		return 0
	case 1:
		return s[0].Hz
	}

	if math.IsNaN(t) || t < s[0].T {
		t = s[0].T
	}

	var i int
	if t >= s[n-1].T {
		t = s[n-1].T
		i = n - 2
	} else {
		j := sort.Search(n, func(k int) bool { return s[k].T > t })
		i = j - 1
	}

	return interpolate(t, s[i], s[i+1])
}

func interpolate(t float64, p0, p1 Point) float64 {
	dt := p1.T - p0.T
	if dt == 0 {
		return 0
	}
	return p0.Hz + (p1.Hz-p0.Hz)*(t-p0.T)/dt
}

// SilentSpans returns every interval bounded by two consecutive points that
// both carry 0 Hz. Zero-width intervals are omitted.
func (s Segment) SilentSpans() []Span {
	var spans []Span
	for i := 1; i < len(s); i++ {
		if s[i-1].Hz != 0 || s[i].Hz != 0 {
			continue
		}
		if s[i].T > s[i-1].T {
			spans = append(spans, Span{Start: s[i-1].T, End: s[i].T})
		}
	}
	return spans
}

// Transform returns a copy of s played back speed times faster and with every
// frequency multiplied by ratio. Non-positive arguments leave the respective
// dimension unchanged.
func (s Segment) Transform(speed, ratio float64) Segment {
	if speed <= 0 {
		speed = 1
	}
	if ratio <= 0 {
		ratio = 1
	}
	out := make(Segment, len(s))
	for i, p := range s {
		out[i] = Point{T: p.T / speed, Hz: p.Hz * ratio}
	}
	return out
}

// IsOrdered reports whether timestamps in s never decrease.
func (s Segment) IsOrdered() bool {
	for i := 1; i < len(s); i++ {
		if s[i].T < s[i-1].T {
			return false
		}
	}
	return true
}

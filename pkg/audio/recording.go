package audio

import (
	"math"
	"slices"

	"github.com/MrWong99/voicenote/pkg/contour"
)

// Recording is a mono waveform captured during one recording window.
type Recording struct {
	// Samples are normalised to [-1, 1].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int
}

// Duration returns the length of the recording in seconds.
func (r Recording) Duration() float64 {
	if r.SampleRate <= 0 {
		return 0
	}
	return float64(len(r.Samples)) / float64(r.SampleRate)
}

// Append adds samples to the end of the recording.
func (r *Recording) Append(samples []float32) {
	r.Samples = append(r.Samples, samples...)
}

// Mask returns a copy of r with every sample inside the given spans set to
// zero. A span [t0, t1) covers sample indexes floor(t0*sr) up to but not
// including floor(t1*sr); indexes past the end of the recording are ignored.
func (r Recording) Mask(spans []contour.Span) Recording {
	out := Recording{Samples: slices.Clone(r.Samples), SampleRate: r.SampleRate}
	if r.SampleRate <= 0 {
		return out
	}
	sr := float64(r.SampleRate)
	n := len(out.Samples)
	for _, sp := range spans {
		from := max(0, int(math.Floor(sp.Start*sr)))
		to := min(n, int(math.Floor(sp.End*sr)))
		if from >= to {
			continue
		}
		clear(out.Samples[from:to])
	}
	return out
}

// MaskSilence returns a copy of r with every part zeroed where seg is silent:
// the spans of [contour.Segment.SilentSpans], and everything after the final
// point when that point is at 0 Hz. The single-point segment of a take
// without frames therefore masks the whole recording.
func (r Recording) MaskSilence(seg contour.Segment) Recording {
	spans := seg.SilentSpans()
	if n := len(seg); n > 0 && seg[n-1].Hz == 0 {
		last := seg[n-1].T
		spans = append(spans, contour.Span{Start: last, End: max(last, r.Duration())})
	}
	return r.Mask(spans)
}

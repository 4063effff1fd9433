package segment

import (
	"math"

	"github.com/MrWong99/voicenote/pkg/frame"
)

// DenoiseStats counts the frames the denoiser zeroed, by cause.
type DenoiseStats struct {
	// Silent frames were below the amplitude floor or the pitch threshold.
	Silent int `json:"silent"`

	// Jumps were pitched frames rejected as detector discontinuities.
	Jumps int `json:"jumps"`
}

// Dropped returns the total number of zeroed frames, excluding the seeded
// first frame.
func (s DenoiseStats) Dropped() int { return s.Silent + s.Jumps }

// Denoise returns the cleaned pitch column of buf in a single forward pass.
//
// The first frame is always 0. Every later frame is 0 when its amplitude is
// below AmplitudeFloorRatio times the mean amplitude of the buffer, or when
// its pitch is below MinFrequency+PitchDeadband. A voiced frame whose pitch
// differs from the previous frame's by more than PitchJumpTolerance is a
// detector artifact and is zeroed, unless the previous frame was unvoiced or
// the pitch is still within tolerance of the last accepted pitch of the
// current voiced run (the frame after a spike). Accepted pitches are
// multiplied by PitchScale.
func Denoise(buf *frame.Buffer, p Params) ([]float64, DenoiseStats) {
	var stats DenoiseStats
	n := buf.Len()
	if n == 0 {
		return nil, stats
	}

	pitches := buf.Pitches()
	amps := buf.Amplitudes()

	floor := p.AmplitudeFloorRatio * mean(amps)
	threshold := p.MinFrequency + p.PitchDeadband
	scale := p.PitchScale
	if scale <= 0 {
		scale = 1
	}

	voiced := func(i int) bool {
		return amps[i] >= floor && pitches[i] >= threshold
	}

	out := make([]float64, n)
	var ref float64 // last accepted raw pitch of the current voiced run
	for i := 1; i < n; i++ {
		if !voiced(i) {
			stats.Silent++
			ref = 0
			continue
		}
		pitch := pitches[i]
		if voiced(i-1) && math.Abs(pitch-pitches[i-1]) > p.PitchJumpTolerance {
			if ref == 0 || math.Abs(pitch-ref) > p.PitchJumpTolerance {
				stats.Jumps++
				continue
			}
		}
		out[i] = pitch * scale
		ref = pitch
	}
	return out, stats
}

// mean returns the arithmetic mean of xs, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Package segment turns the frames and onsets of one recording window into a
// [contour.Segment].
//
// The pipeline runs in three passes, each O(n) in frames plus O(log n) per
// onset:
//
//  1. [Denoise] cleans the raw pitch column, zeroing silent, sub-threshold and
//     discontinuous frames.
//  2. [ExtractSoundObjects] aligns every onset with the cleaned stream and
//     grows a run of continuous pitch from it.
//  3. [Assemble] brackets each sound object with silence and joins them into
//     one control-point sequence spanning the recording.
//
// [Build] runs all three. Nothing in this package is real-time safe; it runs
// once per recording after the window closes.
package segment

import "fmt"

// OverlapPolicy decides what happens when two onsets yield sound objects that
// share frames.
type OverlapPolicy string

const (
	// OverlapSuppress drops a sound object that starts at or before the last
	// frame of the previous one.
	OverlapSuppress OverlapPolicy = "suppress"

	// OverlapMerge unions overlapping sound objects into one.
	OverlapMerge OverlapPolicy = "merge"
)

// IsValid reports whether o is a recognised policy.
func (o OverlapPolicy) IsValid() bool {
	return o == OverlapSuppress || o == OverlapMerge
}

// Params holds the analysis thresholds. Frequencies are in Hz.
type Params struct {
	// MinFrequency is the lowest frequency the front-end detector reports.
	MinFrequency float64

	// PitchDeadband is added to MinFrequency; raw pitches below the sum are
	// treated as silence.
	PitchDeadband float64

	// PitchJumpTolerance is the largest raw frame-to-frame change accepted as
	// a real transition by the denoiser.
	PitchJumpTolerance float64

	// SoundObjectJumpTolerance is the largest change between consecutive
	// cleaned pitches inside a sound object.
	SoundObjectJumpTolerance float64

	// MinSoundObjectLength rejects sound objects with this many frames or fewer.
	MinSoundObjectLength int

	// OnsetLookaheadFrames bounds how far past an onset extraction searches
	// for the first pitched frame.
	OnsetLookaheadFrames int

	// AmplitudeFloorRatio scales the mean amplitude of the recording into the
	// silence floor.
	AmplitudeFloorRatio float64

	// PitchScale multiplies every accepted pitch. Detectors with an octave
	// bias need 2.0 or 0.5; an unbiased detector uses 1.0.
	PitchScale float64

	// Overlap selects how overlapping sound objects are resolved.
	Overlap OverlapPolicy
}

// DefaultParams returns the thresholds tuned for sung input at a 20 ms
// analysis tick.
func DefaultParams() Params {
	return Params{
		MinFrequency:             50,
		PitchDeadband:            40,
		PitchJumpTolerance:       30,
		SoundObjectJumpTolerance: 50,
		MinSoundObjectLength:     2,
		OnsetLookaheadFrames:     10,
		AmplitudeFloorRatio:      0.5,
		PitchScale:               1,
		Overlap:                  OverlapSuppress,
	}
}

// Validate reports parameters that would make the pipeline meaningless.
func (p Params) Validate() error {
	switch {
	case p.MinFrequency < 0:
		return fmt.Errorf("segment: min frequency %v is negative", p.MinFrequency)
	case p.PitchJumpTolerance < 0 || p.SoundObjectJumpTolerance < 0:
		return fmt.Errorf("segment: jump tolerances must not be negative")
	case p.MinSoundObjectLength < 0:
		return fmt.Errorf("segment: min sound object length %d is negative", p.MinSoundObjectLength)
	case p.OnsetLookaheadFrames < 0:
		return fmt.Errorf("segment: onset lookahead %d is negative", p.OnsetLookaheadFrames)
	case p.PitchScale <= 0:
		return fmt.Errorf("segment: pitch scale %v must be positive", p.PitchScale)
	case p.Overlap != "" && !p.Overlap.IsValid():
		return fmt.Errorf("segment: overlap policy %q is invalid; valid values: suppress, merge", p.Overlap)
	}
	return nil
}

package segment

import (
	"cmp"
	"math"
	"slices"
	"sort"

	"github.com/MrWong99/voicenote/pkg/contour"
	"github.com/MrWong99/voicenote/pkg/frame"
)

// SoundObject is a run of continuous pitched frames grown from one onset.
type SoundObject struct {
	// Onset is the attack timestamp the object was extracted from.
	Onset float64 `json:"onset"`

	// First and Last are the inclusive frame indexes covered by the object.
	First int `json:"first"`
	Last  int `json:"last"`

	// Points holds the (timestamp, cleaned pitch) pairs of every covered frame.
	Points []contour.Point `json:"points"`
}

// Len returns the number of frames in the object.
func (o SoundObject) Len() int { return o.Last - o.First + 1 }

// ExtractStats counts why onsets failed to produce a sound object.
type ExtractStats struct {
	// Unpitched onsets found no pitched frame within the lookahead window.
	Unpitched int `json:"unpitched"`

	// TooShort onsets grew a run no longer than MinSoundObjectLength.
	TooShort int `json:"too_short"`

	// Overlapping onsets were resolved by the overlap policy.
	Overlapping int `json:"overlapping"`
}

// ExtractSoundObjects aligns each onset with the cleaned pitch stream and
// grows a sound object from it. timestamps and cleaned are parallel columns
// of the same recording.
//
// Onsets are processed in timestamp order. Each onset snaps to the nearest
// frame timestamp, skips at most OnsetLookaheadFrames unpitched frames, then
// extends forward while the next frame is pitched and within
// SoundObjectJumpTolerance of the current one. Runs of MinSoundObjectLength
// frames or fewer are discarded. The returned objects are ordered and never
// share frames.
func ExtractSoundObjects(timestamps, cleaned []float64, onsets []frame.Onset, p Params) ([]SoundObject, ExtractStats) {
	var stats ExtractStats
	n := min(len(timestamps), len(cleaned))
	if n == 0 || len(onsets) == 0 {
		return nil, stats
	}

	ordered := slices.Clone(onsets)
	slices.SortStableFunc(ordered, func(a, b frame.Onset) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	var objects []SoundObject
	for _, onset := range ordered {
		start, ok := pitchedStart(timestamps[:n], cleaned[:n], onset.Timestamp, p.OnsetLookaheadFrames)
		if !ok {
			stats.Unpitched++
			continue
		}

		last := start
		for last+1 < n && cleaned[last+1] != 0 &&
			math.Abs(cleaned[last+1]-cleaned[last]) <= p.SoundObjectJumpTolerance {
			last++
		}

		if last-start+1 <= p.MinSoundObjectLength {
			stats.TooShort++
			continue
		}

		obj := SoundObject{Onset: onset.Timestamp, First: start, Last: last}
		if len(objects) > 0 && start <= objects[len(objects)-1].Last {
			stats.Overlapping++
			if p.Overlap != OverlapMerge {
				continue
			}
			prev := &objects[len(objects)-1]
			prev.Last = max(prev.Last, last)
			prev.Points = points(timestamps, cleaned, prev.First, prev.Last)
			continue
		}
		obj.Points = points(timestamps, cleaned, start, last)
		objects = append(objects, obj)
	}
	return objects, stats
}

// pitchedStart returns the index of the first pitched frame at or after the
// frame nearest to t, looking at most lookahead frames past it.
func pitchedStart(timestamps, cleaned []float64, t float64, lookahead int) (int, bool) {
	i := nearest(timestamps, t)
	for k := 0; k < lookahead && i < len(cleaned) && cleaned[i] == 0; k++ {
		i++
	}
	if i >= len(cleaned) || cleaned[i] == 0 {
		return 0, false
	}
	return i, true
}

// nearest returns the index of the timestamp closest to t by binary search.
// Ties resolve to the later index.
func nearest(timestamps []float64, t float64) int {
	i := sort.SearchFloat64s(timestamps, t)
	if i == len(timestamps) {
		return len(timestamps) - 1
	}
	if i > 0 && t-timestamps[i-1] < timestamps[i]-t {
		return i - 1
	}
	return i
}

func points(timestamps, cleaned []float64, first, last int) []contour.Point {
	pts := make([]contour.Point, 0, last-first+1)
	for i := first; i <= last; i++ {
		pts = append(pts, contour.Point{T: timestamps[i], Hz: cleaned[i]})
	}
	return pts
}

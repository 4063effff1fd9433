// Package note converts contour frequencies into discrete MIDI note numbers
// and derives run-length encoded note events from a [contour.Segment].
package note

import (
	"math"

	"github.com/MrWong99/voicenote/pkg/contour"
)

// Silence is the note number used for unpitched time. MIDI note 0 (C-1,
// ~8 Hz) is far below any voice, so it doubles as the silence marker.
const Silence = 0

const (
	// MaxNote is the highest MIDI note number.
	MaxNote = 127

	// a4Note and a4Hz anchor equal-tempered tuning.
	a4Note = 69
	a4Hz   = 440.0
)

// FromHz quantizes a frequency to the nearest equal-tempered MIDI note.
// Non-positive and NaN frequencies map to [Silence]; audible frequencies are
// clamped to [1, MaxNote].
func FromHz(hz float64) int {
	if !(hz > 0) || math.IsInf(hz, 0) {
		return Silence
	}
	n := int(math.Round(a4Note + 12*math.Log2(hz/a4Hz)))
	return max(1, min(MaxNote, n))
}

// ToHz returns the equal-tempered frequency of note n, or 0 for [Silence].
func ToHz(n int) float64 {
	if n == Silence {
		return 0
	}
	return a4Hz * math.Pow(2, float64(n-a4Note)/12)
}

// Event is one sounding note derived from a segment.
type Event struct {
	// Note is the MIDI note number. Never [Silence].
	Note int `json:"note"`

	// Start is the note-on time in seconds from the start of the take.
	Start float64 `json:"start"`

	// End is the note-off time in seconds from the start of the take.
	End float64 `json:"end"`
}

// Derive samples seg every interval seconds from 0 through its final
// timestamp, quantizes each sample and run-length encodes the result. Runs
// of [Silence] are dropped. The last run ends at the segment's duration.
//
// Sample times are computed as k*interval rather than accumulated, so long
// takes do not drift.
func Derive(seg contour.Segment, interval float64) []Event {
	if len(seg) == 0 || !(interval > 0) {
		return nil
	}

	end := seg.Duration()
	steps := int(math.Floor(end/interval + 1e-9))

	var (
		events []Event
		cur    = Silence
		start  float64
	)
	for k := 0; k <= steps; k++ {
		t := float64(k) * interval
		n := FromHz(seg.ValueAt(t))
		if n == cur {
			continue
		}
		if cur != Silence {
			events = append(events, Event{Note: cur, Start: start, End: t})
		}
		cur, start = n, t
	}
	if cur != Silence && end > start {
		events = append(events, Event{Note: cur, Start: start, End: end})
	}
	return events
}

package segment

import (
	"github.com/MrWong99/voicenote/pkg/contour"
	"github.com/MrWong99/voicenote/pkg/frame"
)

// Assemble joins ordered, non-overlapping sound objects into one segment:
// (0, 0), then each object bracketed by silence points at its first and last
// timestamps, then a closing silence point at duration. When the last object
// ends after duration the closing point moves to that object's end so
// timestamps never decrease.
func Assemble(objects []SoundObject, duration float64) contour.Segment {
	size := 2
	for _, o := range objects {
		size += len(o.Points) + 2
	}

	seg := make(contour.Segment, 0, size)
	seg = append(seg, contour.Point{})
	for _, o := range objects {
		if len(o.Points) == 0 {
			continue
		}
		first, last := o.Points[0].T, o.Points[len(o.Points)-1].T
		seg = append(seg, contour.Point{T: first})
		seg = append(seg, o.Points...)
		seg = append(seg, contour.Point{T: last})
	}
	seg = append(seg, contour.Point{T: max(duration, seg.Duration())})
	return seg
}

// Result is the output of [Build] for one recording window.
type Result struct {
	// Cleaned is the denoised pitch column, parallel to the frame buffer.
	Cleaned []float64

	// Objects are the accepted sound objects in onset order.
	Objects []SoundObject

	// Segment is the assembled control-point sequence.
	Segment contour.Segment

	// Denoise and Extract carry the per-stage rejection counters.
	Denoise DenoiseStats
	Extract ExtractStats
}

// Build runs the full segmentation pipeline over one recording. An empty
// buffer yields the degenerate segment [(0, 0)].
func Build(buf *frame.Buffer, onsets []frame.Onset, duration float64, p Params) Result {
	if buf.Len() == 0 {
		return Result{Segment: contour.Segment{{}}}
	}
	cleaned, dstats := Denoise(buf, p)
	objects, estats := ExtractSoundObjects(buf.Timestamps(), cleaned, onsets, p)
	return Result{
		Cleaned: cleaned,
		Objects: objects,
		Segment: Assemble(objects, duration),
		Denoise: dstats,
		Extract: estats,
	}
}

package contour_test

import (
	"math"
	"testing"

	"github.com/MrWong99/voicenote/pkg/contour"
)

// a4Segment is a single A4 sound object between t=1 and t=2 in a 3 s take.
var a4Segment = contour.Segment{
	{T: 0, Hz: 0},
	{T: 1, Hz: 0},
	{T: 1, Hz: 440},
	{T: 2, Hz: 440},
	{T: 2, Hz: 0},
	{T: 3, Hz: 0},
}

func TestValueAt(t *testing.T) {
	t.Parallel()

	glide := contour.Segment{{T: 0, Hz: 0}, {T: 1, Hz: 200}, {T: 3, Hz: 400}, {T: 4, Hz: 0}}

	tests := []struct {
		name string
		seg  contour.Segment
		t    float64
		want float64
	}{
		{"empty", nil, 1, 0},
		{"single point", contour.Segment{{T: 0, Hz: 0}}, 5, 0},
		{"start", a4Segment, 0, 0},
		{"before sound", a4Segment, 0.5, 0},
		{"vertical edge takes later side", a4Segment, 1, 440},
		{"inside sound", a4Segment, 1.5, 440},
		{"closing edge is silent", a4Segment, 2, 0},
		{"after sound", a4Segment, 2.5, 0},
		{"end", a4Segment, 3, 0},
		{"clamp before start", glide, -1, 0},
		{"clamp after end", glide, 10, 0},
		{"rising ramp", glide, 0.5, 100},
		{"mid glide", glide, 2, 300},
		{"falling ramp", glide, 3.5, 200},
		{"NaN clamps to start", glide, math.NaN(), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := tc.seg.ValueAt(tc.t)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("ValueAt(%v) = %v, want %v", tc.t, got, tc.want)
			}
		})
	}
}

func TestValueAt_ZeroWidthBracketReturnsZero(t *testing.T) {
	t.Parallel()

	seg := contour.Segment{{T: 0, Hz: 0}, {T: 2, Hz: 300}, {T: 2, Hz: 500}}
	if got := seg.ValueAt(5); got != 0 {
		t.Errorf("ValueAt past a zero-width final pair = %v, want 0", got)
	}
}

func TestValueAt_Idempotent(t *testing.T) {
	t.Parallel()

	seg := contour.Segment{{T: 0, Hz: 0}, {T: 0.3, Hz: 0}, {T: 0.3, Hz: 210}, {T: 0.7, Hz: 260}, {T: 0.7, Hz: 0}, {T: 1, Hz: 0}}
	for x := 0.0; x <= 1.0; x += 0.01 {
		a, b := seg.ValueAt(x), seg.ValueAt(x)
		if a != b {
			t.Fatalf("ValueAt(%v) not idempotent: %v != %v", x, a, b)
		}
	}
}

func TestValueAt_ContinuousInsideObjects(t *testing.T) {
	t.Parallel()

	seg := contour.Segment{{T: 0, Hz: 0}, {T: 0.2, Hz: 0}, {T: 0.2, Hz: 200}, {T: 0.4, Hz: 220}, {T: 0.6, Hz: 215}, {T: 0.6, Hz: 0}, {T: 1, Hz: 0}}
	const step = 1e-4
	// Between the two vertical edges the contour must not jump by more than
	// the slope allows.
	for x := 0.2; x+step < 0.6; x += step {
		d := math.Abs(seg.ValueAt(x+step) - seg.ValueAt(x))
		if d > 0.2 {
			t.Fatalf("discontinuity at t=%v: delta %v", x, d)
		}
	}
}

func TestSilentSpans(t *testing.T) {
	t.Parallel()

	got := a4Segment.SilentSpans()
	want := []contour.Span{{Start: 0, End: 1}, {Start: 2, End: 3}}
	if len(got) != len(want) {
		t.Fatalf("SilentSpans() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("span[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTransform(t *testing.T) {
	t.Parallel()

	got := a4Segment.Transform(2, 0.5)
	if got.Duration() != 1.5 {
		t.Errorf("Duration() = %v, want 1.5", got.Duration())
	}
	if v := got.ValueAt(0.75); v != 220 {
		t.Errorf("ValueAt(0.75) = %v, want 220", v)
	}
	// The source must be untouched.
	if a4Segment[2].Hz != 440 || a4Segment.Duration() != 3 {
		t.Error("Transform modified its receiver")
	}

	same := a4Segment.Transform(0, -1)
	for i := range same {
		if same[i] != a4Segment[i] {
			t.Fatalf("Transform(0, -1) changed point %d: %v", i, same[i])
		}
	}
}

func TestIsOrdered(t *testing.T) {
	t.Parallel()

	if !a4Segment.IsOrdered() {
		t.Error("a4Segment should be ordered")
	}
	if (contour.Segment{{T: 1}, {T: 0.5}}).IsOrdered() {
		t.Error("decreasing timestamps reported as ordered")
	}
}

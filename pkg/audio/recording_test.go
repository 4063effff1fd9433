package audio_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/voicenote/pkg/audio"
	"github.com/MrWong99/voicenote/pkg/contour"
)

func ones(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

func TestRecording_Mask(t *testing.T) {
	t.Parallel()

	rec := audio.Recording{Samples: ones(30), SampleRate: 10}
	seg := contour.Segment{{T: 0}, {T: 1}, {T: 1, Hz: 440}, {T: 2, Hz: 440}, {T: 2}, {T: 3}}

	masked := rec.Mask(seg.SilentSpans())
	for i, s := range masked.Samples {
		want := float32(0)
		if i >= 10 && i < 20 {
			want = 1
		}
		if s != want {
			t.Errorf("sample %d = %v, want %v", i, s, want)
		}
	}
	for i, s := range rec.Samples {
		if s != 1 {
			t.Fatalf("Mask modified the source recording at %d", i)
		}
	}
}

func TestRecording_MaskClampsToLength(t *testing.T) {
	t.Parallel()

	rec := audio.Recording{Samples: ones(5), SampleRate: 10}
	masked := rec.Mask([]contour.Span{{Start: 0.3, End: 9}, {Start: -1, End: 0.1}})
	want := []float32{0, 1, 1, 0, 0}
	for i := range want {
		if masked.Samples[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, masked.Samples[i], want[i])
		}
	}
}

func TestRecording_MaskSilence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		seg  contour.Segment
		want []float32 // per 0.1 s of a 0.6 s recording
	}{
		{
			name: "take without frames",
			seg:  contour.Segment{{}},
			want: []float32{0, 0, 0, 0, 0, 0},
		},
		{
			name: "tail after silent end",
			seg:  contour.Segment{{T: 0}, {T: 0.1}, {T: 0.1, Hz: 440}, {T: 0.3, Hz: 440}, {T: 0.3}, {T: 0.4}},
			want: []float32{0, 1, 1, 0, 0, 0},
		},
		{
			name: "voiced end keeps tail",
			seg:  contour.Segment{{T: 0}, {T: 0.2}, {T: 0.2, Hz: 440}, {T: 0.4, Hz: 440}},
			want: []float32{0, 0, 1, 1, 1, 1},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := audio.Recording{Samples: ones(6), SampleRate: 10}
			masked := rec.MaskSilence(tc.seg)
			for i := range tc.want {
				if masked.Samples[i] != tc.want[i] {
					t.Errorf("sample %d = %v, want %v", i, masked.Samples[i], tc.want[i])
				}
			}
		})
	}
}

func TestRecording_Duration(t *testing.T) {
	t.Parallel()

	rec := audio.Recording{SampleRate: 8000}
	rec.Append(make([]float32, 4000))
	if got := rec.Duration(); got != 0.5 {
		t.Errorf("Duration() = %v, want 0.5", got)
	}
	if got := (audio.Recording{Samples: ones(3)}).Duration(); got != 0 {
		t.Errorf("Duration() without sample rate = %v, want 0", got)
	}
}

func TestSaveAndReadWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "take.wav")
	rec := audio.Recording{Samples: []float32{0, 0.25, -0.25, 0.5, -1}, SampleRate: 22050}
	if err := audio.SaveWAV(path, rec); err != nil {
		t.Fatalf("SaveWAV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, err := audio.ReadWAV(f)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if got.SampleRate != rec.SampleRate {
		t.Errorf("SampleRate = %d, want %d", got.SampleRate, rec.SampleRate)
	}
	if len(got.Samples) != len(rec.Samples) {
		t.Fatalf("len = %d, want %d", len(got.Samples), len(rec.Samples))
	}
	for i := range rec.Samples {
		if !approx(got.Samples[i], rec.Samples[i]) {
			t.Errorf("sample %d = %v, want %v", i, got.Samples[i], rec.Samples[i])
		}
	}
}

func TestWriteWAV_InvalidSampleRate(t *testing.T) {
	t.Parallel()

	if err := audio.SaveWAV(filepath.Join(t.TempDir(), "x.wav"), audio.Recording{}); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestReadWAV_NotWAV(t *testing.T) {
	t.Parallel()

	_, err := audio.ReadWAV(bytes.NewReader([]byte("definitely not a RIFF header")))
	if err == nil {
		t.Error("expected error for non-WAV input")
	}
}

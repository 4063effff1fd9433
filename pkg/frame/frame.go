// Package frame defines the per-tick analysis values delivered by an audio
// front-end and the append-only buffer that collects them for one recording
// window.
//
// All timestamps are seconds relative to the start of the recording window.
// Pitch is in Hz; 0 means the detector reported no pitch for the tick.
package frame

// Frame is one analysis tick: a pitch estimate and an amplitude envelope
// value sampled at Timestamp. Frames are immutable once appended to a [Buffer].
type Frame struct {
	// Timestamp is the tick time in seconds from the start of the recording.
	Timestamp float64 `json:"t" yaml:"t"`

	// Pitch is the raw detector estimate in Hz, or 0 when unpitched.
	Pitch float64 `json:"pitch" yaml:"pitch"`

	// Amplitude is the envelope follower value for the tick.
	Amplitude float64 `json:"amp" yaml:"amp"`
}

// Onset is an attack reported by the front-end's onset detector.
type Onset struct {
	// Timestamp is the attack time in seconds from the start of the recording.
	Timestamp float64 `json:"t" yaml:"t"`

	// Pitch is the detector's pitch estimate at the moment of the attack.
	// It is informational only; extraction uses the buffered frames.
	Pitch float64 `json:"pitch" yaml:"pitch"`
}

// Buffer is an append-only, time-ordered store of frames for a single
// recording window. Values are kept in parallel slices so the segmentation
// passes can walk one column without touching the others.
//
// A Buffer is not safe for concurrent use. It is owned by exactly one
// recording session, which serialises all access.
type Buffer struct {
	timestamps []float64
	pitches    []float64
	amplitudes []float64
}

// NewBuffer returns an empty buffer with room for capacity frames before the
// first reallocation.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		timestamps: make([]float64, 0, capacity),
		pitches:    make([]float64, 0, capacity),
		amplitudes: make([]float64, 0, capacity),
	}
}

// Reset discards all frames while keeping the allocated storage. It must be
// called before a new recording starts.
func (b *Buffer) Reset() {
	b.timestamps = b.timestamps[:0]
	b.pitches = b.pitches[:0]
	b.amplitudes = b.amplitudes[:0]
}

// Append adds f to the end of the buffer. Callers deliver frames in
// increasing timestamp order; the buffer does not reorder them.
func (b *Buffer) Append(f Frame) {
	b.timestamps = append(b.timestamps, f.Timestamp)
	b.pitches = append(b.pitches, f.Pitch)
	b.amplitudes = append(b.amplitudes, f.Amplitude)
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int { return len(b.timestamps) }

// At returns the i-th frame.
func (b *Buffer) At(i int) Frame {
	return Frame{Timestamp: b.timestamps[i], Pitch: b.pitches[i], Amplitude: b.amplitudes[i]}
}

// Timestamps returns the buffered timestamps. The slice aliases the buffer's
// storage and must not be modified.
func (b *Buffer) Timestamps() []float64 { return b.timestamps }

// Pitches returns the raw buffered pitch estimates. The slice aliases the
// buffer's storage and must not be modified.
func (b *Buffer) Pitches() []float64 { return b.pitches }

// Amplitudes returns the buffered amplitude values. The slice aliases the
// buffer's storage and must not be modified.
func (b *Buffer) Amplitudes() []float64 { return b.amplitudes }

// LastTimestamp returns the timestamp of the newest frame, or 0 when empty.
func (b *Buffer) LastTimestamp() float64 {
	if len(b.timestamps) == 0 {
		return 0
	}
	return b.timestamps[len(b.timestamps)-1]
}

// FromFrames builds a buffer holding a copy of frames.
func FromFrames(frames []Frame) *Buffer {
	b := NewBuffer(len(frames))
	for _, f := range frames {
		b.Append(f)
	}
	return b
}

// Package audio holds the raw waveform retained alongside a take: PCM chunk
// decoding from the front-end, the silence mask applied after segmentation,
// and WAV import/export.
package audio

// Chunk is one block of little-endian int16 PCM delivered by the audio
// front-end while a recording window is open.
type Chunk struct {
	// PCM holds interleaved int16 samples.
	PCM []byte

	// SampleRate in Hz of PCM.
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Format returns the format c was captured in.
func (c Chunk) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

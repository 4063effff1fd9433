package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavPCMFormat = 1
)

// ErrInvalidWAV is returned by [ReadWAV] when the input is not a PCM WAV file.
var ErrInvalidWAV = errors.New("audio: not a valid WAV file")

// WriteWAV encodes r as a 16-bit mono PCM WAV stream.
func WriteWAV(w io.WriteSeeker, r Recording) error {
	if r.SampleRate <= 0 {
		return fmt.Errorf("audio: write wav: invalid sample rate %d", r.SampleRate)
	}
	enc := wav.NewEncoder(w, r.SampleRate, wavBitDepth, 1, wavPCMFormat)

	data := make([]int, len(r.Samples))
	for i, s := range r.Samples {
		data[i] = int(toInt16(s))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: r.SampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: close wav: %w", err)
	}
	return nil
}

// SaveWAV writes r to a new file at path.
func SaveWAV(path string, r Recording) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %s: %w", path, err)
	}
	if err := WriteWAV(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadWAV decodes a PCM WAV stream into a mono [Recording]. Multi-channel
// files are downmixed.
func ReadWAV(rs io.ReadSeeker) (Recording, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return Recording{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Recording{}, fmt.Errorf("audio: read wav: %w", err)
	}

	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = wavBitDepth
	}
	scale := float32(int64(1) << (depth - 1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return Recording{
		Samples:    Downmix(samples, int(dec.NumChans)),
		SampleRate: int(dec.SampleRate),
	}, nil
}

package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Converter turns front-end [Chunk]s into mono float32 samples at the
// recording sample rate. It logs a warning on the first format mismatch and
// on the first misaligned chunk. Create one per recording; not designed for
// shared use across goroutines.
type Converter struct {
	SampleRate     int
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert decodes c, downmixes it to mono and resamples it to the
// converter's rate. Misaligned chunks yield nil.
func (c *Converter) Convert(ch Chunk) []float32 {
	channels := max(ch.Channels, 1)
	if len(ch.PCM)%(2*channels) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: PCM length not a multiple of the frame size, dropping chunk",
				"bytes", len(ch.PCM),
				"channels", channels,
			)
		})
		return nil
	}

	samples := DecodePCM16(ch.PCM)
	if channels == 1 && (ch.SampleRate == c.SampleRate || ch.SampleRate == 0) {
		return samples
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(ch.SampleRate, channels),
			"to", formatString(c.SampleRate, 1),
		)
	})

	// Downmix first so resampling touches one channel only.
	if channels > 1 {
		samples = Downmix(samples, channels)
	}
	if ch.SampleRate > 0 && ch.SampleRate != c.SampleRate {
		samples = Resample(samples, ch.SampleRate, c.SampleRate)
	}
	return samples
}

// DecodePCM16 converts little-endian int16 PCM to float32 samples in [-1, 1).
// A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

// EncodePCM16 converts float32 samples to little-endian int16 PCM, clamping
// to the int16 range.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

// Downmix averages each interleaved frame of channels samples into one.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match or either is invalid, the input is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dst := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dst == 0 {
		return nil
	}

	out := make([]float32, dst)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dst {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

func toInt16(s float32) int16 {
	v := int32(s * 32768)
	if v > 32767 {
		return 32767
	} else if v < -32768 {
		return -32768
	}
	return int16(v)
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}

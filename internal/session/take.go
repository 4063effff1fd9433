package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/voicenote/internal/config"
	"github.com/MrWong99/voicenote/internal/observe"
	"github.com/MrWong99/voicenote/internal/segment"
	"github.com/MrWong99/voicenote/pkg/audio"
	"github.com/MrWong99/voicenote/pkg/contour"
	"github.com/MrWong99/voicenote/pkg/note"
	"github.com/MrWong99/voicenote/pkg/notesink/smf"
)

// Take is the immutable result of one recording window.
type Take struct {
	ID         string    `json:"id"`
	Generation uint64    `json:"generation"`
	RecordedAt time.Time `json:"recorded_at"`

	// Duration is the final timestamp of Segment.
	Duration float64 `json:"duration_seconds"`

	Segment contour.Segment `json:"segment"`
	Notes   []note.Event    `json:"notes"`

	Frames       int `json:"frames"`
	Onsets       int `json:"onsets"`
	SoundObjects int `json:"sound_objects"`

	Denoise segment.DenoiseStats `json:"denoise"`
	Extract segment.ExtractStats `json:"extract"`

	// InputDropped counts frames, onsets and chunks lost to a full queue or
	// delivered out of order.
	InputDropped int64 `json:"input_dropped"`

	// Recording is the captured waveform with silence spans zeroed. Empty
	// when the front-end streamed no samples.
	Recording audio.Recording `json:"-"`

	// SMFPath and WAVPath are set when the take was exported.
	SMFPath string `json:"smf_path,omitempty"`
	WAVPath string `json:"wav_path,omitempty"`
}

// finish segments rec into a take, publishes it, exports it and starts
// autoplay when configured.
func (m *Manager) finish(ctx context.Context, rec *recording) *Take {
	cfg := m.cfg.Load()

	ctx, span := observe.StartTakeSpan(ctx, observe.TakeStats{
		SessionID: rec.info.ID,
		Frames:    rec.buf.Len(),
		Onsets:    len(rec.onsets),
	})
	defer span.End()

	// An early stop ends the take at the wall clock or the last frame,
	// whichever is later.
	duration := min(time.Since(rec.info.StartedAt).Seconds(), rec.info.Duration)
	duration = max(duration, rec.buf.LastTimestamp())

	began := time.Now()
	res := segment.Build(rec.buf, rec.onsets, duration, rec.params)
	m.metrics.SegmentationDuration.Record(ctx, time.Since(began).Seconds())

	m.metrics.FramesIngested.Add(ctx, int64(rec.buf.Len()))
	m.metrics.OnsetsIngested.Add(ctx, int64(len(rec.onsets)))
	m.metrics.RecordDenoise(ctx, res.Denoise.Silent, res.Denoise.Jumps)
	m.metrics.RecordSoundObjects(ctx, "accepted", len(res.Objects))
	m.metrics.RecordSoundObjects(ctx, "unpitched", res.Extract.Unpitched)
	m.metrics.RecordSoundObjects(ctx, "too_short", res.Extract.TooShort)
	m.metrics.RecordSoundObjects(ctx, "overlapping", res.Extract.Overlapping)

	take := &Take{
		ID:           rec.info.ID,
		Generation:   rec.info.Generation,
		RecordedAt:   rec.info.StartedAt,
		Duration:     res.Segment.Duration(),
		Segment:      res.Segment,
		Notes:        note.Derive(res.Segment, cfg.Playback.NoteSamplingIntervalSeconds),
		Frames:       rec.buf.Len(),
		Onsets:       len(rec.onsets),
		SoundObjects: len(res.Objects),
		Denoise:      res.Denoise,
		Extract:      res.Extract,
		InputDropped: m.dropped.Load() + int64(rec.outOfOrder),
	}
	if len(rec.samples.Samples) > 0 {
		take.Recording = rec.samples.MaskSilence(res.Segment)
	}

	if err := export(take, cfg); err != nil {
		observe.Fail(span, err, "export failed")
		observe.Logger(ctx).Warn("take export failed", "err", err)
	}

	m.take.Store(take)
	observe.Logger(ctx).Info("take ready",
		"duration", take.Duration,
		"frames", take.Frames,
		"onsets", take.Onsets,
		"sound_objects", take.SoundObjects,
		"notes", len(take.Notes),
		"dropped_silent", take.Denoise.Silent,
		"dropped_jump", take.Denoise.Jumps,
		"input_dropped", take.InputDropped,
	)

	if cfg.Recording.Autoplay {
		m.player.SetOptions(cfg.Playback.Options())
		if _, err := m.player.Start(take.Segment); err != nil {
			observe.Logger(ctx).Warn("autoplay failed", "err", err)
		}
	}
	return take
}

// export writes the take's note events as a Standard MIDI File and its
// masked waveform as WAV, into the configured directories. The paths of
// successful exports are recorded on take.
func export(take *Take, cfg *config.Config) error {
	var errs []error
	if dir := cfg.Sinks.SMF.Dir; dir != "" {
		path := filepath.Join(dir, take.ID+".mid")
		opts := smf.Options{
			Channel:  uint8(cfg.Sinks.MIDI.Channel),
			Velocity: uint8(cfg.Playback.Velocity),
			Name:     "voicenote " + take.ID,
		}
		if err := writeFile(dir, func() error { return smf.Save(path, take.Notes, opts) }); err != nil {
			errs = append(errs, err)
		} else {
			take.SMFPath = path
		}
	}
	if dir := cfg.Sinks.WAV.Dir; dir != "" && len(take.Recording.Samples) > 0 {
		path := filepath.Join(dir, take.ID+".wav")
		if err := writeFile(dir, func() error { return audio.SaveWAV(path, take.Recording) }); err != nil {
			errs = append(errs, err)
		} else {
			take.WAVPath = path
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("session: export take %s: %w", take.ID, err)
	}
	return nil
}

func writeFile(dir string, write func() error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return write()
}

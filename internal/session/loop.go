package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voicenote/internal/segment"
	"github.com/MrWong99/voicenote/pkg/audio"
	"github.com/MrWong99/voicenote/pkg/frame"
)

type inputKind int

const (
	inputFrame inputKind = iota
	inputOnset
	inputSamples
)

type input struct {
	kind  inputKind
	gen   uint64
	frame frame.Frame
	onset frame.Onset
	chunk audio.Chunk
}

type controlKind int

const (
	controlStart controlKind = iota
	controlStop
	controlPlay
)

type control struct {
	kind controlKind

	duration float64 // start

	// gen, when non-zero, limits a stop to that recording. The auto-stop
	// timer uses it so a late timer cannot close a newer window.
	gen uint64

	speed, transposition float64 // play

	reply chan result // nil for fire-and-forget stops
}

type result struct {
	info Info
	take *Take
	done <-chan struct{}
	err  error
}

// recording is the state of one open window. Only the loop goroutine
// touches it.
type recording struct {
	info    Info
	params  segment.Params
	buf     *frame.Buffer
	onsets  []frame.Onset
	conv    *audio.Converter
	samples audio.Recording
	timer   *time.Timer

	outOfOrder int
}

// Run processes input and control requests until ctx is done. It returns
// ctx.Err(). Run must be called exactly once; a second call returns an error
// immediately.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("session: Run called twice")
	}
	defer close(m.done)

	var rec *recording
	defer func() {
		if rec != nil {
			rec.timer.Stop()
			m.recording.Store(false)
			m.metrics.ActiveRecordings.Add(context.Background(), -1)
			slog.Info("recording discarded on shutdown", "session_id", rec.info.ID)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case in := <-m.input:
			rec.ingest(in)

		case c := <-m.control:
			var r result
			switch c.kind {
			case controlStart:
				rec, r = m.start(ctx, rec, c)
			case controlStop:
				rec, r = m.stop(ctx, rec, c)
			case controlPlay:
				r = m.play(rec, c)
			}
			if c.reply != nil {
				c.reply <- r
			}
		}
	}
}

// ingest appends in to rec. Input for another generation, or when nothing
// is recording, is discarded.
func (rec *recording) ingest(in input) {
	if rec == nil || in.gen != rec.info.Generation {
		return
	}
	switch in.kind {
	case inputFrame:
		f := in.frame
		if math.IsNaN(f.Timestamp) || (rec.buf.Len() > 0 && f.Timestamp < rec.buf.LastTimestamp()) {
			rec.outOfOrder++
			return
		}
		rec.buf.Append(f)
	case inputOnset:
		rec.onsets = append(rec.onsets, in.onset)
	case inputSamples:
		rec.samples.Append(rec.conv.Convert(in.chunk))
	}
}

func (m *Manager) start(ctx context.Context, rec *recording, c control) (*recording, result) {
	if rec != nil {
		return rec, result{err: ErrRecording}
	}

	cfg := m.cfg.Load()
	duration := c.duration
	if !(duration > 0) {
		duration = cfg.Recording.DurationSeconds
	}
	params := cfg.Analysis.Params()
	if err := params.Validate(); err != nil {
		return nil, result{err: err}
	}

	m.player.Stop()

	gen := m.generation.Add(1)
	info := Info{
		ID:         uuid.NewString(),
		Generation: gen,
		Duration:   duration,
		StartedAt:  time.Now(),
	}
	if err := cfg.Analysis.CheckWindow(duration); err != nil {
		slog.Warn("recording window too short for any sound object", "session_id", info.ID, "err", err)
	}

	frames := 0
	if cfg.Analysis.FrameIntervalSeconds > 0 {
		frames = int(duration/cfg.Analysis.FrameIntervalSeconds) + 1
	}
	rec = &recording{
		info:    info,
		params:  params,
		buf:     frame.NewBuffer(frames),
		conv:    &audio.Converter{SampleRate: cfg.Recording.SampleRate},
		samples: audio.Recording{SampleRate: cfg.Recording.SampleRate},
	}
	rec.timer = time.AfterFunc(seconds(duration), func() { m.autoStop(gen) })

	m.dropped.Store(0)
	m.recording.Store(true)
	m.metrics.ActiveRecordings.Add(ctx, 1)
	slog.Info("recording started", "session_id", info.ID, "generation", gen, "duration", duration)
	return rec, result{info: info}
}

func (m *Manager) autoStop(gen uint64) {
	select {
	case m.control <- control{kind: controlStop, gen: gen}:
	case <-m.done:
	}
}

func (m *Manager) stop(ctx context.Context, rec *recording, c control) (*recording, result) {
	if rec == nil || (c.gen != 0 && c.gen != rec.info.Generation) {
		return rec, result{err: ErrNotRecording}
	}
	rec.timer.Stop()
	m.recording.Store(false)

	// Input pushed before the stop request is still in the queue.
	for drained := false; !drained; {
		select {
		case in := <-m.input:
			rec.ingest(in)
		default:
			drained = true
		}
	}
	m.metrics.ActiveRecordings.Add(ctx, -1)

	take := m.finish(ctx, rec)
	return nil, result{take: take}
}

func (m *Manager) play(rec *recording, c control) result {
	if rec != nil {
		return result{err: ErrRecording}
	}
	take := m.take.Load()
	if take == nil {
		return result{err: ErrNoTake}
	}
	seg := take.Segment
	if c.speed != 1 || c.transposition != 1 {
		seg = seg.Transform(c.speed, c.transposition)
	}
	m.player.SetOptions(m.cfg.Load().Playback.Options())
	done, err := m.player.Start(seg)
	return result{done: done, err: err}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

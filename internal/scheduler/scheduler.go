// Package scheduler plays a [contour.Segment] as MIDI notes on a
// [notesink.Sink].
//
// Two modes are supported. [ModeLive] samples the contour on a ticker and
// emits note changes as it goes. [ModePrecomputed] derives the full event
// list up front with [note.Derive] and arms one timer per note-on and
// note-off, all measured from a single start instant.
//
// Every playback carries a generation number. Starting a new playback or
// stopping the current one bumps the generation, and every dispatch checks
// it under the scheduler's lock before touching the sink, so a superseded
// playback can never emit another message. Stop always releases the sounding
// note.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voicenote/internal/observe"
	"github.com/MrWong99/voicenote/internal/resilience"
	"github.com/MrWong99/voicenote/pkg/contour"
	"github.com/MrWong99/voicenote/pkg/note"
	"github.com/MrWong99/voicenote/pkg/notesink"
)

// ErrNoSegment is returned by [Scheduler.Start] when there is nothing to play.
var ErrNoSegment = errors.New("scheduler: no segment to play")

// Mode selects how notes are timed.
type Mode string

const (
	// ModeLive samples the contour on every tick.
	ModeLive Mode = "live"

	// ModePrecomputed arms a timer per derived note event.
	ModePrecomputed Mode = "precomputed"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool { return m == ModeLive || m == ModePrecomputed }

// Options control playback. They are read at [Scheduler.Start].
type Options struct {
	// Mode defaults to [ModeLive].
	Mode Mode

	// Interval is the contour sampling interval.
	Interval time.Duration

	// Loop restarts playback from the beginning when the segment ends.
	Loop bool

	// Velocity of every note-on. Zero selects 100.
	Velocity uint8
}

// Config holds the dependencies of a [Scheduler].
type Config struct {
	// Sink receives every note message. Required.
	Sink notesink.Sink

	// Options are the initial playback options; see [Scheduler.SetOptions].
	Options Options

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Scheduler dispatches one segment at a time. All methods are safe for
// concurrent use.
type Scheduler struct {
	sink    notesink.Sink
	metrics *observe.Metrics

	mu       sync.Mutex
	opts     Options
	gen      uint64
	sounding int
	active   *playback
}

// playback is the bookkeeping for one Start call.
type playback struct {
	opts     Options
	seg      contour.Segment
	cancel   context.CancelFunc // live mode
	timers   []*time.Timer      // precomputed mode
	finished chan struct{}
	stopped  chan struct{} // closed when the live goroutine exits
}

// New returns an idle scheduler.
func New(cfg Config) *Scheduler {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = notesink.Discard
	}
	return &Scheduler{sink: sink, metrics: m, opts: cfg.Options}
}

// SetOptions replaces the options used by the next [Scheduler.Start]. The
// current playback is unaffected.
func (s *Scheduler) SetOptions(opts Options) {
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

// Options returns the options the next playback will use.
func (s *Scheduler) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// Start cancels any current playback and begins dispatching seg. It returns
// [ErrNoSegment] synchronously when seg is empty; no message is sent in that
// case. The returned channel is closed when the playback ends on its own or
// is stopped.
func (s *Scheduler) Start(seg contour.Segment) (<-chan struct{}, error) {
	if len(seg) == 0 {
		return nil, ErrNoSegment
	}

	s.mu.Lock()
	opts := s.opts
	if opts.Mode == "" {
		opts.Mode = ModeLive
	}
	if !opts.Mode.IsValid() {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler: unknown mode %q", opts.Mode)
	}
	if opts.Interval <= 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler: sampling interval %v must be positive", opts.Interval)
	}
	if opts.Velocity == 0 {
		opts.Velocity = 100
	}

	prev := s.stopLocked()
	pb := &playback{opts: opts, seg: seg, finished: make(chan struct{})}
	s.active = pb
	s.metrics.ActivePlaybacks.Add(context.Background(), 1)

	switch opts.Mode {
	case ModeLive:
		ctx, cancel := context.WithCancel(context.Background())
		pb.cancel = cancel
		pb.stopped = make(chan struct{})
		go s.runLive(ctx, pb, s.gen)
	case ModePrecomputed:
		s.armLocked(pb, note.Derive(seg, opts.Interval.Seconds()), time.Now())
	}
	s.mu.Unlock()

	waitStopped(prev)
	slog.Debug("scheduler: playback started",
		"mode", opts.Mode,
		"duration", seg.Duration(),
		"loop", opts.Loop,
	)
	return pb.finished, nil
}

// Stop cancels the current playback, releasing any sounding note. It reports
// whether a playback was active.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	prev := s.stopLocked()
	s.mu.Unlock()
	waitStopped(prev)
	return prev != nil
}

// Playing reports whether a playback is active.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// stopLocked invalidates the current generation and tears down the active
// playback. It returns the stopped playback so the caller can wait for its
// goroutine after releasing the lock.
func (s *Scheduler) stopLocked() *playback {
	s.gen++
	s.releaseLocked()

	pb := s.active
	if pb == nil {
		return nil
	}
	s.active = nil
	if pb.cancel != nil {
		pb.cancel()
	}
	for _, t := range pb.timers {
		t.Stop()
	}
	close(pb.finished)
	s.metrics.ActivePlaybacks.Add(context.Background(), -1)
	s.metrics.PlaybackCancels.Add(context.Background(), 1)
	return pb
}

func waitStopped(pb *playback) {
	if pb != nil && pb.stopped != nil {
		<-pb.stopped
	}
}

// finish ends pb if it is still the current playback of generation gen.
func (s *Scheduler) finish(pb *playback, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.active != pb {
		return
	}
	s.releaseLocked()
	s.gen++
	s.active = nil
	close(pb.finished)
	s.metrics.ActivePlaybacks.Add(context.Background(), -1)
}

// ── Dispatch ──

// noteOn starts n for generation gen. A different sounding note is released
// first; a note that is already sounding is left alone.
func (s *Scheduler) noteOn(gen uint64, n int, velocity uint8, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || n == note.Silence || n == s.sounding {
		return
	}
	if s.sounding != note.Silence {
		s.sendLocked(false, s.sounding, 0, mode)
	}
	s.sendLocked(true, n, velocity, mode)
	s.sounding = n
}

// noteOff releases n for generation gen if it is the sounding note.
func (s *Scheduler) noteOff(gen uint64, n int, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || n == note.Silence || n != s.sounding {
		return
	}
	s.sendLocked(false, n, 0, mode)
	s.sounding = note.Silence
}

// releaseLocked sends note-off for the sounding note, if any.
func (s *Scheduler) releaseLocked() {
	if s.sounding == note.Silence {
		return
	}
	mode := ModeLive
	if s.active != nil {
		mode = s.active.opts.Mode
	}
	s.sendLocked(false, s.sounding, 0, mode)
	s.sounding = note.Silence
}

func (s *Scheduler) sendLocked(on bool, n int, velocity uint8, mode Mode) {
	ctx := context.Background()
	kind := "off"
	var err error
	if on {
		kind = "on"
		err = s.sink.NoteOn(uint8(n), velocity)
	} else {
		err = s.sink.NoteOff(uint8(n), velocity)
	}
	s.metrics.RecordNote(ctx, kind, string(mode))
	if err != nil {
		s.metrics.RecordSinkError(ctx, notesink.NameOf(s.sink))
		if errors.Is(err, resilience.ErrCircuitOpen) {
			slog.Debug("scheduler: sink circuit open", "kind", kind, "note", n)
		} else {
			slog.Warn("scheduler: sink rejected note", "kind", kind, "note", n, "err", err)
		}
	}
}

// ── Live mode ──

// runLive samples the contour at k*Interval for k = 0, 1, ... until the
// cursor passes the end of the pass, then finishes or loops.
func (s *Scheduler) runLive(ctx context.Context, pb *playback, gen uint64) {
	defer close(pb.stopped)

	interval := pb.opts.Interval
	end := passLength(pb.seg, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		tr note.Tracker
		k  int
	)
	for {
		t := float64(k) * interval.Seconds()
		if t > end {
			if off := tr.Finish(); off != note.Silence {
				s.noteOff(gen, off, ModeLive)
			}
			if !pb.opts.Loop {
				s.finish(pb, gen)
				return
			}
			s.metrics.RecordLoop(context.Background(), string(ModeLive))
			k = 0
			continue
		}

		n := note.FromHz(pb.seg.ValueAt(t))
		if off, on, changed := tr.Next(n); changed {
			if off != note.Silence {
				s.noteOff(gen, off, ModeLive)
			}
			if on != note.Silence {
				s.noteOn(gen, on, pb.opts.Velocity, ModeLive)
			}
		}
		k++

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ── Precomputed mode ──

// armLocked schedules every event relative to start, plus a timer at the end
// of the pass that finishes or re-arms the playback. Each loop pass runs
// under a fresh generation so timers of the previous pass cannot fire into
// it.
func (s *Scheduler) armLocked(pb *playback, events []note.Event, start time.Time) {
	gen := s.gen
	vel := pb.opts.Velocity
	after := func(sec float64, f func()) {
		d := time.Until(start.Add(time.Duration(sec * float64(time.Second))))
		pb.timers = append(pb.timers, time.AfterFunc(d, f))
	}

	for _, ev := range events {
		n := ev.Note
		after(ev.Start, func() { s.noteOn(gen, n, vel, ModePrecomputed) })
		after(ev.End, func() { s.noteOff(gen, n, ModePrecomputed) })
	}

	end := passLength(pb.seg, pb.opts.Interval)
	after(end, func() {
		if !pb.opts.Loop {
			s.finish(pb, gen)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen || s.active != pb {
			return
		}
		s.releaseLocked()
		s.gen++
		s.metrics.RecordLoop(context.Background(), string(ModePrecomputed))
		pb.timers = pb.timers[:0]
		s.armLocked(pb, events, start.Add(time.Duration(end*float64(time.Second))))
	})
}

// passLength is the length in seconds of one pass over seg. It is at least
// one sampling interval, so a looping take of zero duration, such as the
// [(0, 0)] segment of an empty recording, repeats at the tick rate.
func passLength(seg contour.Segment, interval time.Duration) float64 {
	return max(seg.Duration(), interval.Seconds())
}

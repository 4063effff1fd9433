// Package session owns recording windows and the takes they produce.
//
// A [Manager] runs a single consumer loop ([Manager.Run]). Front-end input
// (frames, onsets, PCM chunks) is pushed onto a bounded queue without
// blocking and is dropped, and counted, when the queue is full. Control
// requests (start, stop, play) travel on a separate channel and are handled
// by the same loop, so the frame buffer and onset list of a recording are
// only ever touched by one goroutine.
//
// Every recording gets a fresh generation number and ID. Input is tagged
// with the generation current at push time, and the loop discards input
// from any other generation, so a late frame from a finished recording can
// never leak into the next one. The finished [Take] is immutable and is
// published through an atomic pointer; readers such as
// [Manager.ContourValue] never wait for the loop.
package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voicenote/internal/config"
	"github.com/MrWong99/voicenote/internal/observe"
	"github.com/MrWong99/voicenote/internal/scheduler"
	"github.com/MrWong99/voicenote/pkg/audio"
	"github.com/MrWong99/voicenote/pkg/contour"
	"github.com/MrWong99/voicenote/pkg/frame"
)

var (
	// ErrRecording is returned when an operation needs the recorder idle.
	ErrRecording = errors.New("session: recording in progress")

	// ErrNotRecording is returned by StopRecording when nothing is recording.
	ErrNotRecording = errors.New("session: not recording")

	// ErrNoTake is returned when no recording has finished yet.
	ErrNoTake = errors.New("session: no take recorded")

	// ErrClosed is returned once the manager loop has exited.
	ErrClosed = errors.New("session: manager closed")
)

// Player plays segments as notes. [*scheduler.Scheduler] implements it.
type Player interface {
	SetOptions(opts scheduler.Options)
	Start(seg contour.Segment) (<-chan struct{}, error)
	Stop() bool
}

// Info describes a started recording.
type Info struct {
	ID         string    `json:"id"`
	Generation uint64    `json:"generation"`
	Duration   float64   `json:"duration_seconds"`
	StartedAt  time.Time `json:"started_at"`
}

// Config holds the dependencies of a [Manager].
type Config struct {
	// Config is the initial configuration. Required; see [Manager.SetConfig].
	Config *config.Config

	// Player receives takes for playback. Required.
	Player Player

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Manager records takes and hands them to the player. All exported methods
// are safe for concurrent use.
type Manager struct {
	player  Player
	metrics *observe.Metrics

	input   chan input
	control chan control
	done    chan struct{}

	cfg        atomic.Pointer[config.Config]
	take       atomic.Pointer[Take]
	running    atomic.Bool
	recording  atomic.Bool
	generation atomic.Uint64
	dropped    atomic.Int64
}

// New creates a Manager. The input queue is sized from
// cfg.Config.Recording.QueueSize and cannot be resized later.
func New(cfg Config) *Manager {
	m := &Manager{
		player:  cfg.Player,
		metrics: cfg.Metrics,
		input:   make(chan input, max(cfg.Config.Recording.QueueSize, 1)),
		control: make(chan control),
		done:    make(chan struct{}),
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	m.cfg.Store(cfg.Config)
	return m
}

// SetConfig swaps the configuration. Analysis and recording settings apply
// from the next recording, playback settings from the next playback.
func (m *Manager) SetConfig(cfg *config.Config) {
	m.cfg.Store(cfg)
	m.player.SetOptions(cfg.Playback.Options())
}

// Config returns the configuration currently in effect.
func (m *Manager) Config() *config.Config { return m.cfg.Load() }

// ── Input ──

// PushFrame queues an analysis frame for the current recording. It never
// blocks and reports whether the frame was accepted.
func (m *Manager) PushFrame(f frame.Frame) bool {
	return m.push(input{kind: inputFrame, frame: f}, "frame")
}

// PushOnset queues an onset for the current recording.
func (m *Manager) PushOnset(o frame.Onset) bool {
	return m.push(input{kind: inputOnset, onset: o}, "onset")
}

// PushSamples queues a PCM chunk for the current recording.
func (m *Manager) PushSamples(c audio.Chunk) bool {
	return m.push(input{kind: inputSamples, chunk: c}, "samples")
}

func (m *Manager) push(in input, kind string) bool {
	if !m.recording.Load() {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
	}
	in.gen = m.generation.Load()
	select {
	case m.input <- in:
		return true
	default:
		m.dropped.Add(1)
		m.metrics.RecordInputDropped(context.Background(), kind)
		return false
	}
}

// ── Control ──

// StartRecording opens a recording window of duration seconds; zero or less
// uses recording.duration_seconds. Any playback is stopped first. The window
// closes by itself when the duration elapses.
func (m *Manager) StartRecording(ctx context.Context, duration float64) (Info, error) {
	r, err := m.do(ctx, control{kind: controlStart, duration: duration})
	if err != nil {
		return Info{}, err
	}
	return r.info, r.err
}

// StopRecording closes the current window early and returns the take.
func (m *Manager) StopRecording(ctx context.Context) (*Take, error) {
	r, err := m.do(ctx, control{kind: controlStop})
	if err != nil {
		return nil, err
	}
	return r.take, r.err
}

// StartPlayback plays the current take, time-stretched by speed and
// transposed by the frequency ratio transposition. Values of 1 play the take
// as recorded. The returned channel is closed when playback ends.
func (m *Manager) StartPlayback(ctx context.Context, speed, transposition float64) (<-chan struct{}, error) {
	r, err := m.do(ctx, control{kind: controlPlay, speed: speed, transposition: transposition})
	if err != nil {
		return nil, err
	}
	return r.done, r.err
}

// StopPlayback cancels playback and reports whether anything was playing.
func (m *Manager) StopPlayback() bool { return m.player.Stop() }

func (m *Manager) do(ctx context.Context, c control) (result, error) {
	c.reply = make(chan result, 1)
	select {
	case m.control <- c:
	case <-m.done:
		return result{}, ErrClosed
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
	select {
	case r := <-c.reply:
		return r, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// ── Queries ──

// CurrentTake returns the most recent take.
func (m *Manager) CurrentTake() (*Take, error) {
	t := m.take.Load()
	if t == nil {
		return nil, ErrNoTake
	}
	return t, nil
}

// ContourValue returns the frequency of the current take at t seconds.
func (m *Manager) ContourValue(t float64) (float64, error) {
	take, err := m.CurrentTake()
	if err != nil {
		return 0, err
	}
	return take.Segment.ValueAt(t), nil
}

// Recording reports whether a recording window is open.
func (m *Manager) Recording() bool { return m.recording.Load() }

// Running reports whether the loop is running.
func (m *Manager) Running() bool {
	if !m.running.Load() {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Dropped returns the number of inputs dropped from the current or most
// recent recording because the queue was full.
func (m *Manager) Dropped() int64 { return m.dropped.Load() }

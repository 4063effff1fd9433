// Package config provides the configuration schema, loader, watcher and sink
// registry for the voicenote server.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/MrWong99/voicenote/internal/scheduler"
	"github.com/MrWong99/voicenote/internal/segment"
)

// LogLevel controls log verbosity for the voicenote server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto a slog level. Unknown and empty levels map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ErrWindowTooShort is returned by [AnalysisConfig.CheckWindow] when no sound
// object could be long enough to survive the minimum length filter.
var ErrWindowTooShort = errors.New("config: recording window shorter than minimum sound object")

// Config is the root configuration structure for voicenote.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// fields absent from the file keep the values of [Default].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Recording RecordingConfig `yaml:"recording"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Sinks     SinksConfig     `yaml:"sinks"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AnalysisConfig holds the segmentation thresholds. Frequencies are in Hz.
type AnalysisConfig struct {
	MinFrequency             float64 `yaml:"min_frequency"`
	PitchDeadband            float64 `yaml:"pitch_deadband"`
	PitchJumpTolerance       float64 `yaml:"pitch_jump_tolerance"`
	SoundObjectJumpTolerance float64 `yaml:"sound_object_jump_tolerance"`
	MinSoundObjectLength     int     `yaml:"min_sound_object_length"`
	OnsetLookaheadFrames     int     `yaml:"onset_lookahead_frames"`
	AmplitudeFloorRatio      float64 `yaml:"amplitude_floor_ratio"`

	// PitchScale multiplies every accepted pitch. Use 2.0 for a detector
	// that reports one octave low.
	PitchScale float64 `yaml:"pitch_scale"`

	// FrameIntervalSeconds is the front-end analysis tick. It is only used
	// to sanity-check the minimum sound object length against the window.
	FrameIntervalSeconds float64 `yaml:"frame_interval_seconds"`

	OverlapPolicy segment.OverlapPolicy `yaml:"overlap_policy"`
}

// Params converts a into segmentation parameters.
func (a AnalysisConfig) Params() segment.Params {
	return segment.Params{
		MinFrequency:             a.MinFrequency,
		PitchDeadband:            a.PitchDeadband,
		PitchJumpTolerance:       a.PitchJumpTolerance,
		SoundObjectJumpTolerance: a.SoundObjectJumpTolerance,
		MinSoundObjectLength:     a.MinSoundObjectLength,
		OnsetLookaheadFrames:     a.OnsetLookaheadFrames,
		AmplitudeFloorRatio:      a.AmplitudeFloorRatio,
		PitchScale:               a.PitchScale,
		Overlap:                  a.OverlapPolicy,
	}
}

// CheckWindow reports [ErrWindowTooShort] when a recording of window seconds
// holds no more than MinSoundObjectLength frames. The recording can still
// run; it will simply produce no sound objects.
func (a AnalysisConfig) CheckWindow(window float64) error {
	if a.FrameIntervalSeconds <= 0 || window <= 0 {
		return nil
	}
	frames := int(math.Floor(window / a.FrameIntervalSeconds))
	if frames <= a.MinSoundObjectLength {
		return fmt.Errorf("%w: %.3fs holds %d frames, min_sound_object_length is %d",
			ErrWindowTooShort, window, frames, a.MinSoundObjectLength)
	}
	return nil
}

// RecordingConfig controls recording windows.
type RecordingConfig struct {
	// DurationSeconds is the window length used when a start request does
	// not name one.
	DurationSeconds float64 `yaml:"duration_seconds"`

	// SampleRate of the retained waveform. Incoming PCM is resampled to it.
	SampleRate int `yaml:"sample_rate"`

	// Autoplay starts playback of every new take.
	Autoplay bool `yaml:"autoplay"`

	// QueueSize bounds the ingestion queue; input beyond it is dropped.
	QueueSize int `yaml:"queue_size"`
}

// Duration returns DurationSeconds as a [time.Duration].
func (r RecordingConfig) Duration() time.Duration {
	return seconds(r.DurationSeconds)
}

// PlaybackConfig controls the note scheduler.
type PlaybackConfig struct {
	Mode                        scheduler.Mode `yaml:"mode"`
	NoteSamplingIntervalSeconds float64        `yaml:"note_sampling_interval_seconds"`
	Loop                        bool           `yaml:"loop"`
	Velocity                    int            `yaml:"velocity"`
}

// Options converts p into scheduler options.
func (p PlaybackConfig) Options() scheduler.Options {
	return scheduler.Options{
		Mode:     p.Mode,
		Interval: seconds(p.NoteSamplingIntervalSeconds),
		Loop:     p.Loop,
		Velocity: uint8(min(max(p.Velocity, 0), 127)),
	}
}

// SinksConfig declares where note events and takes go.
type SinksConfig struct {
	MIDI      MIDIConfig      `yaml:"midi"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	SMF       DirConfig       `yaml:"smf"`
	WAV       DirConfig       `yaml:"wav"`
}

// MIDIConfig selects a hardware or virtual MIDI output port.
type MIDIConfig struct {
	Enabled bool `yaml:"enabled"`

	// Port is matched against the available output port names. Empty picks
	// the first port.
	Port string `yaml:"port"`

	// Channel is zero based (0-15).
	Channel int `yaml:"channel"`
}

// WebSocketConfig enables the /notes broadcast endpoint.
type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DirConfig names an export directory. Empty disables the export.
type DirConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns a config with every field set to its default.
func Default() *Config {
	p := segment.DefaultParams()
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Analysis: AnalysisConfig{
			MinFrequency:             p.MinFrequency,
			PitchDeadband:            p.PitchDeadband,
			PitchJumpTolerance:       p.PitchJumpTolerance,
			SoundObjectJumpTolerance: p.SoundObjectJumpTolerance,
			MinSoundObjectLength:     p.MinSoundObjectLength,
			OnsetLookaheadFrames:     p.OnsetLookaheadFrames,
			AmplitudeFloorRatio:      p.AmplitudeFloorRatio,
			PitchScale:               p.PitchScale,
			FrameIntervalSeconds:     0.02,
			OverlapPolicy:            p.Overlap,
		},
		Recording: RecordingConfig{
			DurationSeconds: 4,
			SampleRate:      44100,
			Autoplay:        true,
			QueueSize:       4096,
		},
		Playback: PlaybackConfig{
			Mode:                        scheduler.ModeLive,
			NoteSamplingIntervalSeconds: 0.05,
			Velocity:                    100,
		},
		Sinks: SinksConfig{
			WebSocket: WebSocketConfig{Enabled: true},
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

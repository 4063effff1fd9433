package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Analysis
	a := cfg.Analysis
	if a.MinFrequency < 0 {
		errs = append(errs, fmt.Errorf("analysis.min_frequency %v must not be negative", a.MinFrequency))
	}
	if a.PitchDeadband < 0 {
		errs = append(errs, fmt.Errorf("analysis.pitch_deadband %v must not be negative", a.PitchDeadband))
	}
	if a.PitchJumpTolerance < 0 {
		errs = append(errs, fmt.Errorf("analysis.pitch_jump_tolerance %v must not be negative", a.PitchJumpTolerance))
	}
	if a.SoundObjectJumpTolerance < 0 {
		errs = append(errs, fmt.Errorf("analysis.sound_object_jump_tolerance %v must not be negative", a.SoundObjectJumpTolerance))
	}
	if a.MinSoundObjectLength < 0 {
		errs = append(errs, fmt.Errorf("analysis.min_sound_object_length %d must not be negative", a.MinSoundObjectLength))
	}
	if a.OnsetLookaheadFrames < 0 {
		errs = append(errs, fmt.Errorf("analysis.onset_lookahead_frames %d must not be negative", a.OnsetLookaheadFrames))
	}
	if a.AmplitudeFloorRatio < 0 {
		errs = append(errs, fmt.Errorf("analysis.amplitude_floor_ratio %v must not be negative", a.AmplitudeFloorRatio))
	}
	if a.PitchScale <= 0 {
		errs = append(errs, fmt.Errorf("analysis.pitch_scale %v must be positive", a.PitchScale))
	}
	if a.FrameIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("analysis.frame_interval_seconds %v must not be negative", a.FrameIntervalSeconds))
	}
	if !a.OverlapPolicy.IsValid() {
		errs = append(errs, fmt.Errorf("analysis.overlap_policy %q is invalid; valid values: suppress, merge", a.OverlapPolicy))
	}

	// Recording
	if cfg.Recording.DurationSeconds <= 0 {
		errs = append(errs, fmt.Errorf("recording.duration_seconds %v must be positive", cfg.Recording.DurationSeconds))
	}
	if cfg.Recording.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("recording.sample_rate %d must be positive", cfg.Recording.SampleRate))
	}
	if cfg.Recording.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("recording.queue_size %d must be positive", cfg.Recording.QueueSize))
	}

	// Playback
	if !cfg.Playback.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("playback.mode %q is invalid; valid values: live, precomputed", cfg.Playback.Mode))
	}
	if cfg.Playback.NoteSamplingIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("playback.note_sampling_interval_seconds %v must be positive", cfg.Playback.NoteSamplingIntervalSeconds))
	}
	if v := cfg.Playback.Velocity; v < 1 || v > 127 {
		errs = append(errs, fmt.Errorf("playback.velocity %d is out of range [1, 127]", v))
	}

	// Sinks
	if ch := cfg.Sinks.MIDI.Channel; ch < 0 || ch > 15 {
		errs = append(errs, fmt.Errorf("sinks.midi.channel %d is out of range [0, 15]", ch))
	}
	if !cfg.Sinks.MIDI.Enabled && !cfg.Sinks.WebSocket.Enabled {
		slog.Warn("no live note sink enabled; playback will only be visible in metrics")
	}

	// The window check only warns here; the session manager repeats it for
	// every recording with the requested duration.
	if err := a.CheckWindow(cfg.Recording.DurationSeconds); err != nil {
		slog.Warn("recording.duration_seconds is shorter than the minimum sound object", "err", err)
	}

	return errors.Join(errs...)
}

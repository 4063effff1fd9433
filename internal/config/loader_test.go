package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voicenote/internal/config"
	"github.com/MrWong99/voicenote/internal/scheduler"
	"github.com/MrWong99/voicenote/internal/segment"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

analysis:
  min_frequency: 60
  pitch_deadband: 0
  pitch_jump_tolerance: 25
  sound_object_jump_tolerance: 40
  min_sound_object_length: 3
  onset_lookahead_frames: 0
  amplitude_floor_ratio: 0.4
  pitch_scale: 2
  frame_interval_seconds: 0.01
  overlap_policy: merge

recording:
  duration_seconds: 6
  sample_rate: 16000
  autoplay: false
  queue_size: 128

playback:
  mode: precomputed
  note_sampling_interval_seconds: 0.1
  loop: true
  velocity: 64

sinks:
  midi:
    enabled: true
    port: "IAC Driver Bus 1"
    channel: 2
  websocket:
    enabled: false
  smf:
    dir: /tmp/takes
  wav:
    dir: /tmp/takes
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}

	wantParams := segment.Params{
		MinFrequency:             60,
		PitchDeadband:            0,
		PitchJumpTolerance:       25,
		SoundObjectJumpTolerance: 40,
		MinSoundObjectLength:     3,
		OnsetLookaheadFrames:     0,
		AmplitudeFloorRatio:      0.4,
		PitchScale:               2,
		Overlap:                  segment.OverlapMerge,
	}
	if got := cfg.Analysis.Params(); got != wantParams {
		t.Errorf("analysis params = %+v, want %+v", got, wantParams)
	}

	if cfg.Recording != (config.RecordingConfig{DurationSeconds: 6, SampleRate: 16000, QueueSize: 128}) {
		t.Errorf("recording = %+v", cfg.Recording)
	}
	if cfg.Playback.Mode != scheduler.ModePrecomputed || !cfg.Playback.Loop || cfg.Playback.Velocity != 64 {
		t.Errorf("playback = %+v", cfg.Playback)
	}
	if !cfg.Sinks.MIDI.Enabled || cfg.Sinks.MIDI.Port != "IAC Driver Bus 1" || cfg.Sinks.MIDI.Channel != 2 {
		t.Errorf("midi = %+v", cfg.Sinks.MIDI)
	}
	if cfg.Sinks.WebSocket.Enabled {
		t.Error("websocket should be disabled")
	}
	if cfg.Sinks.SMF.Dir != "/tmp/takes" || cfg.Sinks.WAV.Dir != "/tmp/takes" {
		t.Errorf("export dirs = %+v / %+v", cfg.Sinks.SMF, cfg.Sinks.WAV)
	}
}

func TestLoadFromReader_PartialKeepsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("analysis:\n  pitch_scale: 2\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	def := config.Default()
	if cfg.Analysis.PitchScale != 2 {
		t.Errorf("pitch_scale = %v, want 2", cfg.Analysis.PitchScale)
	}
	if cfg.Analysis.PitchJumpTolerance != def.Analysis.PitchJumpTolerance {
		t.Errorf("pitch_jump_tolerance = %v, want default %v", cfg.Analysis.PitchJumpTolerance, def.Analysis.PitchJumpTolerance)
	}
	if cfg.Playback != def.Playback {
		t.Errorf("playback = %+v, want defaults %+v", cfg.Playback, def.Playback)
	}
}

func TestLoadFromReader_EmptyDocument(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want default", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("analysis:\n  pitch_jump_tolerence: 30\n"))
	if err == nil {
		t.Fatal("expected error for misspelled field, got nil")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
analysis:
  pitch_scale: 0
  overlap_policy: keep
  min_sound_object_length: -1
recording:
  duration_seconds: 0
playback:
  mode: realtime
  velocity: 200
sinks:
  midi:
    channel: 16
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, want := range []string{
		"server.log_level",
		"analysis.pitch_scale",
		"analysis.overlap_policy",
		"analysis.min_sound_object_length",
		"recording.duration_seconds",
		"playback.mode",
		"playback.velocity",
		"sinks.midi.channel",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_TLSNeedsBothFiles(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.TLS = &config.TLSConfig{CertFile: "cert.pem"}
	if err := config.Validate(cfg); err == nil {
		t.Fatal("expected error for TLS without key_file")
	}
}

func TestValidate_ShortWindowOnlyWarns(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Recording.DurationSeconds = 0.01
	if err := config.Validate(cfg); err != nil {
		t.Errorf("short window should not fail validation: %v", err)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want os.ErrNotExist", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recording.SampleRate != 16000 {
		t.Errorf("sample_rate = %d, want 16000", cfg.Recording.SampleRate)
	}
}

func TestLoad_ExampleConfigMatchesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	def := config.Default()
	if cfg.Analysis != def.Analysis {
		t.Errorf("analysis = %+v, want defaults %+v", cfg.Analysis, def.Analysis)
	}
	if cfg.Recording != def.Recording || cfg.Playback != def.Playback || cfg.Sinks != def.Sinks {
		t.Errorf("example config drifted from defaults: %+v", cfg)
	}
	if cfg.Server.ListenAddr != def.Server.ListenAddr || cfg.Server.LogLevel != def.Server.LogLevel {
		t.Errorf("server = %+v, want %+v", cfg.Server, def.Server)
	}
}

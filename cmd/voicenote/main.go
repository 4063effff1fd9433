// Command voicenote is the entry point for the voicenote server. It turns a
// sung or hummed pitch stream into note events.
//
// Usage:
//
//	voicenote [-config config.yaml]    (SIGHUP rereads the config)
//	voicenote replay -capture capture.yaml [-config config.yaml] [-smf out.mid]
//	voicenote ports
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Registers the rtmidi driver used by MIDI output ports.
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/MrWong99/voicenote/internal/app"
	"github.com/MrWong99/voicenote/internal/config"
	"github.com/MrWong99/voicenote/internal/observe"
	"github.com/MrWong99/voicenote/pkg/notesink/midi"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "replay":
			return runReplay(args[1:], os.Stdout, os.Stderr)
		case "ports":
			return runPorts(os.Stdout)
		}
	}
	return serve(args)
}

func serve(args []string) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("voicenote", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicenote: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicenote: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(os.Stderr, level))

	slog.Info("voicenote starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voicenote"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(os.Stdout, cfg)

	application, err := app.New(ctx, cfg,
		app.WithLevelVar(level),
		app.WithMetrics(metrics),
		app.WithMetricsHandler(provider.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
		go reloadOnHangup(ctx, watcher)
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// reloadOnHangup rereads the config on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := w.Reload(); err != nil {
				slog.Warn("config reload on SIGHUP failed", "err", err)
			}
		}
	}
}

// runPorts lists the MIDI output ports the rtmidi driver can see.
func runPorts(w io.Writer) int {
	ports := midi.Ports()
	if len(ports) == 0 {
		fmt.Fprintln(w, "no MIDI output ports found")
		return 0
	}
	for i, p := range ports {
		fmt.Fprintf(w, "%2d  %s\n", i, p)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        voicenote  startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Listen addr", cfg.Server.ListenAddr)
	printRow(w, "Recording", fmt.Sprintf("%gs @ %d Hz", cfg.Recording.DurationSeconds, cfg.Recording.SampleRate))
	printRow(w, "Playback", fmt.Sprintf("%s / %gs", cfg.Playback.Mode, cfg.Playback.NoteSamplingIntervalSeconds))
	if cfg.Sinks.MIDI.Enabled {
		port := cfg.Sinks.MIDI.Port
		if port == "" {
			port = "(first port)"
		}
		printRow(w, "MIDI out", port)
	} else {
		printRow(w, "MIDI out", "(disabled)")
	}
	printRow(w, "Note websocket", enabled(cfg.Sinks.WebSocket.Enabled))
	printRow(w, "SMF export", dirOrDisabled(cfg.Sinks.SMF.Dir))
	printRow(w, "WAV export", dirOrDisabled(cfg.Sinks.WAV.Dir))
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-14s  : %-19s ║\n", kind, value)
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "(disabled)"
}

func dirOrDisabled(dir string) string {
	if dir == "" {
		return "(disabled)"
	}
	return dir
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger creates a text logger whose level follows level, so a reloaded
// log_level takes effect without a restart.
func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

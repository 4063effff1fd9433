// Package app wires the voicenote subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the note sinks, the
// scheduler, the session manager and the HTTP surface; Run serves until the
// context ends; Shutdown closes the sinks in order.
//
// For testing, inject doubles via functional options (WithSink, WithRegistry,
// WithMetrics). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicenote/internal/config"
	"github.com/MrWong99/voicenote/internal/health"
	"github.com/MrWong99/voicenote/internal/ingest"
	"github.com/MrWong99/voicenote/internal/observe"
	"github.com/MrWong99/voicenote/internal/resilience"
	"github.com/MrWong99/voicenote/internal/scheduler"
	"github.com/MrWong99/voicenote/internal/session"
	"github.com/MrWong99/voicenote/pkg/notesink"
	"github.com/MrWong99/voicenote/pkg/notesink/midi"
	"github.com/MrWong99/voicenote/pkg/notesink/ws"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	level   *slog.LevelVar
	metrics *observe.Metrics

	registry       *config.Registry
	metricsHandler http.Handler
	extra          []notesink.Sink

	// Subsystems, initialised in New and torn down in Shutdown.
	sinks       []notesink.Sink
	broadcaster *ws.Broadcaster
	scheduler   *scheduler.Scheduler
	manager     *session.Manager
	health      *health.Handler
	handler     http.Handler

	mu       sync.Mutex
	listener net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLevelVar hands New the level variable behind the default logger so a
// reloaded log_level takes effect at runtime.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetrics injects the metric instruments instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the default Prometheus
// registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithRegistry replaces the sink registry. Factories missing from reg for an
// enabled sink make New fail.
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithSink adds s to the scheduler's fan-out next to the configured sinks.
func WithSink(s notesink.Sink) Option {
	return func(a *App) { a.extra = append(a.extra, s) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. It opens every enabled sink synchronously;
// a MIDI port that cannot be opened fails New.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Level())
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	// ── 1. Sinks ─────────────────────────────────────────────────────────
	if err := a.initSinks(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init sinks: %w", err)
	}

	// ── 2. Scheduler + session manager ───────────────────────────────────
	a.scheduler = scheduler.New(scheduler.Config{
		Sink:    notesink.Multi(append(a.sinks, a.extra...)...),
		Options: cfg.Playback.Options(),
		Metrics: a.metrics,
	})
	a.manager = session.New(session.Config{
		Config:  cfg,
		Player:  a.scheduler,
		Metrics: a.metrics,
	})
	// Release any sounding note before the sinks close.
	a.closers = append([]func() error{func() error { a.scheduler.Stop(); return nil }}, a.closers...)

	// ── 3. Health ────────────────────────────────────────────────────────
	checkers := []health.Checker{health.Loop("session", a.manager)}
	for _, s := range a.sinks {
		if g, ok := s.(*resilience.Sink); ok {
			checkers = append(checkers, health.Breaker(g.Name(), g))
		}
	}
	a.health = health.New(checkers...)

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.handler = observe.Middleware(a.metrics)(a.routes())

	observe.Logger(ctx).Info("app initialised",
		"sinks", len(a.sinks)+len(a.extra),
		"playback_mode", cfg.Playback.Mode,
		"recording_seconds", cfg.Recording.DurationSeconds,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSinks creates the enabled sinks through the registry. The built-in
// factories are registered unless a registry was injected.
func (a *App) initSinks() error {
	if a.registry == nil {
		a.registry = config.NewRegistry()
		a.registerBuiltinSinks(a.registry)
	}

	_, sinks, err := a.registry.BuildSinks(a.cfg.Sinks)
	a.sinks = sinks
	for _, s := range sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
	return err
}

// registerBuiltinSinks wires the MIDI and websocket factories into reg. A
// MIDI driver must be registered by the binary (see cmd/voicenote).
func (a *App) registerBuiltinSinks(reg *config.Registry) {
	reg.RegisterSink(config.SinkMIDI, func(entry config.SinkEntry) (notesink.Sink, error) {
		port, err := midi.Open(entry.Sinks.MIDI.Port, uint8(entry.Sinks.MIDI.Channel))
		if err != nil {
			return nil, err
		}
		slog.Info("midi output opened", "port", port.Name(), "channel", entry.Sinks.MIDI.Channel)
		return resilience.GuardSink(port, resilience.CircuitBreakerConfig{Name: port.Name()}), nil
	})

	reg.RegisterSink(config.SinkWebSocket, func(config.SinkEntry) (notesink.Sink, error) {
		a.broadcaster = ws.New(ws.Options{
			OnClients: func(delta int) {
				a.metrics.ConnectedClients.Add(context.Background(), int64(delta), notesEndpoint)
			},
		})
		return a.broadcaster, nil
	})
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on cfg.Server.ListenAddr and runs the session loop until
// ctx is cancelled or either fails. On cancellation Run returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.listener = ln.Addr()
	a.mu.Unlock()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.manager.Run(gctx)
	})

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("https server listening", "addr", ln.Addr().String())
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("http server listening", "addr", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		a.scheduler.Stop()
		if a.broadcaster != nil {
			// Ends /notes streams so Shutdown does not wait on them.
			a.broadcaster.Close()
		}
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Addr returns the address Run is listening on, or nil before Run started.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listener
}

// Handler returns the HTTP handler served by Run.
func (a *App) Handler() http.Handler { return a.handler }

// Manager returns the session manager.
func (a *App) Manager() *session.Manager { return a.manager }

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies a reloaded configuration. It is the onChange callback
// of [config.Watcher]. Sink and server changes are reported but need a
// restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AnalysisChanged || d.RecordingChanged || d.PlaybackChanged {
		a.manager.SetConfig(new)
		slog.Info("configuration applied",
			"analysis", d.AnalysisChanged,
			"recording", d.RecordingChanged,
			"playback", d.PlaybackChanged,
		)
	}
	if !d.HotReloadable() {
		slog.Warn("configuration change needs a restart",
			"sinks", d.SinksChanged,
			"server", d.ServerChanged,
		)
	}
	if d.RecordingChanged && old.Recording.QueueSize != new.Recording.QueueSize {
		slog.Warn("recording.queue_size change needs a restart")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases sounding notes and closes the sinks. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// close runs the closers collected so far after a failed New.
func (a *App) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}

// ingestHandler builds the /ingest endpoint.
func (a *App) ingestHandler() http.Handler {
	return ingest.NewHandler(ingest.Config{
		Recorder: a.manager,
		Metrics:  a.metrics,
	})
}

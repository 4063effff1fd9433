package resilience

import "github.com/MrWong99/voicenote/pkg/notesink"

// Sink guards a [notesink.Sink] with a [CircuitBreaker]. While the breaker
// is open, note messages are rejected with [ErrCircuitOpen] without touching
// the device.
type Sink struct {
	inner   notesink.Sink
	breaker *CircuitBreaker
}

// GuardSink wraps s. An empty cfg.Name defaults to the sink's name.
func GuardSink(s notesink.Sink, cfg CircuitBreakerConfig) *Sink {
	if cfg.Name == "" {
		cfg.Name = notesink.NameOf(s)
	}
	return &Sink{inner: s, breaker: NewCircuitBreaker(cfg)}
}

// NoteOn implements [notesink.Sink].
func (s *Sink) NoteOn(note, velocity uint8) error {
	return s.breaker.Execute(func() error { return s.inner.NoteOn(note, velocity) })
}

// NoteOff implements [notesink.Sink].
func (s *Sink) NoteOff(note, velocity uint8) error {
	return s.breaker.Execute(func() error { return s.inner.NoteOff(note, velocity) })
}

// Name reports the wrapped sink's name.
func (s *Sink) Name() string { return notesink.NameOf(s.inner) }

// State reports the breaker state; used by readiness checks.
func (s *Sink) State() State { return s.breaker.State() }

// Close closes the wrapped sink when it has a Close method.
func (s *Sink) Close() error {
	if c, ok := s.inner.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

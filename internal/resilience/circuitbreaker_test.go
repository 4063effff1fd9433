package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voicenote/pkg/notesink/mock"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced clock for breaker tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newBreaker(t *testing.T, maxFailures, probes int) (*CircuitBreaker, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "test",
		MaxFailures: maxFailures,
		Cooldown:    time.Second,
		Probes:      probes,
		Now:         clk.Now,
	})
	return cb, clk
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.cfg.MaxFailures)
	}
	if cb.cfg.Cooldown != 5*time.Second {
		t.Errorf("Cooldown = %v, want 5s", cb.cfg.Cooldown)
	}
	if cb.cfg.Probes != 1 {
		t.Errorf("Probes = %d, want 1", cb.cfg.Probes)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(t, 3, 1)

	for i := range 3 {
		if err := cb.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
			t.Fatalf("call %d: err = %v, want errTest", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(t, 3, 1)

	_ = cb.Execute(func() error { return errTest })
	_ = cb.Execute(func() error { return errTest })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errTest })
	_ = cb.Execute(func() error { return errTest })

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed (failures were not consecutive)", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenToClosed(t *testing.T) {
	t.Parallel()
	cb, clk := newBreaker(t, 1, 2)

	_ = cb.Execute(func() error { return errTest })
	clk.Advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", cb.State())
	}

	for i := range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenToOpen(t *testing.T) {
	t.Parallel()
	cb, clk := newBreaker(t, 1, 3)

	_ = cb.Execute(func() error { return errTest })
	clk.Advance(2 * time.Second)

	if err := cb.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
		t.Fatalf("probe err = %v, want errTest", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen until the next cooldown", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(t, 1, 1)

	_ = cb.Execute(func() error { return errTest })
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestGuardSink(t *testing.T) {
	t.Parallel()
	inner := &mock.Sink{NoteOnError: errTest}
	clk := &fakeClock{now: time.Unix(0, 0)}
	s := GuardSink(inner, CircuitBreakerConfig{MaxFailures: 2, Cooldown: time.Second, Now: clk.Now})

	if s.Name() != "mock" {
		t.Errorf("Name() = %q, want mock", s.Name())
	}

	_ = s.NoteOn(60, 100)
	_ = s.NoteOn(62, 100)
	if err := s.NoteOff(62, 0); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("NoteOff err = %v, want ErrCircuitOpen", err)
	}
	if got := len(inner.Calls()); got != 2 {
		t.Errorf("inner calls = %d, want 2 (open breaker must not reach the device)", got)
	}
	if s.State() != StateOpen {
		t.Errorf("State() = %v, want open", s.State())
	}

	inner.NoteOnError = nil
	clk.Advance(time.Second)
	if err := s.NoteOn(64, 100); err != nil {
		t.Fatalf("probe NoteOn: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed after recovery", s.State())
	}
}

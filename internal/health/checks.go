package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voicenote/internal/resilience"
)

// ErrNotRunning is reported by [Loop] while the loop is not running.
var ErrNotRunning = errors.New("not running")

// Loop checks a long-running loop, such as the session manager.
func Loop(name string, l interface{ Running() bool }) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if !l.Running() {
				return ErrNotRunning
			}
			return nil
		},
	}
}

// Breaker fails while the circuit breaker guarding a sink is open.
// A half-open breaker counts as ready so that probes can close it.
func Breaker(name string, b interface{ State() resilience.State }) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if s := b.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit %s", s)
			}
			return nil
		},
	}
}

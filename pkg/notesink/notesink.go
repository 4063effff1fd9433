// Package notesink defines the output side of the note scheduler: anything
// that can start and stop a MIDI note.
//
// Implementations live in subpackages: midi (a hardware or virtual MIDI
// port), ws (websocket broadcast) and mock (tests). The smf subpackage
// writes finished takes to Standard MIDI Files and is not a live sink.
package notesink

import (
	"errors"
	"fmt"
)

// Sink receives note messages in dispatch order. Note numbers are MIDI note
// numbers in [1, 127]; velocity is in [0, 127].
//
// Implementations must be safe for concurrent use; the precomputed scheduler
// fires from timer goroutines.
type Sink interface {
	NoteOn(note, velocity uint8) error
	NoteOff(note, velocity uint8) error
}

// Named is implemented by sinks that report a short name for logs and
// metrics.
type Named interface {
	Name() string
}

// NameOf returns s.Name() when s implements [Named], and its type otherwise.
func NameOf(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// Discard is a [Sink] that accepts and drops every message.
var Discard Sink = discard{}

type discard struct{}

func (discard) NoteOn(uint8, uint8) error  { return nil }
func (discard) NoteOff(uint8, uint8) error { return nil }
func (discard) Name() string               { return "discard" }

// Multi returns a [Sink] that forwards every message to each of sinks in
// order. A failing sink does not stop delivery to the others; the returned
// error joins every failure. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	all := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if m, ok := s.(*multi); ok {
			all = append(all, m.sinks...)
			continue
		}
		all = append(all, s)
	}
	return &multi{sinks: all}
}

type multi struct {
	sinks []Sink
}

func (m *multi) NoteOn(note, velocity uint8) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.NoteOn(note, velocity); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", NameOf(s), err))
		}
	}
	return errors.Join(errs...)
}

func (m *multi) NoteOff(note, velocity uint8) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.NoteOff(note, velocity); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", NameOf(s), err))
		}
	}
	return errors.Join(errs...)
}

func (m *multi) Name() string { return "multi" }

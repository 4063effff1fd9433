// Package mock provides an in-memory [notesink.Sink] for use in unit tests.
//
// The mock is safe for concurrent use. It records every call in order so that
// tests can assert on the exact note stream, and it exposes exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	sink := &mock.Sink{}
//	sched := scheduler.New(sink, scheduler.Options{Interval: 10 * time.Millisecond})
//	...
//	calls := sink.Calls()
package mock

import (
	"fmt"
	"sync"

	"github.com/MrWong99/voicenote/pkg/notesink"
)

var _ notesink.Sink = (*Sink)(nil)

// Kind distinguishes note-on from note-off in a recorded [Call].
type Kind string

const (
	On  Kind = "on"
	Off Kind = "off"
)

// Call records the arguments of a single NoteOn or NoteOff invocation.
type Call struct {
	Kind     Kind
	Note     uint8
	Velocity uint8
}

func (c Call) String() string { return fmt.Sprintf("%s(%d)", c.Kind, c.Note) }

// Sink is a mock implementation of [notesink.Sink].
type Sink struct {
	mu sync.Mutex

	// NoteOnError is returned by [Sink.NoteOn].
	NoteOnError error

	// NoteOffError is returned by [Sink.NoteOff].
	NoteOffError error

	// OnCall, when set, is invoked after each call is recorded, outside the
	// mock's lock.
	OnCall func(Call)

	calls []Call
}

// NoteOn implements [notesink.Sink]. Records the call and returns NoteOnError.
func (s *Sink) NoteOn(note, velocity uint8) error {
	return s.record(Call{Kind: On, Note: note, Velocity: velocity}, s.NoteOnError)
}

// NoteOff implements [notesink.Sink]. Records the call and returns NoteOffError.
func (s *Sink) NoteOff(note, velocity uint8) error {
	return s.record(Call{Kind: Off, Note: note, Velocity: velocity}, s.NoteOffError)
}

// Name implements [notesink.Named].
func (s *Sink) Name() string { return "mock" }

func (s *Sink) record(c Call, err error) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	hook := s.OnCall
	s.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return err
}

// Calls returns a copy of every recorded call in order.
func (s *Sink) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of recorded calls of kind k.
func (s *Sink) CallCount(k Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Kind == k {
			n++
		}
	}
	return n
}

// Reset discards every recorded call.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

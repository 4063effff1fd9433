// Package midi sends notes to a MIDI output port through gomidi.
//
// The driver is registered by blank-importing a gomidi driver package in
// main, e.g. gitlab.com/gomidi/midi/v2/drivers/rtmididrv.
package midi

import (
	"errors"
	"fmt"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/MrWong99/voicenote/pkg/notesink"
)

var _ notesink.Sink = (*Sink)(nil)

// ErrClosed is returned after [Sink.Close].
var ErrClosed = errors.New("midi: sink closed")

// Sink writes note messages to one MIDI channel of an output port.
type Sink struct {
	mu      sync.Mutex
	send    func(gomidi.Message) error
	port    drivers.Out
	channel uint8
	name    string
	closed  bool
}

// Ports lists the names of the available output ports.
func Ports() []string {
	outs := gomidi.GetOutPorts()
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names
}

// Open opens the output port whose name contains portName and returns a sink
// writing to channel (0-15). An empty portName selects the first port.
func Open(portName string, channel uint8) (*Sink, error) {
	if channel > 15 {
		return nil, fmt.Errorf("midi: channel %d out of range 0-15", channel)
	}

	var (
		port drivers.Out
		err  error
	)
	if portName == "" {
		outs := gomidi.GetOutPorts()
		if len(outs) == 0 {
			return nil, errors.New("midi: no output ports available")
		}
		port = outs[0]
	} else if port, err = gomidi.FindOutPort(portName); err != nil {
		return nil, fmt.Errorf("midi: find port %q: %w", portName, err)
	}

	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("midi: open port %q: %w", port.String(), err)
	}
	s := New(send, channel)
	s.port = port
	s.name = "midi:" + port.String()
	return s, nil
}

// New returns a sink that hands every message to send. Use it to wrap an
// already opened port.
func New(send func(gomidi.Message) error, channel uint8) *Sink {
	return &Sink{send: send, channel: channel & 0x0f, name: "midi"}
}

// NoteOn implements [notesink.Sink]. A zero velocity would read as note-off
// on the wire, so it is raised to 1.
func (s *Sink) NoteOn(note, velocity uint8) error {
	return s.write(gomidi.NoteOn(s.channel, note&0x7f, max(1, velocity&0x7f)))
}

// NoteOff implements [notesink.Sink].
func (s *Sink) NoteOff(note, velocity uint8) error {
	return s.write(gomidi.NoteOffVelocity(s.channel, note&0x7f, velocity&0x7f))
}

// Name implements [notesink.Named].
func (s *Sink) Name() string { return s.name }

func (s *Sink) write(msg gomidi.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.send(msg); err != nil {
		return fmt.Errorf("midi: send %s: %w", msg, err)
	}
	return nil
}

// Close closes the port. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// Package smf writes the note events of a take to a format-0 Standard MIDI
// File.
package smf

import (
	"fmt"
	"io"
	"math"
	"os"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/MrWong99/voicenote/pkg/note"
)

const (
	// Resolution is the number of ticks per quarter note.
	Resolution = 960

	// Tempo of the written file in beats per minute. Together with
	// Resolution this gives 1920 ticks per second.
	Tempo = 120.0
)

// Options controls how events are written.
type Options struct {
	// Channel is the MIDI channel (0-15).
	Channel uint8

	// Velocity of every note-on. Zero selects 100.
	Velocity uint8

	// Name is written as the track name when non-empty.
	Name string
}

// Ticks converts seconds to MIDI ticks at [Tempo] and [Resolution].
func Ticks(seconds float64) uint32 {
	if !(seconds > 0) {
		return 0
	}
	return uint32(math.Round(seconds * Resolution * Tempo / 60))
}

// Encode builds a single-track SMF from events. Events must be ordered and
// non-overlapping, as [note.Derive] returns them.
func Encode(events []note.Event, opts Options) (*smf.SMF, error) {
	vel := opts.Velocity
	if vel == 0 {
		vel = 100
	}
	ch := opts.Channel & 0x0f

	var tr smf.Track
	if opts.Name != "" {
		tr.Add(0, smf.MetaTrackSequenceName(opts.Name))
	}
	tr.Add(0, smf.MetaTempo(Tempo))

	var last uint32
	for _, ev := range events {
		if ev.Note <= note.Silence || ev.Note > note.MaxNote {
			continue
		}
		on, off := Ticks(ev.Start), Ticks(ev.End)
		if on < last {
			return nil, fmt.Errorf("smf: event at %.3fs overlaps the previous note", ev.Start)
		}
		if off <= on {
			off = on + 1
		}
		tr.Add(on-last, gomidi.NoteOn(ch, uint8(ev.Note), vel))
		tr.Add(off-on, gomidi.NoteOff(ch, uint8(ev.Note)))
		last = off
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(Resolution)
	if err := s.Add(tr); err != nil {
		return nil, fmt.Errorf("smf: add track: %w", err)
	}
	return s, nil
}

// Write encodes events and writes the file to w.
func Write(w io.Writer, events []note.Event, opts Options) error {
	s, err := Encode(events, opts)
	if err != nil {
		return err
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("smf: write: %w", err)
	}
	return nil
}

// Save writes events to a new file at path.
func Save(path string, events []note.Event, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("smf: create %s: %w", path, err)
	}
	if err := Write(f, events, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

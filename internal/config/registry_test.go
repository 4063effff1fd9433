package config_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/voicenote/internal/config"
	"github.com/MrWong99/voicenote/pkg/notesink"
	"github.com/MrWong99/voicenote/pkg/notesink/mock"
)

func TestSinksConfig_Entries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		sinks config.SinksConfig
		want  []string
	}{
		{"none", config.SinksConfig{}, nil},
		{"websocket only", config.SinksConfig{WebSocket: config.WebSocketConfig{Enabled: true}}, []string{"websocket"}},
		{
			"both",
			config.SinksConfig{
				MIDI:      config.MIDIConfig{Enabled: true},
				WebSocket: config.WebSocketConfig{Enabled: true},
				SMF:       config.DirConfig{Dir: "/tmp"},
			},
			[]string{"midi", "websocket"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			entries := tc.sinks.Entries()
			if len(entries) != len(tc.want) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tc.want))
			}
			for i, e := range entries {
				if e.Name != tc.want[i] {
					t.Errorf("entries[%d] = %q, want %q", i, e.Name, tc.want[i])
				}
			}
		})
	}
}

func TestRegistry_CreateSink(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &mock.Sink{}
	var gotEntry config.SinkEntry
	reg.RegisterSink(config.SinkMIDI, func(e config.SinkEntry) (notesink.Sink, error) {
		gotEntry = e
		return want, nil
	})

	sinks := config.SinksConfig{MIDI: config.MIDIConfig{Enabled: true, Channel: 3}}
	s, err := reg.CreateSink(config.SinkEntry{Name: config.SinkMIDI, Sinks: sinks})
	if err != nil {
		t.Fatalf("CreateSink: %v", err)
	}
	if s != want {
		t.Error("CreateSink returned a different sink")
	}
	if gotEntry.Sinks.MIDI.Channel != 3 {
		t.Errorf("factory saw channel %d, want 3", gotEntry.Sinks.MIDI.Channel)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateSink(config.SinkEntry{Name: "carrier-pigeon"})
	if !errors.Is(err, config.ErrSinkNotRegistered) {
		t.Errorf("err = %v, want ErrSinkNotRegistered", err)
	}
}

func TestRegistry_BuildSinks(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	midiSink := &mock.Sink{}
	wsSink := &mock.Sink{}
	reg.RegisterSink(config.SinkMIDI, func(config.SinkEntry) (notesink.Sink, error) { return midiSink, nil })
	reg.RegisterSink(config.SinkWebSocket, func(config.SinkEntry) (notesink.Sink, error) { return wsSink, nil })

	out, created, err := reg.BuildSinks(config.SinksConfig{
		MIDI:      config.MIDIConfig{Enabled: true},
		WebSocket: config.WebSocketConfig{Enabled: true},
	})
	if err != nil {
		t.Fatalf("BuildSinks: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d sinks, want 2", len(created))
	}
	if err := out.NoteOn(60, 100); err != nil {
		t.Fatalf("NoteOn: %v", err)
	}
	if midiSink.CallCount(mock.On) != 1 || wsSink.CallCount(mock.On) != 1 {
		t.Error("note-on was not fanned out to both sinks")
	}
}

func TestRegistry_BuildSinksFailureReturnsCreated(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSink(config.SinkMIDI, func(config.SinkEntry) (notesink.Sink, error) { return &mock.Sink{}, nil })
	reg.RegisterSink(config.SinkWebSocket, func(config.SinkEntry) (notesink.Sink, error) {
		return nil, errors.New("boom")
	})

	_, created, err := reg.BuildSinks(config.SinksConfig{
		MIDI:      config.MIDIConfig{Enabled: true},
		WebSocket: config.WebSocketConfig{Enabled: true},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(created) != 1 {
		t.Errorf("created = %d, want 1 so the caller can close it", len(created))
	}
}

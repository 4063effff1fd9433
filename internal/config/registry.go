package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voicenote/pkg/notesink"
)

// ErrSinkNotRegistered is returned by [Registry.CreateSink] when no factory
// has been registered under the requested sink name.
var ErrSinkNotRegistered = errors.New("config: sink not registered")

// Live sink names, as used by [SinksConfig.Entries].
const (
	SinkMIDI      = "midi"
	SinkWebSocket = "websocket"
)

// SinkEntry names one enabled live sink and carries the whole sinks section
// so a factory can read its own settings.
type SinkEntry struct {
	Name  string
	Sinks SinksConfig
}

// Entries returns one entry per enabled live sink, in a stable order.
// File exports (smf, wav) are not live sinks and are not listed.
func (s SinksConfig) Entries() []SinkEntry {
	var out []SinkEntry
	if s.MIDI.Enabled {
		out = append(out, SinkEntry{Name: SinkMIDI, Sinks: s})
	}
	if s.WebSocket.Enabled {
		out = append(out, SinkEntry{Name: SinkWebSocket, Sinks: s})
	}
	return out
}

// Registry maps sink names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]func(SinkEntry) (notesink.Sink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]func(SinkEntry) (notesink.Sink, error)),
	}
}

// RegisterSink registers a sink factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSink(name string, factory func(SinkEntry) (notesink.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = factory
}

// CreateSink instantiates a sink using the factory registered under entry.Name.
// Returns [ErrSinkNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSink(entry SinkEntry) (notesink.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSinkNotRegistered, entry.Name)
	}
	return factory(entry)
}

// BuildSinks creates every enabled sink in cfg and fans them out through
// [notesink.Multi]. On error the sinks created so far are returned too so the
// caller can close them.
func (r *Registry) BuildSinks(cfg SinksConfig) (notesink.Sink, []notesink.Sink, error) {
	var created []notesink.Sink
	for _, entry := range cfg.Entries() {
		s, err := r.CreateSink(entry)
		if err != nil {
			return nil, created, fmt.Errorf("config: create sink %q: %w", entry.Name, err)
		}
		created = append(created, s)
	}
	return notesink.Multi(created...), created, nil
}

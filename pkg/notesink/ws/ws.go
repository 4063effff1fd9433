// Package ws broadcasts note messages to websocket clients.
//
// Each message is a JSON text frame:
//
//	{"address":"note_on","note":69,"velocity":100}
//	{"address":"note_off","note":69,"velocity":0}
//
// Slow clients never stall the scheduler: every client has a bounded queue
// and messages that do not fit are dropped for that client.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voicenote/pkg/notesink"
)

var _ notesink.Sink = (*Broadcaster)(nil)

// Message addresses.
const (
	AddressNoteOn  = "note_on"
	AddressNoteOff = "note_off"
)

// ErrClosed is returned after [Broadcaster.Close].
var ErrClosed = errors.New("ws: broadcaster closed")

// Message is the wire format of one note message.
type Message struct {
	Address  string `json:"address"`
	Note     uint8  `json:"note"`
	Velocity uint8  `json:"velocity"`
}

// Options configures a [Broadcaster].
type Options struct {
	// Buffer is the per-client queue length. Zero selects 64.
	Buffer int

	// WriteTimeout bounds a single frame write. Zero selects 2s.
	WriteTimeout time.Duration

	// OriginPatterns is passed to [websocket.AcceptOptions].
	OriginPatterns []string

	// OnClients, when set, is called with +1 and -1 as clients connect and
	// disconnect.
	OnClients func(delta int)
}

// Broadcaster is a [notesink.Sink] and an [http.Handler]. Mount it on the
// route clients connect to.
type Broadcaster struct {
	opts Options

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	dropped atomic.Int64
}

type client struct {
	send chan []byte
	done chan struct{}
}

// New creates a Broadcaster.
func New(opts Options) *Broadcaster {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	return &Broadcaster{opts: opts, clients: make(map[*client]struct{})}
}

// NoteOn implements [notesink.Sink].
func (b *Broadcaster) NoteOn(note, velocity uint8) error {
	return b.broadcast(Message{Address: AddressNoteOn, Note: note, Velocity: velocity})
}

// NoteOff implements [notesink.Sink].
func (b *Broadcaster) NoteOff(note, velocity uint8) error {
	return b.broadcast(Message{Address: AddressNoteOff, Note: note, Velocity: velocity})
}

// Name implements [notesink.Named].
func (b *Broadcaster) Name() string { return "websocket" }

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Dropped returns the number of messages dropped for slow clients.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

func (b *Broadcaster) broadcast(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// ServeHTTP upgrades the request and streams note messages until the client
// disconnects, the request context ends or the broadcaster is closed.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: b.opts.OriginPatterns,
	})
	if err != nil {
		slog.Warn("ws: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	c := &client{send: make(chan []byte, b.opts.Buffer), done: make(chan struct{})}
	if !b.add(c) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer b.remove(c)

	// Clients only listen; CloseRead handles pings and the close handshake.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, b.opts.WriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("ws: write failed, dropping client", "remote", r.RemoteAddr, "err", err)
				return
			}
		case <-c.done:
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broadcaster) add(c *client) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	if b.opts.OnClients != nil {
		b.opts.OnClients(1)
	}
	return true
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	_, ok := b.clients[c]
	delete(b.clients, c)
	b.mu.Unlock()
	if ok && b.opts.OnClients != nil {
		b.opts.OnClients(-1)
	}
}

// Close disconnects every client and rejects further messages.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for c := range b.clients {
		close(c.done)
	}
	return nil
}

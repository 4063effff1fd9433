// Package ingest accepts the audio front-end's analysis stream over a
// websocket and feeds it to the recording session.
//
// Text frames carry one JSON message each, keyed by "address":
//
//	{"address":"start","duration_seconds":4}
//	{"address":"frame","t":0.02,"pitch":441.3,"amp":0.61}
//	{"address":"onset","t":0.02,"pitch":440}
//	{"address":"samples","pcm":"<base64 PCM16>","sample_rate":44100,"channels":1}
//	{"address":"stop"}
//
// Binary frames are raw little-endian PCM16 in the format given by the
// sample_rate and channels query parameters of the upgrade request.
//
// start and stop are answered with a recording_started or take_ready
// message; failures with an error message. Frames, onsets and samples are
// never answered: the front-end tick must not wait on the server.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voicenote/internal/observe"
	"github.com/MrWong99/voicenote/internal/session"
	"github.com/MrWong99/voicenote/pkg/audio"
	"github.com/MrWong99/voicenote/pkg/frame"
)

// Message addresses.
const (
	AddressStart   = "start"
	AddressStop    = "stop"
	AddressFrame   = "frame"
	AddressOnset   = "onset"
	AddressSamples = "samples"

	AddressRecordingStarted = "recording_started"
	AddressTakeReady        = "take_ready"
	AddressError            = "error"
)

// Message is one inbound message. Which fields are meaningful depends on
// Address.
type Message struct {
	Address string `json:"address"`

	// frame, onset
	T     float64 `json:"t"`
	Pitch float64 `json:"pitch"`
	Amp   float64 `json:"amp"`

	// samples
	PCM        []byte `json:"pcm,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`

	// start
	Duration float64 `json:"duration_seconds,omitempty"`
}

// Reply is one outbound message.
type Reply struct {
	Address   string        `json:"address"`
	Recording *session.Info `json:"recording,omitempty"`
	Take      *session.Take `json:"take,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Recorder is the part of [session.Manager] the handler drives.
type Recorder interface {
	PushFrame(f frame.Frame) bool
	PushOnset(o frame.Onset) bool
	PushSamples(c audio.Chunk) bool
	StartRecording(ctx context.Context, duration float64) (session.Info, error)
	StopRecording(ctx context.Context) (*session.Take, error)
}

// Config holds the dependencies of a [Handler].
type Config struct {
	// Recorder receives the stream. Required.
	Recorder Recorder

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// OriginPatterns is passed to [websocket.AcceptOptions].
	OriginPatterns []string

	// ReadLimit caps a single inbound message in bytes. Zero selects 1 MiB,
	// enough for a second of 16-bit stereo PCM at 48 kHz plus base64.
	ReadLimit int64

	// WriteTimeout bounds a reply write. Zero selects 2s.
	WriteTimeout time.Duration
}

// Handler is the /ingest websocket endpoint.
type Handler struct {
	rec     Recorder
	metrics *observe.Metrics
	cfg     Config
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 20
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}
	return &Handler{rec: cfg.Recorder, metrics: cfg.Metrics, cfg: cfg}
}

var endpointAttr = metric.WithAttributes(attribute.String("endpoint", "ingest"))

// ServeHTTP upgrades the request and consumes messages until the client
// disconnects or the request context ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format, err := binaryFormat(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		slog.Warn("ingest: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.cfg.ReadLimit)

	ctx := r.Context()
	h.metrics.ConnectedClients.Add(ctx, 1, endpointAttr)
	defer h.metrics.ConnectedClients.Add(context.WithoutCancel(ctx), -1, endpointAttr)

	slog.Info("ingest: front-end connected", "remote", r.RemoteAddr)
	var rejected int
	defer func() {
		slog.Info("ingest: front-end disconnected", "remote", r.RemoteAddr, "rejected_inputs", rejected)
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				slog.Debug("ingest: read failed", "remote", r.RemoteAddr, "err", err)
			}
			return
		}

		if typ == websocket.MessageBinary {
			if !h.rec.PushSamples(audio.Chunk{PCM: data, SampleRate: format.SampleRate, Channels: format.Channels}) {
				rejected++
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			if !h.reply(ctx, conn, Reply{Address: AddressError, Error: "malformed message: " + err.Error()}) {
				return
			}
			continue
		}

		reply, ok := h.handle(ctx, msg)
		if !ok {
			rejected++
			continue
		}
		if reply != nil && !h.reply(ctx, conn, *reply) {
			return
		}
	}
}

// handle dispatches msg. It returns a reply for control messages and false
// when the recorder rejected a data message.
func (h *Handler) handle(ctx context.Context, msg Message) (*Reply, bool) {
	switch msg.Address {
	case AddressFrame:
		return nil, h.rec.PushFrame(frame.Frame{Timestamp: msg.T, Pitch: msg.Pitch, Amplitude: msg.Amp})
	case AddressOnset:
		return nil, h.rec.PushOnset(frame.Onset{Timestamp: msg.T, Pitch: msg.Pitch})
	case AddressSamples:
		return nil, h.rec.PushSamples(audio.Chunk{PCM: msg.PCM, SampleRate: msg.SampleRate, Channels: msg.Channels})
	case AddressStart:
		info, err := h.rec.StartRecording(ctx, msg.Duration)
		if err != nil {
			return errorReply(err), true
		}
		return &Reply{Address: AddressRecordingStarted, Recording: &info}, true
	case AddressStop:
		take, err := h.rec.StopRecording(ctx)
		if err != nil {
			return errorReply(err), true
		}
		return &Reply{Address: AddressTakeReady, Take: take}, true
	default:
		return errorReply(fmt.Errorf("unknown address %q", msg.Address)), true
	}
}

func (h *Handler) reply(ctx context.Context, conn *websocket.Conn, r Reply) bool {
	wctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, r); err != nil {
		slog.Debug("ingest: reply failed", "address", r.Address, "err", err)
		return false
	}
	return true
}

func errorReply(err error) *Reply {
	return &Reply{Address: AddressError, Error: err.Error()}
}

// binaryFormat reads the PCM format of binary frames from the query string.
// Missing values leave the chunk format unset, which the converter treats
// as mono at the recording rate.
func binaryFormat(r *http.Request) (audio.Format, error) {
	var f audio.Format
	q := r.URL.Query()
	if v := q.Get("sample_rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("ingest: invalid sample_rate %q", v)
		}
		f.SampleRate = n
	}
	if v := q.Get("channels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("ingest: invalid channels %q", v)
		}
		f.Channels = n
	}
	return f, nil
}

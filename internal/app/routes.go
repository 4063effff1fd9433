package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voicenote/internal/scheduler"
	"github.com/MrWong99/voicenote/internal/session"
)

var notesEndpoint = metric.WithAttributes(attribute.String("endpoint", "notes"))

// maxBody caps control request bodies.
const maxBody = 64 << 10

// maxSpeed bounds the playback speed factor. Faster playback squeezes a
// take below the note sampling interval and yields no notes.
const maxSpeed = 16

// routes builds the HTTP surface:
//
//	GET    /healthz, /readyz      liveness, readiness
//	GET    /metrics               Prometheus scrape
//	POST   /recordings            start a recording window
//	DELETE /recordings/current    stop it early
//	GET    /takes/current         the latest take
//	POST   /playback              play the latest take
//	DELETE /playback              cancel playback
//	GET    /contour?t=            frequency of the latest take at t
//	GET    /ingest                front-end websocket
//	GET    /notes                 note broadcast websocket
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", a.metricsHandler)

	mux.HandleFunc("POST /recordings", a.startRecording)
	mux.HandleFunc("DELETE /recordings/current", a.stopRecording)
	mux.HandleFunc("GET /takes/current", a.currentTake)
	mux.HandleFunc("POST /playback", a.startPlayback)
	mux.HandleFunc("DELETE /playback", a.stopPlayback)
	mux.HandleFunc("GET /contour", a.contour)

	mux.Handle("GET /ingest", a.ingestHandler())
	if a.broadcaster != nil {
		mux.Handle("GET /notes", a.broadcaster)
	}
	return mux
}

// ── Recording ──

type startRecordingRequest struct {
	Duration float64 `json:"duration_seconds"`
}

func (a *App) startRecording(w http.ResponseWriter, r *http.Request) {
	var req startRecordingRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Duration < 0 || math.IsNaN(req.Duration) {
		writeError(w, http.StatusBadRequest, errors.New("duration_seconds must not be negative"))
		return
	}
	info, err := a.manager.StartRecording(r.Context(), req.Duration)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (a *App) stopRecording(w http.ResponseWriter, r *http.Request) {
	take, err := a.manager.StopRecording(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, take)
}

func (a *App) currentTake(w http.ResponseWriter, _ *http.Request) {
	take, err := a.manager.CurrentTake()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, take)
}

// ── Playback ──

type playbackRequest struct {
	Speed         float64 `json:"speed"`
	Transposition float64 `json:"transposition"`
}

type playbackResponse struct {
	Playing bool `json:"playing"`
}

func (a *App) startPlayback(w http.ResponseWriter, r *http.Request) {
	req := playbackRequest{Speed: 1, Transposition: 1}
	if !decode(w, r, &req) {
		return
	}
	if !(req.Speed > 0) || !(req.Transposition > 0) || math.IsInf(req.Transposition, 0) {
		writeError(w, http.StatusBadRequest, errors.New("speed and transposition must be positive"))
		return
	}
	if req.Speed > maxSpeed {
		writeError(w, http.StatusBadRequest, fmt.Errorf("speed %v exceeds %d", req.Speed, maxSpeed))
		return
	}
	if _, err := a.manager.StartPlayback(r.Context(), req.Speed, req.Transposition); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, playbackResponse{Playing: true})
}

func (a *App) stopPlayback(w http.ResponseWriter, _ *http.Request) {
	stopped := a.manager.StopPlayback()
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

// ── Contour ──

type contourResponse struct {
	T         float64 `json:"t"`
	Frequency float64 `json:"frequency"`
}

func (a *App) contour(w http.ResponseWriter, r *http.Request) {
	t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid t %q", r.URL.Query().Get("t")))
		return
	}
	hz, err := a.manager.ContourValue(t)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, contourResponse{T: t, Frequency: hz})
}

// ── Helpers ──

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request: %w", err))
		return false
	}
	return true
}

// statusFor maps session and scheduler errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrRecording),
		errors.Is(err, session.ErrNotRecording),
		errors.Is(err, session.ErrNoTake),
		errors.Is(err, scheduler.ErrNoSegment):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("app: failed to write response", "err", err)
	}
}

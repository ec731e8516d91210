package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tourguide/pkg/audio"
	"tourguide/pkg/model"
	"tourguide/pkg/narration"
)

// NarrationController is the part of the narration engine the UI drives.
type NarrationController interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, pos time.Duration) error
	Select(ctx context.Context, poiID string) error
	Retry(ctx context.Context) error
	Snapshot() narration.Snapshot
}

// SessionEvents exposes the narration history.
type SessionEvents interface {
	Events() []model.NarrationEvent
	Narrated() []string
}

// NarrationHandler handles narration control endpoints.
type NarrationHandler struct {
	engine  NarrationController
	session SessionEvents
}

// NewNarrationHandler creates a new NarrationHandler.
func NewNarrationHandler(engine NarrationController, sess SessionEvents) *NarrationHandler {
	return &NarrationHandler{engine: engine, session: sess}
}

// SeekRequest moves the playback position.
type SeekRequest struct {
	PositionMs int64 `json:"position_ms"`
}

// SelectRequest narrates a POI chosen by the user.
type SelectRequest struct {
	POIID string `json:"poi_id"`
}

// StatusResponse is the engine state as sent to the UI.
type StatusResponse struct {
	SessionID      string                `json:"session_id"`
	State          narration.State       `json:"state"`
	ActivePOI      *model.POI            `json:"active_poi,omitempty"`
	DistanceMeters float64               `json:"distance_m"`
	ManualOverride bool                  `json:"manual_override"`
	Pinned         bool                  `json:"pinned"`
	Location       *model.LocationSample `json:"location,omitempty"`
	LastResolvedAt *time.Time            `json:"last_resolved_at,omitempty"`
	Playback       PlaybackResponse      `json:"playback"`
	LastError      string                `json:"last_error,omitempty"`
}

// PlaybackResponse is the player status with durations in milliseconds.
type PlaybackResponse struct {
	State      model.PlaybackState `json:"state"`
	URI        string              `json:"uri,omitempty"`
	PositionMs int64               `json:"position_ms"`
	DurationMs int64               `json:"duration_ms"`
	Error      string              `json:"error,omitempty"`
}

// NewStatusResponse converts an engine snapshot for the wire.
func NewStatusResponse(s narration.Snapshot) StatusResponse {
	resp := StatusResponse{
		SessionID:      s.SessionID,
		State:          s.State,
		ActivePOI:      s.ActivePOI,
		DistanceMeters: s.DistanceMeters,
		ManualOverride: s.ManualOverride,
		Pinned:         s.Pinned,
		Location:       s.Location,
		Playback: PlaybackResponse{
			State:      s.Playback.State,
			URI:        s.Playback.URI,
			PositionMs: s.Playback.Position.Milliseconds(),
			DurationMs: s.Playback.Duration.Milliseconds(),
		},
	}
	if !s.LastResolvedAt.IsZero() {
		at := s.LastResolvedAt
		resp.LastResolvedAt = &at
	}
	if s.Playback.Err != nil {
		resp.Playback.Error = s.Playback.Err.Error()
	}
	if s.LastError != nil {
		resp.LastError = s.LastError.Error()
	}
	return resp
}

// HandleStatus handles GET /api/narration/status
func (h *NarrationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewStatusResponse(h.engine.Snapshot()))
}

// HandlePlay handles POST /api/narration/play
func (h *NarrationHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "play", h.engine.Play(r.Context()))
}

// HandlePause handles POST /api/narration/pause
func (h *NarrationHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "pause", h.engine.Pause(r.Context()))
}

// HandleSeek handles POST /api/narration/seek
func (h *NarrationHandler) HandleSeek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PositionMs < 0 {
		http.Error(w, "position_ms must not be negative", http.StatusBadRequest)
		return
	}
	h.respond(w, r, "seek", h.engine.Seek(r.Context(), time.Duration(req.PositionMs)*time.Millisecond))
}

// HandleSelect handles POST /api/narration/select
func (h *NarrationHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.POIID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	slog.Info("API: select POI", "poi_id", req.POIID)
	h.respond(w, r, "select", h.engine.Select(r.Context(), req.POIID))
}

// HandleRetry handles POST /api/narration/retry
func (h *NarrationHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "retry", h.engine.Retry(r.Context()))
}

// HandleEvents handles GET /api/narration/events
func (h *NarrationHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	events := h.session.Events()
	if events == nil {
		events = []model.NarrationEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *NarrationHandler) respond(w http.ResponseWriter, r *http.Request, action string, err error) {
	if err != nil {
		slog.Debug("API: narration command rejected", "action", action, "error", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, NewStatusResponse(h.engine.Snapshot()))
}

// statusFor maps engine and player errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, narration.ErrUnknownPOI):
		return http.StatusNotFound
	case errors.Is(err, narration.ErrNoActivePOI), errors.Is(err, audio.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, narration.ErrStopped), errors.Is(err, audio.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tourguide/pkg/geo"
	"tourguide/pkg/location"
	"tourguide/pkg/model"
)

// LocationPusher accepts samples from the phone.
type LocationPusher interface {
	Push(s model.LocationSample) error
	Fail(err error)
	Latest() (model.LocationSample, bool)
}

// LocationHandler handles the location push endpoints.
type LocationHandler struct {
	feed LocationPusher
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(feed LocationPusher) *LocationHandler {
	return &LocationHandler{feed: feed}
}

// LocationRequest is one position fix from the device.
type LocationRequest struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Accuracy  float64 `json:"accuracy_m,omitempty"`
	Heading   float64 `json:"heading,omitempty"`
	Speed     float64 `json:"speed_mps,omitempty"`
	Timestamp int64   `json:"timestamp_ms,omitempty"` // Unix millis; 0 = now
	Error     string  `json:"error,omitempty"`        // Set instead of a fix when the device lost its provider
}

// HandlePush handles POST /api/location
func (h *LocationHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Error != "" {
		h.feed.Fail(errors.New(req.Error))
		w.WriteHeader(http.StatusAccepted)
		return
	}

	s := model.LocationSample{
		Point:          geo.Point{Lat: req.Lat, Lon: req.Lon},
		AccuracyMeters: req.Accuracy,
		Heading:        req.Heading,
		SpeedMps:       req.Speed,
	}
	if req.Timestamp > 0 {
		s.Timestamp = time.UnixMilli(req.Timestamp)
	}

	if err := h.feed.Push(s); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, location.ErrInvalidSample):
			code = http.StatusBadRequest
		case errors.Is(err, location.ErrClosed):
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleLatest handles GET /api/location
func (h *LocationHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.feed.Latest()
	if !ok {
		http.Error(w, "no location yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// VolumeControl is the output stage of the player.
type VolumeControl interface {
	SetVolume(vol float64)
	Volume() float64
}

// VolumeStore persists the volume across restarts.
type VolumeStore interface {
	SetVolume(ctx context.Context, v float64) error
}

// AudioHandler handles audio output endpoints.
type AudioHandler struct {
	audio VolumeControl
	store VolumeStore
}

// NewAudioHandler creates a new AudioHandler.
func NewAudioHandler(audio VolumeControl, st VolumeStore) *AudioHandler {
	return &AudioHandler{audio: audio, store: st}
}

// AudioVolumeRequest represents a volume change request.
type AudioVolumeRequest struct {
	Volume float64 `json:"volume"`
}

// HandleVolume handles POST /api/audio/volume
func (h *AudioHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req AudioVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Volume < 0 || req.Volume > 1 {
		http.Error(w, "volume must be between 0 and 1", http.StatusBadRequest)
		return
	}

	h.audio.SetVolume(req.Volume)

	if h.store != nil {
		if err := h.store.SetVolume(r.Context(), req.Volume); err != nil {
			slog.Error("Failed to persist volume", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"volume": h.audio.Volume(),
	})
}

// HandleGetVolume handles GET /api/audio/volume
func (h *AudioHandler) HandleGetVolume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"volume": h.audio.Volume()})
}

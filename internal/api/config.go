package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"tourguide/pkg/config"
)

// SettingsStore is the runtime settings layer over the YAML config.
type SettingsStore interface {
	config.Provider
	SetThresholds(ctx context.Context, enter, exit float64) error
}

// ThresholdSink applies new proximity radii to the running engine.
type ThresholdSink interface {
	SetThreshold(enter, exit float64)
}

// ConfigHandler handles configuration API requests.
type ConfigHandler struct {
	settings SettingsStore
	engine   ThresholdSink
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(settings SettingsStore, engine ThresholdSink) *ConfigHandler {
	return &ConfigHandler{settings: settings, engine: engine}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	ThresholdMeters     float64 `json:"threshold_m"`
	ExitThresholdMeters float64 `json:"exit_threshold_m"`
	StatusIntervalMs    int64   `json:"status_interval_ms"`
	Volume              float64 `json:"volume"`
	LocationProvider    string  `json:"location_provider"`
	TourRadiusMeters    float64 `json:"tour_radius_m"`
}

// ThresholdRequest changes the proximity radii. ExitThresholdMeters 0 disables hysteresis.
type ThresholdRequest struct {
	ThresholdMeters     float64 `json:"threshold_m"`
	ExitThresholdMeters float64 `json:"exit_threshold_m"`
}

// HandleGet handles GET /api/config
func (h *ConfigHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current(r.Context()))
}

// HandleThreshold handles POST /api/config/threshold
func (h *ConfigHandler) HandleThreshold(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if err := h.settings.SetThresholds(ctx, req.ThresholdMeters, req.ExitThresholdMeters); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	enter, exit := h.settings.Threshold(ctx), h.settings.ExitThreshold(ctx)
	h.engine.SetThreshold(enter, exit)
	slog.Info("Proximity threshold changed", "threshold_m", enter, "exit_threshold_m", exit)

	writeJSON(w, http.StatusOK, h.current(ctx))
}

func (h *ConfigHandler) current(ctx context.Context) ConfigResponse {
	return ConfigResponse{
		ThresholdMeters:     h.settings.Threshold(ctx),
		ExitThresholdMeters: h.settings.ExitThreshold(ctx),
		StatusIntervalMs:    h.settings.StatusInterval(ctx).Milliseconds(),
		Volume:              h.settings.Volume(ctx),
		LocationProvider:    h.settings.LocationProvider(ctx),
		TourRadiusMeters:    h.settings.AppConfig().Tour.Radius.Meters(),
	}
}

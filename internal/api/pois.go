package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"tourguide/pkg/model"
	"tourguide/pkg/tour"
)

// POISource returns the current catalogue snapshot.
type POISource interface {
	POIs() []*model.POI
}

// NarratedSet reports which POIs have been narrated this session.
type NarratedSet interface {
	IsNarrated(poiID string) bool
}

// POIHandler serves the catalogue around the user.
type POIHandler struct {
	catalog  POISource
	narrated NarratedSet
}

// NewPOIHandler creates a new POIHandler.
func NewPOIHandler(catalog POISource, narrated NarratedSet) *POIHandler {
	return &POIHandler{catalog: catalog, narrated: narrated}
}

// POIResponse is a catalogue entry with its session flag.
type POIResponse struct {
	*model.POI
	Narrated bool `json:"narrated"`
}

// HandleList handles GET /api/pois. ?format=geojson returns a FeatureCollection.
func (h *POIHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	pois := h.catalog.POIs()

	if r.URL.Query().Get("format") == "geojson" {
		fc := tour.ToGeoJSON(pois)
		for _, f := range fc.Features {
			id, _ := f.Properties["id"].(string)
			f.Properties["narrated"] = h.narrated.IsNarrated(id)
		}
		data, err := fc.MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		if _, err := w.Write(data); err != nil {
			slog.Error("Failed to write geojson response", "error", err)
		}
		return
	}

	resp := make([]POIResponse, 0, len(pois))
	for _, p := range pois {
		resp = append(resp, POIResponse{POI: p, Narrated: h.narrated.IsNarrated(p.ID)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /api/pois/{id}
func (h *POIHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, p := range h.catalog.POIs() {
		if p.ID == id {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(POIResponse{POI: p, Narrated: h.narrated.IsNarrated(id)}); err != nil {
				slog.Error("Failed to encode response", "error", err)
			}
			return
		}
	}
	http.Error(w, "poi not found", http.StatusNotFound)
}

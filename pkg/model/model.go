package model

import (
	"time"

	"tourguide/pkg/geo"
)

// POI represents a point of interest on a tour, optionally carrying a narration clip.
// POIs are owned by the tour catalogue; the narration engine treats them as read-only.
type POI struct {
	ID   string `json:"id"` // Primary Key
	Name string `json:"name"`

	// Coordinates
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Narration
	AudioRef        string  `json:"audio_ref,omitempty"`        // URI of the clip (http(s), file:// or path)
	DurationSeconds float64 `json:"duration_seconds,omitempty"` // 0 if unknown

	// Technical
	UpdatedAt time.Time `json:"updated_at"`
}

// Point returns the POI coordinate.
func (p *POI) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon}
}

// HasAudio reports whether the POI carries a narration clip.
func (p *POI) HasAudio() bool {
	return p != nil && p.AudioRef != ""
}

// DisplayName returns the best available name for the POI.
func (p *POI) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// LocationSample is a single fix from a location provider.
type LocationSample struct {
	Point          geo.Point `json:"point"`
	Timestamp      time.Time `json:"timestamp"`
	AccuracyMeters float64   `json:"accuracy_m,omitempty"`
	Heading        float64   `json:"heading,omitempty"`   // Degrees true, derived from the track
	SpeedMps       float64   `json:"speed_mps,omitempty"` // Derived from the track
}

// ProximityResult is the outcome of one resolution pass.
type ProximityResult struct {
	Nearest        *POI    `json:"nearest,omitempty"`
	DistanceMeters float64 `json:"distance_m"` // Only meaningful when Nearest is set
}

// NearestID returns the ID of the nearest POI or "" if none.
func (r ProximityResult) NearestID() string {
	if r.Nearest == nil {
		return ""
	}
	return r.Nearest.ID
}

// Package tour owns the POI catalogue: importing tours from GeoJSON or
// shapefiles and serving the POIs around the user.
package tour

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"tourguide/pkg/geo"
	"tourguide/pkg/model"
)

// Property keys understood on imported features. The first present key wins.
var (
	idKeys       = []string{"id", "poi_id", "ref"}
	nameKeys     = []string{"name", "title"}
	audioKeys    = []string{"audio", "audio_ref", "audio_url"}
	durationKeys = []string{"duration", "duration_s"}
)

// LoadGeoJSON reads a FeatureCollection and returns one POI per usable feature.
// Non-point geometries are reduced to their centroid. Features without an ID or
// with an invalid coordinate are skipped; a repeated ID replaces the earlier one.
func LoadGeoJSON(r io.Reader) ([]*model.POI, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson: %w", err)
	}

	var pois []*model.POI
	for i, f := range fc.Features {
		p, ok := featureToPOI(f)
		if !ok {
			slog.Warn("Skipping tour feature", "index", i)
			continue
		}
		pois = append(pois, p)
	}
	return dedupe(pois), nil
}

func featureToPOI(f *geojson.Feature) (*model.POI, bool) {
	if f.Geometry == nil {
		return nil, false
	}
	id := propString(f.Properties, idKeys)
	if id == "" && f.ID != nil {
		id = strings.TrimSpace(fmt.Sprint(f.ID))
	}
	if id == "" {
		return nil, false
	}

	pt := geo.FromOrb(representativePoint(f.Geometry))
	if !geo.Valid(pt) {
		return nil, false
	}

	return &model.POI{
		ID:              id,
		Name:            propString(f.Properties, nameKeys),
		Lat:             pt.Lat,
		Lon:             pt.Lon,
		AudioRef:        propString(f.Properties, audioKeys),
		DurationSeconds: propFloat(f.Properties, durationKeys),
	}, true
}

func representativePoint(g orb.Geometry) orb.Point {
	switch v := g.(type) {
	case orb.Point:
		return v
	case orb.Polygon, orb.MultiPolygon, orb.LineString, orb.MultiLineString:
		c, _ := planar.CentroidArea(v)
		return c
	default:
		return g.Bound().Center()
	}
}

// ToGeoJSON converts POIs into a FeatureCollection using the same property keys
// LoadGeoJSON reads.
func ToGeoJSON(pois []*model.POI) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range pois {
		f := geojson.NewFeature(p.Point().Orb())
		f.ID = p.ID
		f.Properties["id"] = p.ID
		if p.Name != "" {
			f.Properties["name"] = p.Name
		}
		if p.AudioRef != "" {
			f.Properties["audio"] = p.AudioRef
		}
		if p.DurationSeconds > 0 {
			f.Properties["duration"] = p.DurationSeconds
		}
		fc.Append(f)
	}
	return fc
}

func propString(props geojson.Properties, keys []string) string {
	for _, k := range keys {
		if v, ok := props[k]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func propFloat(props geojson.Properties, keys []string) float64 {
	for _, k := range keys {
		if f := props.MustFloat64(k, -1); f >= 0 {
			return f
		}
	}
	return 0
}

// dedupe keeps the last POI per ID, in first-seen order.
func dedupe(pois []*model.POI) []*model.POI {
	idx := make(map[string]int, len(pois))
	out := make([]*model.POI, 0, len(pois))
	for _, p := range pois {
		if i, ok := idx[p.ID]; ok {
			slog.Warn("Duplicate tour POI id, keeping the later one", "id", p.ID)
			out[i] = p
			continue
		}
		idx[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

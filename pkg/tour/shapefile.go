package tour

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"

	"tourguide/pkg/geo"
	"tourguide/pkg/model"
)

// LoadShapefile reads POIs from a point (or polygon) shapefile. Attribute
// names are matched case-insensitively against the GeoJSON property keys.
func LoadShapefile(path string) ([]*model.POI, error) {
	shape, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shape.Close()

	fields := shape.Fields()
	col := func(keys []string) int {
		for _, k := range keys {
			for i, f := range fields {
				if strings.EqualFold(f.String(), k) {
					return i
				}
			}
		}
		return -1
	}
	idCol, nameCol, audioCol, durCol := col(idKeys), col(nameKeys), col(audioKeys), col(durationKeys)
	if idCol < 0 {
		return nil, fmt.Errorf("shapefile %s has no id attribute", filepath.Base(path))
	}

	attr := func(n, i int) string {
		if i < 0 {
			return ""
		}
		return strings.TrimSpace(strings.Trim(shape.ReadAttribute(n, i), "\x00"))
	}

	var pois []*model.POI
	for shape.Next() {
		n, s := shape.Shape()

		var pt geo.Point
		switch v := s.(type) {
		case *shp.Null:
			continue
		case *shp.Point:
			pt = geo.Point{Lat: v.Y, Lon: v.X}
		case *shp.PointZ:
			pt = geo.Point{Lat: v.Y, Lon: v.X}
		default:
			b := s.BBox()
			pt = geo.Point{Lat: (b.MinY + b.MaxY) / 2, Lon: (b.MinX + b.MaxX) / 2}
		}

		id := attr(n, idCol)
		if id == "" || !geo.Valid(pt) {
			slog.Warn("Skipping shapefile record", "record", n)
			continue
		}

		p := &model.POI{
			ID:       id,
			Name:     attr(n, nameCol),
			Lat:      pt.Lat,
			Lon:      pt.Lon,
			AudioRef: attr(n, audioCol),
		}
		if d, err := strconv.ParseFloat(attr(n, durCol), 64); err == nil && d > 0 {
			p.DurationSeconds = d
		}
		pois = append(pois, p)
	}
	if err := shape.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shapes: %w", err)
	}
	return dedupe(pois), nil
}

// LoadFile picks the loader by file extension.
func LoadFile(path string) ([]*model.POI, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return LoadShapefile(path)
	case ".geojson", ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return LoadGeoJSON(f)
	default:
		return nil, fmt.Errorf("unsupported tour file %s", filepath.Base(path))
	}
}

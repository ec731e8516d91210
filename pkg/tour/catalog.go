package tour

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tourguide/pkg/geo"
	"tourguide/pkg/model"
	"tourguide/pkg/store"
)

// Catalog serves the POIs within a radius of the user from the store.
type Catalog struct {
	store  store.POIStore
	radius float64

	mu          sync.RWMutex
	center      geo.Point
	pois        []*model.POI
	refreshedAt time.Time
}

// NewCatalog creates a catalogue reading from st.
func NewCatalog(st store.POIStore, radiusMeters float64) *Catalog {
	return &Catalog{store: st, radius: radiusMeters}
}

// Refresh reloads the POIs within the radius of center. The result is sorted by
// ID and replaces the previous snapshot.
func (c *Catalog) Refresh(ctx context.Context, center geo.Point) ([]*model.POI, error) {
	if !geo.Valid(center) {
		return nil, fmt.Errorf("invalid catalogue center %v", center)
	}
	candidates, err := c.store.POIsInBounds(ctx, geo.BoundAround(center, c.radius))
	if err != nil {
		return nil, fmt.Errorf("failed to query pois: %w", err)
	}

	pois := candidates[:0]
	for _, p := range candidates {
		if d := geo.Distance(center, p.Point()); d != geo.Invalid && d <= c.radius {
			pois = append(pois, p)
		}
	}
	sort.Slice(pois, func(i, j int) bool { return pois[i].ID < pois[j].ID })

	c.mu.Lock()
	c.center = center
	c.pois = pois
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	slog.Debug("Catalogue refreshed", "count", len(pois), "lat", center.Lat, "lon", center.Lon)
	return pois, nil
}

// POIs returns the last refreshed snapshot.
func (c *Catalog) POIs() []*model.POI {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pois
}

// Center returns where the snapshot was taken and when. ok is false before the first refresh.
func (c *Catalog) Center() (center geo.Point, at time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.center, c.refreshedAt, !c.refreshedAt.IsZero()
}

// Import stores pois in the catalogue.
func (c *Catalog) Import(ctx context.Context, pois []*model.POI) error {
	if err := c.store.SavePOIs(ctx, pois); err != nil {
		return fmt.Errorf("failed to import pois: %w", err)
	}
	slog.Info("Imported tour POIs", "count", len(pois))
	return nil
}

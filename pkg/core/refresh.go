package core

import (
	"context"
	"log/slog"
	"time"

	"tourguide/pkg/geo"
	"tourguide/pkg/model"
	"tourguide/pkg/tour"
)

// LoadFunc reads a tour file into POIs.
type LoadFunc func(path string) ([]*model.POI, error)

// RefreshAround reloads the catalogue around pt and pushes the snapshot to the sink.
func RefreshAround(ctx context.Context, cat Refresher, sink POISink, pt geo.Point) error {
	pois, err := cat.Refresh(ctx, pt)
	if err != nil {
		return err
	}
	sink.SetPOIs(pois)
	return nil
}

func refreshAction(cat Refresher, sink POISink) Action {
	return func(ctx context.Context, s model.LocationSample) {
		if err := RefreshAround(ctx, cat, sink, s.Point); err != nil {
			slog.Error("POI refresh failed", "error", err)
		}
	}
}

// NewRefreshJob refreshes the POIs whenever the user has walked distanceMeters.
func NewRefreshJob(cat Refresher, sink POISink, distanceMeters float64) *DistanceJob {
	return NewDistanceJob("POIRefresh", distanceMeters, refreshAction(cat, sink))
}

// NewRefreshTimerJob refreshes the POIs periodically so imports show up for a
// user standing still.
func NewRefreshTimerJob(cat Refresher, sink POISink, interval time.Duration) *TimeJob {
	return NewTimeJob("POIRefreshTimer", interval, refreshAction(cat, sink))
}

// NewLocationPersistJob records the position at most once per interval.
func NewLocationPersistJob(rec LocationRecorder, interval time.Duration) *TimeJob {
	return NewTimeJob("LocationPersist", interval, func(ctx context.Context, s model.LocationSample) {
		if err := rec.SetLastLocation(ctx, s.Point); err != nil {
			slog.Warn("Failed to persist location", "error", err)
		}
	})
}

// NewTourReloadJob polls w once per interval and, when a tour file changed,
// imports it and refreshes the POIs around the current sample.
func NewTourReloadJob(w TourWatcher, imp TourImporter, cat Refresher, sink POISink, interval time.Duration) *TimeJob {
	return newTourReloadJob(w, tour.LoadFile, imp, cat, sink, interval)
}

func newTourReloadJob(w TourWatcher, load LoadFunc, imp TourImporter, cat Refresher, sink POISink, interval time.Duration) *TimeJob {
	return NewTimeJob("TourReload", interval, func(ctx context.Context, s model.LocationSample) {
		path, changed := w.CheckNew()
		if !changed {
			return
		}
		pois, err := load(path)
		if err != nil {
			slog.Error("Tour reload failed", "path", path, "error", err)
			return
		}
		if err := imp.Import(ctx, pois); err != nil {
			slog.Error("Tour reload failed", "path", path, "error", err)
			return
		}
		if err := RefreshAround(ctx, cat, sink, s.Point); err != nil {
			slog.Error("POI refresh after reload failed", "error", err)
		}
	})
}

package core

import (
	"context"

	"tourguide/pkg/geo"
	"tourguide/pkg/model"
)

// SessionResettable is an interface for components that keep session state
// (narrated POIs, event history) that must be cleared when the user jumps to
// a different place.
type SessionResettable interface {
	ResetSession(ctx context.Context)
}

// Refresher reloads the POIs around a position.
type Refresher interface {
	Refresh(ctx context.Context, center geo.Point) ([]*model.POI, error)
}

// POISink receives each refreshed POI snapshot.
type POISink interface {
	SetPOIs(pois []*model.POI)
}

// LocationRecorder persists the last known position.
type LocationRecorder interface {
	SetLastLocation(ctx context.Context, pt geo.Point) error
}

// TourWatcher reports a tour file that changed since the last check.
type TourWatcher interface {
	CheckNew() (string, bool)
}

// TourImporter stores freshly loaded POIs.
type TourImporter interface {
	Import(ctx context.Context, pois []*model.POI) error
}

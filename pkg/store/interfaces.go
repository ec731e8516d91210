package store

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"tourguide/pkg/model"
)

// POIStore handles the tour POI catalogue.
type POIStore interface {
	GetPOI(ctx context.Context, id string) (*model.POI, error)
	SavePOI(ctx context.Context, poi *model.POI) error
	SavePOIs(ctx context.Context, pois []*model.POI) error
	DeletePOI(ctx context.Context, id string) error
	POIsInBounds(ctx context.Context, b orb.Bound) ([]*model.POI, error)
	CountPOIs(ctx context.Context) (int, error)
}

// ClipRecord describes a narration clip downloaded to the local cache.
type ClipRecord struct {
	Key       string
	URL       string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// ClipStore indexes downloaded clips so they survive restarts.
type ClipStore interface {
	GetClip(ctx context.Context, key string) (*ClipRecord, bool)
	SaveClip(ctx context.Context, rec *ClipRecord) error
	DeleteClip(ctx context.Context, key string) error
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

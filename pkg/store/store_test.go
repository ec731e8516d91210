package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourguide/pkg/db"
	"tourguide/pkg/geo"
	"tourguide/pkg/model"
)

// setupTestStore creates a test database and store for each test.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	s := NewSQLiteStore(d)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// POIStore Tests
// =============================================================================

func TestPOIStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	p := &model.POI{ID: "colosseum", Name: "Colosseum", Lat: 41.8902, Lon: 12.4922, AudioRef: "https://example.com/c.mp3", DurationSeconds: 93.5}
	require.NoError(t, s.SavePOI(ctx, p))

	got, err := s.GetPOI(ctx, "colosseum")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.AudioRef, got.AudioRef)
	assert.Equal(t, 93.5, got.DurationSeconds)
	assert.InDelta(t, p.Lat, got.Lat, 1e-9)
	assert.False(t, got.UpdatedAt.IsZero())

	missing, err := s.GetPOI(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Upsert replaces the row.
	p.AudioRef = ""
	require.NoError(t, s.SavePOI(ctx, p))
	got, err = s.GetPOI(ctx, "colosseum")
	require.NoError(t, err)
	assert.False(t, got.HasAudio())

	require.NoError(t, s.DeletePOI(ctx, "colosseum"))
	n, err := s.CountPOIs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Error(t, s.SavePOI(ctx, &model.POI{Name: "no id"}))
}

func TestPOIStore_POIsInBounds(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	center := geo.Point{Lat: 41.8902, Lon: 12.4922}
	near := geo.DestinationPoint(center, 300, 90)
	far := geo.DestinationPoint(center, 5000, 0)

	require.NoError(t, s.SavePOIs(ctx, []*model.POI{
		{ID: "b", Lat: near.Lat, Lon: near.Lon},
		{ID: "a", Lat: center.Lat, Lon: center.Lon},
		{ID: "far", Lat: far.Lat, Lon: far.Lon},
	}))

	tests := []struct {
		name    string
		radius  float64
		wantIDs []string
	}{
		{"tight", 100, []string{"a"}},
		{"block", 1000, []string{"a", "b"}},
		{"district", 10000, []string{"a", "b", "far"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pois, err := s.POIsInBounds(ctx, geo.BoundAround(center, tt.radius))
			require.NoError(t, err)
			var ids []string
			for _, p := range pois {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestPOIStore_SavePOIsRollsBack(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	err := s.SavePOIs(ctx, []*model.POI{{ID: "ok"}, {ID: ""}})
	require.Error(t, err)

	n, err := s.CountPOIs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =============================================================================
// ClipStore Tests
// =============================================================================

func TestClipStore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, ok := s.GetClip(ctx, "k")
	assert.False(t, ok)

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveClip(ctx, &ClipRecord{Key: "k", URL: "https://x/a.mp3", Path: "/cache/k.mp3", Size: 1234, CreatedAt: created}))

	rec, ok := s.GetClip(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "/cache/k.mp3", rec.Path)
	assert.Equal(t, int64(1234), rec.Size)
	assert.True(t, created.Equal(rec.CreatedAt.UTC()))

	require.NoError(t, s.DeleteClip(ctx, "k"))
	_, ok = s.GetClip(ctx, "k")
	assert.False(t, ok)
}

// =============================================================================
// StateStore Tests
// =============================================================================

func TestStateStore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, ok := s.GetState(ctx, "volume")
	assert.False(t, ok)

	require.NoError(t, s.SetState(ctx, "volume", "0.5"))
	require.NoError(t, s.SetState(ctx, "volume", "0.7"))
	val, ok := s.GetState(ctx, "volume")
	assert.True(t, ok)
	assert.Equal(t, "0.7", val)

	require.NoError(t, s.DeleteState(ctx, "volume"))
	_, ok = s.GetState(ctx, "volume")
	assert.False(t, ok)
}

package tour

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourguide/pkg/db"
	"tourguide/pkg/geo"
	"tourguide/pkg/model"
	"tourguide/pkg/store"
)

const sampleTour = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [12.4922, 41.8902]},
     "properties": {"id": "colosseum", "name": "Colosseum", "audio": "clips/colosseum.mp3", "duration": 95}},
    {"type": "Feature", "id": "forum", "geometry": {"type": "Polygon", "coordinates": [[[12.48, 41.89], [12.49, 41.89], [12.49, 41.90], [12.48, 41.90], [12.48, 41.89]]]},
     "properties": {"title": "Forum", "audio_url": "https://example.com/forum.mp3"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [12.47, 41.89]},
     "properties": {"name": "No id"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [200, 41.89]},
     "properties": {"id": "broken"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [12.4769, 41.8986]},
     "properties": {"id": "colosseum", "name": "Colosseum (fixed)"}}
  ]
}`

func TestLoadGeoJSON(t *testing.T) {
	pois, err := LoadGeoJSON(strings.NewReader(sampleTour))
	require.NoError(t, err)
	require.Len(t, pois, 2)

	col := pois[0]
	assert.Equal(t, "colosseum", col.ID)
	assert.Equal(t, "Colosseum (fixed)", col.Name, "later duplicate wins")
	assert.InDelta(t, 41.8986, col.Lat, 1e-9)
	assert.False(t, col.HasAudio())

	forum := pois[1]
	assert.Equal(t, "forum", forum.ID)
	assert.Equal(t, "Forum", forum.Name)
	assert.Equal(t, "https://example.com/forum.mp3", forum.AudioRef)
	assert.InDelta(t, 41.895, forum.Lat, 1e-6, "polygon reduced to centroid")
	assert.InDelta(t, 12.485, forum.Lon, 1e-6)
}

func TestLoadGeoJSON_Invalid(t *testing.T) {
	_, err := LoadGeoJSON(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestToGeoJSON_RoundTrip(t *testing.T) {
	in := []*model.POI{
		{ID: "a", Name: "Alpha", Lat: 1, Lon: 2, AudioRef: "a.mp3", DurationSeconds: 30},
		{ID: "b", Lat: -3, Lon: 4},
	}
	data, err := json.Marshal(ToGeoJSON(in))
	require.NoError(t, err)

	out, err := LoadGeoJSON(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, *in[0], *out[0])
	assert.Equal(t, *in[1], *out[1])
}

func writeShapefile(t *testing.T, path string) {
	t.Helper()
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("ID", 32),
		shp.StringField("NAME", 64),
		shp.StringField("AUDIO", 128),
		shp.FloatField("DURATION", 10, 2),
	}))

	rows := []struct {
		x, y            float64
		id, name, audio string
		dur             float64
	}{
		{12.4922, 41.8902, "colosseum", "Colosseum", "clips/c.mp3", 95},
		{12.4769, 41.8986, "pantheon", "Pantheon", "", 0},
		{12.47, 41.89, "", "anonymous", "", 0},
	}
	for _, r := range rows {
		n := int(w.Write(&shp.Point{X: r.x, Y: r.y}))
		require.NoError(t, w.WriteAttribute(n, 0, r.id))
		require.NoError(t, w.WriteAttribute(n, 1, r.name))
		require.NoError(t, w.WriteAttribute(n, 2, r.audio))
		require.NoError(t, w.WriteAttribute(n, 3, r.dur))
	}
	w.Close()
}

func TestLoadShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tour.shp")
	writeShapefile(t, path)

	pois, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, pois, 2)

	assert.Equal(t, "colosseum", pois[0].ID)
	assert.Equal(t, "Colosseum", pois[0].Name)
	assert.Equal(t, "clips/c.mp3", pois[0].AudioRef)
	assert.Equal(t, 95.0, pois[0].DurationSeconds)
	assert.InDelta(t, 41.8902, pois[0].Lat, 1e-9)

	assert.Equal(t, "pantheon", pois[1].ID)
	assert.False(t, pois[1].HasAudio())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	gj := filepath.Join(dir, "tour.geojson")
	require.NoError(t, os.WriteFile(gj, []byte(sampleTour), 0o644))

	pois, err := LoadFile(gj)
	require.NoError(t, err)
	assert.Len(t, pois, 2)

	_, err = LoadFile(filepath.Join(dir, "tour.kml"))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.geojson"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCatalog_Refresh(t *testing.T) {
	ctx := context.Background()
	d, err := db.Init(filepath.Join(t.TempDir(), "tour.db"))
	require.NoError(t, err)
	st := store.NewSQLiteStore(d)
	t.Cleanup(func() { st.Close() })

	center := geo.Point{Lat: 41.8902, Lon: 12.4922}
	// The corner of the bounding box is inside the box but outside the radius.
	corner := geo.DestinationPoint(center, 1300, 45)
	inside := geo.DestinationPoint(center, 900, 180)

	cat := NewCatalog(st, 1000)
	_, _, ok := cat.Center()
	assert.False(t, ok)

	require.NoError(t, cat.Import(ctx, []*model.POI{
		{ID: "z", Lat: inside.Lat, Lon: inside.Lon, AudioRef: "z.mp3"},
		{ID: "a", Lat: center.Lat, Lon: center.Lon, AudioRef: "a.mp3"},
		{ID: "corner", Lat: corner.Lat, Lon: corner.Lon, AudioRef: "c.mp3"},
	}))

	pois, err := cat.Refresh(ctx, center)
	require.NoError(t, err)
	require.Len(t, pois, 2)
	assert.Equal(t, "a", pois[0].ID)
	assert.Equal(t, "z", pois[1].ID)
	assert.Equal(t, pois, cat.POIs())

	got, _, ok := cat.Center()
	assert.True(t, ok)
	assert.Equal(t, center, got)

	_, err = cat.Refresh(ctx, geo.Point{Lat: 95})
	assert.Error(t, err)
}

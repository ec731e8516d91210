package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourguide/pkg/db"
	"tourguide/pkg/store"
	"tourguide/pkg/tour"
)

const twoStops = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [12.4922, 41.8902]},
     "properties": {"id": "colosseum", "name": "Colosseum", "audio": "clips/colosseum.mp3"}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [12.4769, 41.8986]},
     "properties": {"id": "pantheon", "name": "Pantheon", "audio": "clips/pantheon.mp3"}}
  ]
}`

func writeTour(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tour.geojson")
	require.NoError(t, os.WriteFile(path, []byte(twoStops), 0o644))
	return path
}

func TestExport(t *testing.T) {
	in := writeTour(t)
	out := filepath.Join(t.TempDir(), "out.geojson")

	require.NoError(t, export(in, out))

	pois, err := tour.LoadFile(out)
	require.NoError(t, err)
	require.Len(t, pois, 2)
	ids := []string{pois[0].ID, pois[1].ID}
	assert.ElementsMatch(t, []string{"colosseum", "pantheon"}, ids)
}

func TestExport_MissingInput(t *testing.T) {
	err := export(filepath.Join(t.TempDir(), "missing.geojson"), filepath.Join(t.TempDir(), "out.geojson"))
	assert.Error(t, err)
}

func TestImportTour(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tour.db")
	cfgPath := filepath.Join(dir, "tourguide.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("db:\n    path: %q\n", dbPath)), 0o644))

	ctx := context.Background()
	require.NoError(t, importTour(ctx, cfgPath, writeTour(t)))

	conn, err := db.Init(dbPath)
	require.NoError(t, err)
	defer conn.Close()

	n, err := store.NewSQLiteStore(conn).CountPOIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

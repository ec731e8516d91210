package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourguide/pkg/geo"
	"tourguide/pkg/model"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		s        string
		l        int
		expected string
	}{
		{"Hello World", 5, "He..."},
		{"Hello World", 20, "Hello World"},
		{"Hello", 5, "Hello"},
		{"Hello", 3, "Hel"},
		{"", 5, ""},
		{"Long text", 4, "L..."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, truncate(tt.s, tt.l), "truncate(%q, %d)", tt.s, tt.l)
	}
}

func TestAnalyze(t *testing.T) {
	pos := geo.Point{Lat: 41.8902, Lon: 12.4922}
	near := geo.DestinationPoint(pos, 20, 90)
	nearer := geo.DestinationPoint(pos, 10, 0)
	far := geo.DestinationPoint(pos, 400, 180)

	pois := []*model.POI{
		{ID: "far", Lat: far.Lat, Lon: far.Lon, AudioRef: "far.mp3"},
		{ID: "silent", Lat: nearer.Lat, Lon: nearer.Lon},
		{ID: "arch", Lat: near.Lat, Lon: near.Lon, AudioRef: "arch.mp3"},
	}

	got := analyze(pos, pois, 50)
	require.Len(t, got, 3)

	ids := []string{got[0].POI.ID, got[1].POI.ID, got[2].POI.ID}
	assert.Equal(t, []string{"silent", "arch", "far"}, ids, "sorted by distance")

	assert.False(t, got[0].InRange, "POI without audio is never eligible")
	assert.False(t, got[0].Selected)
	assert.True(t, got[1].InRange)
	assert.True(t, got[1].Selected)
	assert.False(t, got[2].InRange)
	assert.InDelta(t, 400, got[2].Distance, 1)
}

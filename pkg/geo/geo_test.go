package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		p1   Point
		p2   Point
		want float64
	}{
		{
			name: "Same Point",
			p1:   Point{Lat: 0, Lon: 0},
			p2:   Point{Lat: 0, Lon: 0},
			want: 0,
		},
		{
			name: "London to Paris",
			p1:   Point{Lat: 51.5074, Lon: -0.1278},
			p2:   Point{Lat: 48.8566, Lon: 2.3522},
			want: 344000, // Approx 344km
		},
		{
			name: "Equator 1 degree",
			p1:   Point{Lat: 0, Lon: 0},
			p2:   Point{Lat: 0, Lon: 1},
			want: 111195,
		},
		{
			name: "Short walk",
			p1:   Point{Lat: 41.8902, Lon: 12.4922},
			p2:   Point{Lat: 41.8906, Lon: 12.4922},
			want: 44.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			// 1% margin covers spherical approximation vs. ellipsoid
			margin := tt.want * 0.01
			if math.Abs(got-tt.want) > margin {
				t.Errorf("Distance() = %v, want %v (+/- %v)", got, tt.want, margin)
			}
		})
	}
}

func TestDistance_Invalid(t *testing.T) {
	ok := Point{Lat: 10, Lon: 10}
	bad := []Point{
		{Lat: math.NaN(), Lon: 0},
		{Lat: 0, Lon: math.NaN()},
		{Lat: 91, Lon: 0},
		{Lat: -90.5, Lon: 0},
		{Lat: 0, Lon: 180.1},
		{Lat: math.Inf(1), Lon: 0},
	}
	for _, p := range bad {
		assert.False(t, Valid(p), "%v should be invalid", p)
		assert.Equal(t, Invalid, Distance(ok, p))
		assert.Equal(t, Invalid, Distance(p, ok))
	}
	assert.True(t, Valid(Point{Lat: 90, Lon: -180}))
}

func TestDistance_Antipodal(t *testing.T) {
	d := Distance(Point{Lat: 0, Lon: 0}, Point{Lat: 0, Lon: 180})
	assert.InDelta(t, math.Pi*EarthRadius, d, 1)
}

func TestDestinationPoint_RoundTrip(t *testing.T) {
	start := Point{Lat: 52.52, Lon: 13.405}
	for _, brg := range []float64{0, 45, 90, 180, 270} {
		end := DestinationPoint(start, 250, brg)
		assert.InDelta(t, 250, Distance(start, end), 0.5, "bearing %v", brg)
		if brg != 0 {
			assert.InDelta(t, brg, Bearing(start, end), 0.5)
		}
	}
}

func TestBoundAround(t *testing.T) {
	center := Point{Lat: 45, Lon: 7}
	b := BoundAround(center, 1000)

	for _, brg := range []float64{0, 90, 180, 270, 45} {
		p := DestinationPoint(center, 999, brg)
		assert.True(t, b.Contains(p.Orb()), "bearing %v should be inside", brg)
	}
	assert.False(t, b.Contains(DestinationPoint(center, 2000, 0).Orb()))

	polar := BoundAround(Point{Lat: 89.999, Lon: 0}, 5000)
	assert.Equal(t, -180.0, polar.Min.Lon())
	assert.Equal(t, 180.0, polar.Max.Lon())
}

func TestOrbConversion(t *testing.T) {
	p := Point{Lat: 1.5, Lon: -2.5}
	assert.Equal(t, p, FromOrb(p.Orb()))
}

package geo

import (
	"math"
	"testing"
	"time"
)

func TestTrack(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		windowSize  int
		fixes       []Point
		step        time.Duration
		wantOK      []bool
		wantHeading []float64
	}{
		{
			name:       "Standard 3-Fix Window",
			windowSize: 3,
			fixes: []Point{
				{Lat: 10, Lon: 20},
				{Lat: 11, Lon: 20},
				{Lat: 11, Lon: 21},
				{Lat: 10, Lon: 21},
			},
			step:        time.Minute,
			wantOK:      []bool{false, true, true, true},
			wantHeading: []float64{0, 0, 45, 135},
		},
		{
			name:        "No Elapsed Time",
			windowSize:  2,
			fixes:       []Point{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}},
			step:        0,
			wantOK:      []bool{false, false},
			wantHeading: []float64{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTrack(tt.windowSize)
			for i, p := range tt.fixes {
				heading, _, ok := tr.Push(p, base.Add(time.Duration(i)*tt.step))
				if ok != tt.wantOK[i] {
					t.Fatalf("fix %d: ok = %v, want %v", i, ok, tt.wantOK[i])
				}
				if ok && math.Abs(heading-tt.wantHeading[i]) > 1.0 {
					t.Errorf("fix %d: heading = %.1f, want %.1f", i, heading, tt.wantHeading[i])
				}
			}
		})
	}
}

func TestTrack_Speed(t *testing.T) {
	tr := NewTrack(2)
	start := Point{Lat: 48.0, Lon: 11.0}
	end := DestinationPoint(start, 140, 90)
	now := time.Now()

	tr.Push(start, now)
	_, speed, ok := tr.Push(end, now.Add(100*time.Second))
	if !ok {
		t.Fatal("expected speed after two fixes")
	}
	if math.Abs(speed-1.4) > 0.01 {
		t.Errorf("speed = %.3f m/s, want 1.4", speed)
	}

	tr.Reset()
	if _, _, ok := tr.Push(end, now); ok {
		t.Error("expected no speed right after reset")
	}
}

// Package mockwalk simulates a pedestrian walking a waypoint route, for
// demos and for running the narration engine without a phone.
package mockwalk

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tourguide/pkg/geo"
	"tourguide/pkg/location"
	"tourguide/pkg/model"
)

// Config holds the route and pacing of the simulated walk.
type Config struct {
	Route    []geo.Point
	Speed    float64 // m/s
	Interval time.Duration
	Loop     bool // walk back to the first waypoint and start over
}

// Walker implements location.Source by pushing simulated samples into a Feed.
type Walker struct {
	*location.Feed

	cfg      Config
	now      func() time.Time
	mu       sync.Mutex
	traveled float64
	length   float64
}

// New creates a walker positioned at the first waypoint.
func New(cfg Config) (*Walker, error) {
	if len(cfg.Route) == 0 {
		return nil, errors.New("mockwalk: empty route")
	}
	for _, p := range cfg.Route {
		if !geo.Valid(p) {
			return nil, errors.New("mockwalk: invalid waypoint")
		}
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.4
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Walker{
		Feed:   location.NewFeed(),
		cfg:    cfg,
		now:    time.Now,
		length: routeLength(cfg.Route, cfg.Loop),
	}, nil
}

// Run pushes a sample every interval until ctx is done.
func (w *Walker) Run(ctx context.Context) error {
	slog.Info("Mock walk started", "waypoints", len(w.cfg.Route), "length_m", int(w.length), "speed", w.cfg.Speed)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.emit()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Step(w.cfg.Interval)
		}
	}
}

// Step advances the walker by dt and pushes the new position.
func (w *Walker) Step(dt time.Duration) {
	w.mu.Lock()
	w.traveled += w.cfg.Speed * dt.Seconds()
	if w.cfg.Loop && w.length > 0 {
		for w.traveled >= w.length {
			w.traveled -= w.length
		}
	} else if w.traveled > w.length {
		w.traveled = w.length
	}
	w.mu.Unlock()
	w.emit()
}

// Position returns the current simulated position.
func (w *Walker) Position() geo.Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	return PositionAt(w.cfg.Route, w.traveled, w.cfg.Loop)
}

func (w *Walker) emit() {
	if err := w.Push(model.LocationSample{Point: w.Position(), Timestamp: w.now(), AccuracyMeters: 5}); err != nil {
		slog.Debug("Mock walk sample dropped", "error", err)
	}
}

// PositionAt returns the point dist meters along the route. Segments are
// interpolated along the great circle.
func PositionAt(route []geo.Point, dist float64, loop bool) geo.Point {
	if len(route) == 0 {
		return geo.Point{}
	}
	for _, seg := range segments(route, loop) {
		l := geo.Distance(seg[0], seg[1])
		if dist <= l {
			if l == 0 {
				return seg[0]
			}
			return geo.DestinationPoint(seg[0], dist, geo.Bearing(seg[0], seg[1]))
		}
		dist -= l
	}
	if loop {
		return route[0]
	}
	return route[len(route)-1]
}

func routeLength(route []geo.Point, loop bool) float64 {
	total := 0.0
	for _, seg := range segments(route, loop) {
		total += geo.Distance(seg[0], seg[1])
	}
	return total
}

func segments(route []geo.Point, loop bool) [][2]geo.Point {
	var out [][2]geo.Point
	for i := 1; i < len(route); i++ {
		out = append(out, [2]geo.Point{route[i-1], route[i]})
	}
	if loop && len(route) > 1 {
		out = append(out, [2]geo.Point{route[len(route)-1], route[0]})
	}
	return out
}

// Package proximity selects the POI whose narration should be audible at a location.
package proximity

import (
	"tourguide/pkg/geo"
	"tourguide/pkg/model"
)

// Resolve returns the nearest POI that has audio and lies within thresholdMeters of location.
// Equal distances are broken by ascending POI ID so the result does not depend on the
// order of pois. POIs with invalid coordinates are never eligible.
func Resolve(location geo.Point, pois []*model.POI, thresholdMeters float64) model.ProximityResult {
	return resolve(location, pois, func(*model.POI) float64 { return thresholdMeters })
}

// Resolver resolves with optional hysteresis: the POI identified by the caller as
// currently active stays eligible up to Exit meters, every other POI up to Enter meters.
// With Exit <= Enter the resolver behaves exactly like Resolve.
type Resolver struct {
	Enter float64
	Exit  float64
}

// NewResolver creates a resolver. An exit radius below enter is raised to enter.
func NewResolver(enter, exit float64) Resolver {
	if exit < enter {
		exit = enter
	}
	return Resolver{Enter: enter, Exit: exit}
}

// Resolve selects the nearest eligible POI, keeping activeID eligible up to r.Exit.
func (r Resolver) Resolve(location geo.Point, pois []*model.POI, activeID string) model.ProximityResult {
	if activeID == "" || r.Exit <= r.Enter {
		return Resolve(location, pois, r.Enter)
	}
	return resolve(location, pois, func(p *model.POI) float64 {
		if p.ID == activeID {
			return r.Exit
		}
		return r.Enter
	})
}

func resolve(location geo.Point, pois []*model.POI, limit func(*model.POI) float64) model.ProximityResult {
	var best *model.POI
	bestDist := 0.0

	for _, p := range pois {
		if !p.HasAudio() {
			continue
		}
		d := geo.Distance(location, p.Point())
		if d == geo.Invalid || d > limit(p) {
			continue
		}
		if best == nil || d < bestDist || (d == bestDist && p.ID < best.ID) {
			best = p
			bestDist = d
		}
	}

	if best == nil {
		return model.ProximityResult{}
	}
	return model.ProximityResult{Nearest: best, DistanceMeters: bestDist}
}

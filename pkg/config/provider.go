package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"tourguide/pkg/geo"
	"tourguide/pkg/store"
)

// ErrNoStore is returned when a runtime override is written without a backing store.
var ErrNoStore = errors.New("config: no state store")

// Provider defines the interface for accessing unified configuration.
type Provider interface {
	// Engine
	Threshold(ctx context.Context) float64
	ExitThreshold(ctx context.Context) float64
	StatusInterval(ctx context.Context) time.Duration

	// Audio
	Volume(ctx context.Context) float64

	// Location
	LocationProvider(ctx context.Context) string
	LastLocation(ctx context.Context) (geo.Point, bool)

	// Raw access (for components that need deep access)
	AppConfig() *Config
}

// UnifiedProvider implements Provider by bridging static Config and persistent Store.
type UnifiedProvider struct {
	base  *Config
	store store.StateStore
}

// NewProvider creates a new UnifiedProvider.
func NewProvider(base *Config, st store.StateStore) *UnifiedProvider {
	return &UnifiedProvider{
		base:  base,
		store: st,
	}
}

func (p *UnifiedProvider) AppConfig() *Config { return p.base }

func (p *UnifiedProvider) Threshold(ctx context.Context) float64 {
	return p.getFloat64(ctx, KeyProximityThreshold, p.base.Engine.Threshold.Meters())
}

// ExitThreshold never returns less than Threshold, so a runtime threshold
// override above the configured exit radius disables hysteresis.
func (p *UnifiedProvider) ExitThreshold(ctx context.Context) float64 {
	enter := p.Threshold(ctx)
	exit := p.getFloat64(ctx, KeyExitThreshold, p.base.Engine.ExitThreshold.Meters())
	if exit < enter {
		return enter
	}
	return exit
}

func (p *UnifiedProvider) StatusInterval(ctx context.Context) time.Duration {
	return p.base.Engine.StatusInterval.Std()
}

func (p *UnifiedProvider) Volume(ctx context.Context) float64 {
	return p.getFloat64(ctx, KeyVolume, p.base.Audio.Volume)
}

func (p *UnifiedProvider) LocationProvider(ctx context.Context) string {
	fallback := p.base.Location.Provider
	if fallback == "" {
		fallback = LocationPush
	}
	return p.getString(ctx, KeyLocationProvider, fallback)
}

// LastLocation returns the last persisted user position, if any.
func (p *UnifiedProvider) LastLocation(ctx context.Context) (geo.Point, bool) {
	if p.getString(ctx, KeyLastLat, "") == "" || p.getString(ctx, KeyLastLon, "") == "" {
		return geo.Point{}, false
	}
	pt := geo.Point{
		Lat: p.getFloat64(ctx, KeyLastLat, math.NaN()),
		Lon: p.getFloat64(ctx, KeyLastLon, math.NaN()),
	}
	if !geo.Valid(pt) {
		return geo.Point{}, false
	}
	return pt, true
}

// --- Runtime overrides ---

// SetThresholds persists new proximity radii. exit = 0 clears the exit override.
func (p *UnifiedProvider) SetThresholds(ctx context.Context, enter, exit float64) error {
	if enter <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", enter)
	}
	if exit != 0 && exit < enter {
		return fmt.Errorf("exit threshold %v is below threshold %v", exit, enter)
	}
	if err := p.setFloat64(ctx, KeyProximityThreshold, enter); err != nil {
		return err
	}
	if exit == 0 {
		if p.store == nil {
			return ErrNoStore
		}
		return p.store.DeleteState(ctx, KeyExitThreshold)
	}
	return p.setFloat64(ctx, KeyExitThreshold, exit)
}

// SetVolume persists the output volume.
func (p *UnifiedProvider) SetVolume(ctx context.Context, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("volume must be within [0, 1], got %v", v)
	}
	return p.setFloat64(ctx, KeyVolume, v)
}

// SetLastLocation persists the user position for the next start.
func (p *UnifiedProvider) SetLastLocation(ctx context.Context, pt geo.Point) error {
	if err := p.setFloat64(ctx, KeyLastLat, pt.Lat); err != nil {
		return err
	}
	return p.setFloat64(ctx, KeyLastLon, pt.Lon)
}

// --- Helpers ---

func (p *UnifiedProvider) getString(ctx context.Context, key, fallback string) string {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			return val
		}
	}
	return fallback
}

func (p *UnifiedProvider) getFloat64(ctx context.Context, key string, fallback float64) float64 {
	if p.store != nil {
		if val, ok := p.store.GetState(ctx, key); ok && val != "" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
	}
	return fallback
}

func (p *UnifiedProvider) setFloat64(ctx context.Context, key string, v float64) error {
	if p.store == nil {
		return ErrNoStore
	}
	return p.store.SetState(ctx, key, strconv.FormatFloat(v, 'f', -1, 64))
}

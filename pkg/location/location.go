// Package location delivers location samples to the narration engine.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tourguide/pkg/geo"
	"tourguide/pkg/model"
)

var (
	// ErrClosed is returned when subscribing to a closed source.
	ErrClosed = errors.New("location source closed")
	// ErrInvalidSample is returned for samples outside the valid coordinate range.
	ErrInvalidSample = errors.New("invalid location sample")
)

// SampleFunc receives location samples.
type SampleFunc func(model.LocationSample)

// ErrorFunc receives provider failures (permission denied, provider lost).
type ErrorFunc func(error)

// Source is a location provider.
type Source interface {
	// Subscribe registers callbacks until the returned function is called or ctx is done.
	Subscribe(ctx context.Context, onSample SampleFunc, onError ErrorFunc) (unsubscribe func(), err error)
}

type subscriber struct {
	onSample SampleFunc
	onError  ErrorFunc
}

// Feed is a push Source: samples are handed to Push by whoever owns the device
// (the HTTP API for a phone, or the mock walker) and fanned out to subscribers.
// Heading and speed are derived from the recent track when the sample lacks them.
type Feed struct {
	mu     sync.Mutex
	subs   map[int]subscriber
	nextID int
	latest *model.LocationSample
	track  *geo.Track
	closed bool
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		subs:  make(map[int]subscriber),
		track: geo.NewTrack(5),
	}
}

// Subscribe implements Source.
func (f *Feed) Subscribe(ctx context.Context, onSample SampleFunc, onError ErrorFunc) (func(), error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = subscriber{onSample: onSample, onError: onError}
	f.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}, nil
}

// Push validates s and delivers it to every subscriber.
func (f *Feed) Push(s model.LocationSample) error {
	if !geo.Valid(s.Point) {
		return fmt.Errorf("%w: %v", ErrInvalidSample, s.Point)
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if heading, speed, ok := f.track.Push(s.Point, s.Timestamp); ok {
		if s.Heading == 0 {
			s.Heading = heading
		}
		if s.SpeedMps == 0 {
			s.SpeedMps = speed
		}
	}
	latest := s
	f.latest = &latest
	subs := f.snapshot()
	f.mu.Unlock()

	for _, sub := range subs {
		if sub.onSample != nil {
			sub.onSample(s)
		}
	}
	return nil
}

// Fail reports a provider failure to every subscriber.
func (f *Feed) Fail(err error) {
	f.mu.Lock()
	subs := f.snapshot()
	f.track.Reset()
	f.mu.Unlock()

	slog.Warn("Location provider failure", "error", err)
	for _, sub := range subs {
		if sub.onError != nil {
			sub.onError(err)
		}
	}
}

// Latest returns the most recent sample.
func (f *Feed) Latest() (model.LocationSample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return model.LocationSample{}, false
	}
	return *f.latest, true
}

// Close detaches all subscribers. Later pushes fail with ErrClosed.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.subs = map[int]subscriber{}
	return nil
}

func (f *Feed) snapshot() []subscriber {
	out := make([]subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s)
	}
	return out
}

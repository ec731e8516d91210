package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tourguide/pkg/geo"
	"tourguide/pkg/location"
	"tourguide/pkg/logging"
	"tourguide/pkg/model"
)

// DefaultTick is how often jobs are re-evaluated while no samples arrive.
const DefaultTick = time.Second

// LocationSink is the consumer of the location stream (the narration engine).
type LocationSink interface {
	UpdateLocation(s model.LocationSample)
	LocationError(err error)
}

// Scheduler pulls samples from a location source, hands them to the sink and
// runs the registered jobs against the latest position.
type Scheduler struct {
	src           location.Source
	sink          LocationSink
	tick          time.Duration
	jumpThreshold float64 // meters; 0 disables jump detection

	jobs        []Job
	resettables []SessionResettable

	mu      sync.Mutex
	latest  *model.LocationSample
	wake    chan struct{}
	lastPos *geo.Point
}

// NewScheduler creates a new Scheduler.
func NewScheduler(src location.Source, sink LocationSink, tick time.Duration, jumpThresholdMeters float64) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		src:           src,
		sink:          sink,
		tick:          tick,
		jumpThreshold: jumpThresholdMeters,
		wake:          make(chan struct{}, 1),
	}
}

// AddJob registers a job.
func (s *Scheduler) AddJob(j Job) {
	s.jobs = append(s.jobs, j)
}

// AddResettable registers a component cleared when the user jumps to a new place.
func (s *Scheduler) AddResettable(r SessionResettable) {
	s.resettables = append(s.resettables, r)
}

// Start subscribes to the source and runs the loop. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	unsubscribe, err := s.src.Subscribe(ctx, s.offer, s.fail)
	if err != nil {
		return fmt.Errorf("failed to subscribe to location source: %w", err)
	}
	defer unsubscribe()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	slog.Info("Scheduler started", "tick", s.tick, "jobs", len(s.jobs))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return nil
		case <-s.wake:
			if sample, ok := s.Latest(); ok {
				s.handleSample(ctx, sample)
			}
		case <-ticker.C:
			if sample, ok := s.Latest(); ok {
				s.runJobs(ctx, &sample)
			}
		}
	}
}

// Latest returns the most recent sample seen.
func (s *Scheduler) Latest() (model.LocationSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return model.LocationSample{}, false
	}
	return *s.latest, true
}

// offer stores the sample in the one-slot mailbox; a newer sample replaces an
// unprocessed one.
func (s *Scheduler) offer(sample model.LocationSample) {
	s.mu.Lock()
	s.latest = &sample
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) fail(err error) {
	slog.Warn("Location provider failed", "error", err)
	s.sink.LocationError(err)
}

func (s *Scheduler) handleSample(ctx context.Context, sample model.LocationSample) {
	if s.jumped(sample.Point) {
		slog.Info("Location jump detected, resetting session", "lat", sample.Point.Lat, "lon", sample.Point.Lon)
		for _, r := range s.resettables {
			r.ResetSession(ctx)
		}
	}

	logging.TraceDefault("Scheduler: sample", "lat", sample.Point.Lat, "lon", sample.Point.Lon, "accuracy_m", sample.AccuracyMeters)
	s.sink.UpdateLocation(sample)
	s.runJobs(ctx, &sample)
}

func (s *Scheduler) jumped(p geo.Point) bool {
	prev := s.lastPos
	s.lastPos = &p
	if prev == nil || s.jumpThreshold <= 0 {
		return false
	}
	return geo.Distance(*prev, p) > s.jumpThreshold
}

func (s *Scheduler) runJobs(ctx context.Context, sample *model.LocationSample) {
	for _, job := range s.jobs {
		if job.ShouldFire(sample) {
			logging.TraceDefault("Scheduler: job fired", "job", job.Name())
			go job.Run(ctx, sample)
		}
	}
}

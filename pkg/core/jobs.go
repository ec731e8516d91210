package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tourguide/pkg/geo"
	"tourguide/pkg/model"
)

// Job defines a scheduled task.
type Job interface {
	Name() string
	ShouldFire(s *model.LocationSample) bool
	Run(ctx context.Context, s *model.LocationSample)
}

// Action is the work a DistanceJob or TimeJob performs.
type Action func(context.Context, model.LocationSample)

// BaseJob provides atomic running state to prevent re-entry.
type BaseJob struct {
	name    string
	running int32 // 1 if running, 0 otherwise
}

func NewBaseJob(name string) BaseJob {
	return BaseJob{name: name}
}

func (b *BaseJob) Name() string {
	return b.name
}

// TryLock attempts to set running to 1. Returns true if successful.
func (b *BaseJob) TryLock() bool {
	return atomic.CompareAndSwapInt32(&b.running, 0, 1)
}

func (b *BaseJob) Unlock() {
	atomic.StoreInt32(&b.running, 0)
}

func (b *BaseJob) isRunning() bool {
	return atomic.LoadInt32(&b.running) == 1
}

// DistanceJob fires when the user has moved at least threshold meters since the last run.
type DistanceJob struct {
	BaseJob
	threshold float64 // meters
	action    Action

	mu       sync.Mutex
	lastPos  geo.Point
	firstRun bool
}

func NewDistanceJob(name string, thresholdMeters float64, action Action) *DistanceJob {
	return &DistanceJob{
		BaseJob:   NewBaseJob(name),
		threshold: thresholdMeters,
		action:    action,
		firstRun:  true,
	}
}

func (j *DistanceJob) ShouldFire(s *model.LocationSample) bool {
	if j.isRunning() {
		return false
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.firstRun {
		return true
	}
	return geo.Distance(j.lastPos, s.Point) >= j.threshold
}

func (j *DistanceJob) Run(ctx context.Context, s *model.LocationSample) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.mu.Lock()
	j.lastPos = s.Point
	j.firstRun = false
	j.mu.Unlock()

	j.action(ctx, *s)
}

// TimeJob fires when time elapsed exceeds threshold.
type TimeJob struct {
	BaseJob
	threshold time.Duration
	action    Action

	mu       sync.Mutex
	lastTime time.Time
	firstRun bool
}

func NewTimeJob(name string, threshold time.Duration, action Action) *TimeJob {
	return &TimeJob{
		BaseJob:   NewBaseJob(name),
		threshold: threshold,
		action:    action,
		firstRun:  true,
	}
}

func (j *TimeJob) ShouldFire(s *model.LocationSample) bool {
	if j.isRunning() {
		return false
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.firstRun {
		return true
	}
	return time.Since(j.lastTime) >= j.threshold
}

func (j *TimeJob) Run(ctx context.Context, s *model.LocationSample) {
	if !j.TryLock() {
		return
	}
	defer j.Unlock()

	j.mu.Lock()
	j.lastTime = time.Now()
	j.firstRun = false
	j.mu.Unlock()

	j.action(ctx, *s)
}

package geo

import (
	"sync"
	"time"
)

type fix struct {
	p  Point
	at time.Time
}

// Track maintains a rolling window of timed fixes and derives heading and ground speed.
type Track struct {
	mu         sync.Mutex
	fixes      []fix
	windowSize int
}

// NewTrack creates a track with the specified fix window size.
func NewTrack(windowSize int) *Track {
	if windowSize < 2 {
		windowSize = 2
	}
	return &Track{windowSize: windowSize}
}

// Push adds a fix and returns the heading (degrees) and speed (m/s) across the window.
// With fewer than two fixes, or no elapsed time, ok is false.
func (t *Track) Push(p Point, at time.Time) (heading, speed float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fixes = append(t.fixes, fix{p: p, at: at})
	if len(t.fixes) > t.windowSize {
		t.fixes = t.fixes[1:]
	}
	if len(t.fixes) < 2 {
		return 0, 0, false
	}

	first, last := t.fixes[0], t.fixes[len(t.fixes)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0, 0, false
	}
	dist := Distance(first.p, last.p)
	if dist < 0 {
		return 0, 0, false
	}
	return Bearing(first.p, last.p), dist / elapsed, true
}

// Reset clears the fix history.
func (t *Track) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fixes = nil
}

package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks clip fetch statistics per host.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*ProviderStats
}

// ProviderStats holds metrics for a specific host.
// Fields are accessed atomically.
type ProviderStats struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	Downloads   int64 `json:"downloads"`
	Failures    int64 `json:"failures"`
	Bytes       int64 `json:"bytes"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*ProviderStats),
	}
}

// getStats returns the stats object for a provider, creating it if needed.
func (t *Tracker) getStats(provider string) *ProviderStats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &ProviderStats{}
	t.stats[provider] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheHits, 1)
}

func (t *Tracker) TrackCacheMiss(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheMisses, 1)
}

// TrackDownload records a completed download of n bytes.
func (t *Tracker) TrackDownload(provider string, n int64) {
	s := t.getStats(provider)
	atomic.AddInt64(&s.Downloads, 1)
	atomic.AddInt64(&s.Bytes, n)
}

func (t *Tracker) TrackFailure(provider string) {
	atomic.AddInt64(&t.getStats(provider).Failures, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ProviderStats)
	for k, v := range t.stats {
		result[k] = ProviderStats{
			CacheHits:   atomic.LoadInt64(&v.CacheHits),
			CacheMisses: atomic.LoadInt64(&v.CacheMisses),
			Downloads:   atomic.LoadInt64(&v.Downloads),
			Failures:    atomic.LoadInt64(&v.Failures),
			Bytes:       atomic.LoadInt64(&v.Bytes),
		}
	}
	return result
}

// Totals sums the stats over all hosts.
func (t *Tracker) Totals() ProviderStats {
	var sum ProviderStats
	for _, s := range t.Snapshot() {
		sum.CacheHits += s.CacheHits
		sum.CacheMisses += s.CacheMisses
		sum.Downloads += s.Downloads
		sum.Failures += s.Failures
		sum.Bytes += s.Bytes
	}
	return sum
}

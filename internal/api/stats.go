package api

import (
	"net/http"
	"runtime"
	"sync"

	"tourguide/pkg/narration"
	"tourguide/pkg/tracker"
)

// EngineStats exposes the narration counters.
type EngineStats interface {
	Stats() narration.Stats
}

// StatsHandler serves GET /api/stats.
type StatsHandler struct {
	tracker  *tracker.Tracker
	engine   EngineStats
	session  SessionEvents
	clients  func() int
	mu       sync.Mutex
	maxHeapB uint64
}

func NewStatsHandler(t *tracker.Tracker, engine EngineStats, sess SessionEvents, clients func() int) *StatsHandler {
	return &StatsHandler{
		tracker: t,
		engine:  engine,
		session: sess,
		clients: clients,
	}
}

type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	Downloads   int64 `json:"downloads"`
	Failures    int64 `json:"failures"`
	BytesKB     int64 `json:"bytes_kb"`
	HitRate     int64 `json:"hit_rate"`
}

type DiagnosticsDTO struct {
	HeapMB     uint64 `json:"heap_mb"`
	HeapMaxMB  uint64 `json:"heap_max_mb"`
	Goroutines int    `json:"goroutines"`
	WSClients  int    `json:"ws_clients"`
}

type StatsResponse struct {
	Diagnostics DiagnosticsDTO              `json:"diagnostics"`
	Engine      narration.Stats             `json:"engine"`
	Narrated    int                         `json:"narrated"`
	Providers   map[string]ProviderStatsDTO `json:"providers"`
	Totals      ProviderStatsDTO            `json:"totals"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Diagnostics: h.gatherDiagnostics(),
		Engine:      h.engine.Stats(),
		Narrated:    len(h.session.Narrated()),
		Providers:   make(map[string]ProviderStatsDTO),
		Totals:      toProviderDTO(h.tracker.Totals()),
	}

	for provider, stats := range h.tracker.Snapshot() {
		resp.Providers[provider] = toProviderDTO(stats)
	}

	writeJSON(w, http.StatusOK, resp)
}

func toProviderDTO(stats tracker.ProviderStats) ProviderStatsDTO {
	totalCache := stats.CacheHits + stats.CacheMisses
	hitRate := int64(0)
	if totalCache > 0 {
		hitRate = (stats.CacheHits * 100) / totalCache
	}
	return ProviderStatsDTO{
		CacheHits:   stats.CacheHits,
		CacheMisses: stats.CacheMisses,
		Downloads:   stats.Downloads,
		Failures:    stats.Failures,
		BytesKB:     stats.Bytes / 1024,
		HitRate:     hitRate,
	}
}

func (h *StatsHandler) gatherDiagnostics() DiagnosticsDTO {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h.mu.Lock()
	if m.HeapAlloc > h.maxHeapB {
		h.maxHeapB = m.HeapAlloc
	}
	maxHeap := h.maxHeapB
	h.mu.Unlock()

	d := DiagnosticsDTO{
		HeapMB:     bToMb(m.HeapAlloc),
		HeapMaxMB:  bToMb(maxHeap),
		Goroutines: runtime.NumGoroutine(),
	}
	if h.clients != nil {
		d.WSClients = h.clients()
	}
	return d
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

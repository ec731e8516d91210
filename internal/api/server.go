package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tourguide/pkg/version"
)

// Handlers bundles the endpoint handlers. Nil handlers leave their routes unregistered.
type Handlers struct {
	Narration *NarrationHandler
	Location  *LocationHandler
	POIs      *POIHandler
	Audio     *AudioHandler
	Config    *ConfigHandler
	Stats     *StatsHandler
	Hub       *Hub
}

// NewServer creates and configures the HTTP server.
// shutdown is called (asynchronously) by POST /api/shutdown.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewMux(h, shutdown),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux registers every route on a fresh ServeMux.
func NewMux(h Handlers, shutdown func()) *http.ServeMux {
	mux := http.NewServeMux()

	// 1. Health and diagnostics
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/event", handleLatestEvent)
	if h.Stats != nil {
		mux.Handle("GET /api/stats", h.Stats)
	}

	// 2. Narration
	if h.Narration != nil {
		mux.HandleFunc("GET /api/narration/status", h.Narration.HandleStatus)
		mux.HandleFunc("GET /api/narration/events", h.Narration.HandleEvents)
		mux.HandleFunc("POST /api/narration/play", h.Narration.HandlePlay)
		mux.HandleFunc("POST /api/narration/pause", h.Narration.HandlePause)
		mux.HandleFunc("POST /api/narration/seek", h.Narration.HandleSeek)
		mux.HandleFunc("POST /api/narration/select", h.Narration.HandleSelect)
		mux.HandleFunc("POST /api/narration/retry", h.Narration.HandleRetry)
	}
	if h.Hub != nil {
		mux.Handle("GET /api/ws", h.Hub)
	}

	// 3. Location
	if h.Location != nil {
		mux.HandleFunc("POST /api/location", h.Location.HandlePush)
		mux.HandleFunc("GET /api/location", h.Location.HandleLatest)
	}

	// 4. POIs
	if h.POIs != nil {
		mux.HandleFunc("GET /api/pois", h.POIs.HandleList)
		mux.HandleFunc("GET /api/pois/{id}", h.POIs.HandleGet)
	}

	// 5. Audio and config
	if h.Audio != nil {
		mux.HandleFunc("GET /api/audio/volume", h.Audio.HandleGetVolume)
		mux.HandleFunc("POST /api/audio/volume", h.Audio.HandleVolume)
	}
	if h.Config != nil {
		mux.HandleFunc("GET /api/config", h.Config.HandleGet)
		mux.HandleFunc("POST /api/config/threshold", h.Config.HandleThreshold)
	}

	// 6. Shutdown
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Let the response flush first.
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": %q}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

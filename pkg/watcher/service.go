// Package watcher polls tour files for changes so an edited tour can be
// re-imported without restarting.
package watcher

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrNoPaths is returned when there is nothing to watch.
var ErrNoPaths = errors.New("watcher: no paths")

// Service monitors tour files, or directories holding them, for modifications.
type Service struct {
	paths       []string
	mu          sync.Mutex
	lastChecked time.Time // mtime of the last reported file
}

// NewService creates a monitor. Files modified before the call are ignored.
func NewService(paths []string) (*Service, error) {
	var kept []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			slog.Warn("Watcher: Path does not exist yet", "path", p)
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return nil, ErrNoPaths
	}

	return &Service{
		paths:       kept,
		lastChecked: time.Now(),
	}, nil
}

// IsTourFile reports whether name has an extension the tour loader understands.
func IsTourFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".geojson", ".json", ".shp":
		return true
	}
	return false
}

// CheckNew returns the most recently modified tour file changed since the
// previous hit. A path may name a file directly or a directory to scan.
func (s *Service) CheckNew() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newest string
	var newestTime time.Time

	consider := func(path string, info os.FileInfo) {
		mod := info.ModTime()
		if mod.After(s.lastChecked) && mod.After(newestTime) {
			newestTime = mod
			newest = path
		}
	}

	for _, path := range s.paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			consider(path, info)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !IsTourFile(entry.Name()) {
				continue
			}
			fi, err := entry.Info()
			if err != nil {
				continue
			}
			consider(filepath.Join(path, entry.Name()), fi)
		}
	}

	if newest == "" {
		return "", false
	}
	s.lastChecked = newestTime
	slog.Info("Watcher: Tour file changed", "file", newest)
	return newest, true
}

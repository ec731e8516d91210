package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tourguide/pkg/db"
	"tourguide/pkg/store"
	"tourguide/pkg/tour"
)

const tourSeedStateKey = "tour_seed_mtime"

// DefaultClipMaxAge is how long a downloaded clip stays in the cache.
const DefaultClipMaxAge = 30 * 24 * time.Hour

// Options configures a maintenance run.
type Options struct {
	SeedPath   string        // Tour file imported when it changed since the last run; empty = none
	ClipMaxAge time.Duration // 0 = DefaultClipMaxAge
}

// Run imports the seed tour and prunes the clip cache. Failures are logged,
// never fatal. It blocks until completion.
func Run(ctx context.Context, s store.Store, d *db.DB, opts Options) error {
	slog.Info("Starting database maintenance...")

	if opts.SeedPath != "" {
		if err := importSeed(ctx, s, opts.SeedPath); err != nil {
			slog.Error("Tour import failed", "path", opts.SeedPath, "error", err)
		} else {
			slog.Info("Tour import check completed")
		}
	}

	maxAge := opts.ClipMaxAge
	if maxAge <= 0 {
		maxAge = DefaultClipMaxAge
	}
	if n, err := pruneClips(d, maxAge); err != nil {
		slog.Error("Clip cache pruning failed", "error", err)
	} else {
		slog.Info("Clip cache pruning completed", "removed", n)
	}

	return nil
}

// importSeed imports the tour file unless it is unchanged since the last import.
func importSeed(ctx context.Context, s store.Store, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat tour file: %w", err)
	}

	fileMTime := info.ModTime().UTC().Format(time.RFC3339Nano)
	if stored, found := s.GetState(ctx, tourSeedStateKey); found && stored == fileMTime {
		return nil
	}

	slog.Info("Importing tour POIs...", "path", path)
	pois, err := tour.LoadFile(path)
	if err != nil {
		return err
	}
	if err := s.SavePOIs(ctx, pois); err != nil {
		return fmt.Errorf("failed to save pois: %w", err)
	}
	slog.Info("Imported tour POIs", "count", len(pois))

	if err := s.SetState(ctx, tourSeedStateKey, fileMTime); err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	return nil
}

// pruneClips drops expired cache rows and deletes their files.
func pruneClips(d *db.DB, maxAge time.Duration) (int, error) {
	paths, err := d.PruneClipCache(maxAge)
	if err != nil {
		return 0, err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove cached clip", "path", p, "error", err)
		}
	}
	return len(paths), nil
}

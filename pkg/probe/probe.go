// Package probe runs startup checks before the narration service starts.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds a probe without its own Timeout.
const DefaultTimeout = 5 * time.Second

// Probe is one named startup check. A failing Critical probe stops startup;
// any other failure is only logged.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Critical bool
	Timeout  time.Duration
}

// Result is the outcome of one probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Failed reports whether the result should stop startup.
func (r Result) Failed() bool { return r.Error != nil && r.Probe.Critical }

// Run executes the probes one after another.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, 0, len(probes))
	for _, p := range probes {
		results = append(results, run(ctx, p))
	}
	return results
}

func run(ctx context.Context, p Probe) Result {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Check(ctx)
	return Result{Probe: p, Error: err, Duration: time.Since(start)}
}

// Report logs one line per result and returns the failures of critical
// probes, joined.
func Report(results []Result) error {
	var errs []error
	for _, r := range results {
		args := []any{"check", r.Probe.Name, "took", r.Duration.Round(time.Millisecond)}
		switch {
		case r.Error == nil:
			slog.Info("Startup check passed", args...)
		case r.Probe.Critical:
			slog.Error("Startup check failed", append(args, "error", r.Error)...)
			errs = append(errs, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		default:
			slog.Warn("Startup check degraded", append(args, "error", r.Error)...)
		}
	}
	return errors.Join(errs...)
}

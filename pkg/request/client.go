// Package request downloads narration clips into a local cache.
package request

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"tourguide/pkg/store"
	"tourguide/pkg/tracker"
	"tourguide/pkg/version"
)

var (
	// ErrHTTPStatus is wrapped by errors for non-retryable HTTP status codes.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrUnsupportedScheme is returned for URLs that are not http(s).
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

var defaultUserAgent = fmt.Sprintf("Tourguide/%s", version.Version)

// Config configures the clip client.
type Config struct {
	CacheDir  string
	Timeout   time.Duration
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Client fetches clips with one serial queue per host, backoff and an on-disk cache.
type Client struct {
	httpClient *http.Client
	clips      store.ClipStore
	tracker    *tracker.Tracker
	backoff    *HostBackoff
	cacheDir   string
	retries    int
	gap        time.Duration // pause between two requests to the same host

	// Queues per host
	queues map[string]chan job
	mu     sync.Mutex // Protects queues map
}

// job represents a queued download.
type job struct {
	ctx      context.Context
	url      *url.URL
	key      string
	host     string
	respChan chan jobResult
}

type jobResult struct {
	path string
	err  error
}

// New creates a new Client.
func New(clips store.ClipStore, t *tracker.Tracker, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		clips:      clips,
		tracker:    t,
		backoff:    NewHostBackoff(cfg.BaseDelay, cfg.MaxDelay),
		cacheDir:   cfg.CacheDir,
		retries:    cfg.Retries,
		gap:        100 * time.Millisecond,
		queues:     make(map[string]chan job),
	}
}

// Fetch returns a local file path holding the clip at rawURL, downloading it
// unless it is already cached.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	host := normalizeHost(u.Hostname())
	key := cacheKey(rawURL)

	if rec, ok := c.clips.GetClip(ctx, key); ok {
		if _, err := os.Stat(rec.Path); err == nil {
			c.tracker.TrackCacheHit(host)
			slog.Debug("Clip cache hit", "host", host, "key", key)
			return rec.Path, nil
		}
		// The file was removed behind our back; forget the record.
		_ = c.clips.DeleteClip(ctx, key)
	}
	c.tracker.TrackCacheMiss(host)

	respChan := make(chan jobResult, 1)
	c.dispatch(job{ctx: ctx, url: u, key: key, host: host, respChan: respChan})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-respChan:
		return res.path, res.err
	}
}

// normalizeHost groups requests by host name, ignoring a leading "www.".
func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func cacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:16])
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

func clipExt(u *url.URL) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if extPattern.MatchString(ext) {
		return ext
	}
	return ".clip"
}

// dispatch sends the job to the host's queue, creating the queue/worker if needed.
func (c *Client) dispatch(j job) {
	c.mu.Lock()
	q, ok := c.queues[j.host]
	if !ok {
		q = make(chan job, 100)
		c.queues[j.host] = q
		go c.worker(j.host, q)
	}
	c.mu.Unlock()

	// Blocks while the queue is full, throttling the caller.
	select {
	case q <- j:
	case <-j.ctx.Done():
		j.respChan <- jobResult{err: j.ctx.Err()}
	}
}

// worker processes downloads for a specific host sequentially.
func (c *Client) worker(host string, q <-chan job) {
	for j := range q {
		if j.ctx.Err() != nil {
			slog.Debug("Clip download dropped from queue", "host", host, "error", j.ctx.Err())
			j.respChan <- jobResult{err: j.ctx.Err()}
			continue
		}

		p, n, err := c.download(j)
		switch {
		case err == nil:
			c.tracker.TrackDownload(host, n)
		case j.ctx.Err() == nil:
			c.tracker.TrackFailure(host)
			slog.Warn("Clip download failed", "url", j.url.Redacted(), "error", err)
		}
		j.respChan <- jobResult{path: p, err: err}

		if c.gap > 0 {
			time.Sleep(c.gap)
		}
	}
}

// download fetches the clip with retries on network errors, 429 and 5xx.
func (c *Client) download(j job) (string, int64, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := c.backoff.Wait(j.ctx, j.host); err != nil {
			return "", 0, err
		}

		slog.Debug("Network Request", "host", j.host, "path", j.url.Path, "attempt", attempt+1)
		req, err := http.NewRequestWithContext(j.ctx, http.MethodGet, j.url.String(), http.NoBody)
		if err != nil {
			return "", 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", defaultUserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if j.ctx.Err() != nil {
				return "", 0, j.ctx.Err()
			}
			c.backoff.RecordFailure(j.host)
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			slog.Warn("Clip host backoff", "status", resp.StatusCode, "host", j.host, "attempt", attempt+1)
			c.backoff.RecordFailure(j.host)
			lastErr = fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return "", 0, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
		}

		p, n, err := c.save(j, resp.Body)
		resp.Body.Close()
		if err != nil {
			if j.ctx.Err() != nil {
				return "", 0, j.ctx.Err()
			}
			return "", 0, err
		}
		c.backoff.RecordSuccess(j.host)
		return p, n, nil
	}
	return "", 0, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// save streams body into the cache directory and records it in the clip store.
func (c *Client) save(j job, body io.Reader) (string, int64, error) {
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(c.cacheDir, j.key+"-*.part")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("read error: %w", err)
	}

	final := filepath.Join(c.cacheDir, j.key+clipExt(j.url))
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("failed to store clip: %w", err)
	}

	rec := &store.ClipRecord{Key: j.key, URL: j.url.String(), Path: final, Size: n}
	if err := c.clips.SaveClip(context.Background(), rec); err != nil {
		slog.Error("Failed to index cached clip", "url", j.url.Redacted(), "error", err)
	}
	return final, n, nil
}

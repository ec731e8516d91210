package request

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourguide/pkg/db"
	"tourguide/pkg/store"
	"tourguide/pkg/tracker"
)

func newTestClient(t *testing.T, retries int) (*Client, *tracker.Tracker, string) {
	t.Helper()
	dir := t.TempDir()
	d, err := db.Init(filepath.Join(dir, "client_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	tr := tracker.New()
	cacheDir := filepath.Join(dir, "clips")
	c := New(store.NewSQLiteStore(d), tr, Config{
		CacheDir:  cacheDir,
		Timeout:   5 * time.Second,
		Retries:   retries,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	})
	c.gap = 0
	return c, tr, cacheDir
}

func hostOf(t *testing.T, raw string) string {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return normalizeHost(u.Hostname())
}

func TestFetch_DownloadsAndCaches(t *testing.T) {
	var hits int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Contains(t, r.UserAgent(), "Tourguide/")
		_, _ = w.Write([]byte("RIFF-not-really"))
	}))
	defer svr.Close()

	c, tr, cacheDir := newTestClient(t, 0)
	ctx := context.Background()
	u := svr.URL + "/clips/colosseum.MP3?sig=abc"

	p1, err := c.Fetch(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, cacheDir, filepath.Dir(p1))
	assert.Equal(t, ".mp3", filepath.Ext(p1))
	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-not-really", string(data))

	p2, err := c.Fetch(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	stats := tr.Snapshot()[hostOf(t, svr.URL)]
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.Downloads)
	assert.Equal(t, int64(len("RIFF-not-really")), stats.Bytes)

	// A cached file deleted from disk is fetched again.
	require.NoError(t, os.Remove(p1))
	_, err = c.Fetch(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetch_Sequential(t *testing.T) {
	var conc, maxConc int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&conc, 1)
		defer atomic.AddInt32(&conc, -1)
		for {
			m := atomic.LoadInt32(&maxConc)
			if cur <= m || atomic.CompareAndSwapInt32(&maxConc, m, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	c, _, _ := newTestClient(t, 0)
	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := c.Fetch(context.Background(), svr.URL+"/"+name+".mp3")
			assert.NoError(t, err)
		}(name)
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxConc), "one request at a time per host")
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		statuses  []int
		wantErr   error
		wantCalls int32
	}{
		{"retry then success", 2, []int{503, 429, 200}, nil, 3},
		{"retries exhausted", 1, []int{500, 500, 500}, ErrHTTPStatus, 2},
		{"not found is final", 3, []int{404}, ErrHTTPStatus, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				i := atomic.AddInt32(&calls, 1) - 1
				code := tt.statuses[int(i)%len(tt.statuses)]
				w.WriteHeader(code)
				_, _ = w.Write([]byte("body"))
			}))
			defer svr.Close()

			c, tr, _ := newTestClient(t, tt.retries)
			_, err := c.Fetch(context.Background(), svr.URL+"/x.mp3")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, int64(1), tr.Snapshot()[hostOf(t, svr.URL)].Failures)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	c, _, _ := newTestClient(t, 0)
	_, err := c.Fetch(context.Background(), "ftp://example.com/a.mp3")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestFetch_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer svr.Close()
	defer close(release)

	c, _, _ := newTestClient(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Fetch(ctx, svr.URL+"/slow.mp3")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"www.example.com", "example.com"},
		{"CDN.Example.com", "cdn.example.com"},
		{"127.0.0.1", "127.0.0.1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizeHost(tt.host))
	}
}

func TestClipExt(t *testing.T) {
	for raw, want := range map[string]string{
		"https://x/a.mp3":           ".mp3",
		"https://x/a.WAV?x=1":       ".wav",
		"https://x/stream":          ".clip",
		"https://x/a.thisistoolong": ".clip",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, clipExt(u), raw)
	}
}

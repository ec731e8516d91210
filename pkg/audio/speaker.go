package audio

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

const deviceSampleRate = beep.SampleRate(48000)

// Fetcher resolves a remote clip URL to a local file path.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// SpeakerBackend plays clips on the default output device through gopxl/beep.
type SpeakerBackend struct {
	fetcher Fetcher
	fade    time.Duration

	initOnce sync.Once
	initErr  error

	mu      sync.Mutex
	volume  float64
	current *speakerClip
}

// NewSpeakerBackend creates a backend. fetcher may be nil, in which case only local
// paths and file:// URIs can be opened. fade is the ramp applied on play and pause.
func NewSpeakerBackend(fetcher Fetcher, volume float64, fade time.Duration) *SpeakerBackend {
	return &SpeakerBackend{
		fetcher: fetcher,
		fade:    fade,
		volume:  clampUnit(volume),
	}
}

func (b *SpeakerBackend) ensureSpeaker() error {
	b.initOnce.Do(func() {
		b.initErr = speaker.Init(deviceSampleRate, deviceSampleRate.N(time.Second/10))
		if b.initErr != nil {
			slog.Error("Failed to initialize speaker", "error", b.initErr)
		}
	})
	return b.initErr
}

// Open resolves uri, decodes it, and returns a paused clip.
func (b *SpeakerBackend) Open(ctx context.Context, uri string) (Clip, error) {
	path, err := b.localPath(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, format, err := DecodeMedia(path)
	if err != nil {
		return nil, err
	}
	if err := b.ensureSpeaker(); err != nil {
		source.Close()
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	resampled := beep.Resample(3, format.SampleRate, deviceSampleRate, source)
	vol := NewSmoothVolume(resampled, b.volume)
	c := &speakerClip{
		backend: b,
		source:  source,
		format:  format,
		vol:     vol,
		ctrl:    &beep.Ctrl{Streamer: vol, Paused: true},
	}
	b.current = c
	return c, nil
}

// SetVolume changes the output volume, including the clip that is currently loaded.
func (b *SpeakerBackend) SetVolume(vol float64) {
	vol = clampUnit(vol)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.volume = vol
	if c := b.current; c != nil {
		speaker.Lock()
		if !c.closed {
			c.vol.SetTargetVolume(vol, float64(deviceSampleRate), b.fade)
		}
		speaker.Unlock()
	}
}

// Volume returns the output volume.
func (b *SpeakerBackend) Volume() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volume
}

func (b *SpeakerBackend) localPath(ctx context.Context, uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare path. A one-letter scheme is a Windows drive.
		return uri, nil
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return u.Path, nil
	case "http", "https":
		if b.fetcher == nil {
			return "", fmt.Errorf("no fetcher configured for %s", uri)
		}
		return b.fetcher.Fetch(ctx, uri)
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (b *SpeakerBackend) detach(c *speakerClip) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == c {
		b.current = nil
	}
}

type speakerClip struct {
	backend *SpeakerBackend
	source  beep.StreamSeekCloser
	format  beep.Format
	vol     *SmoothVolume
	ctrl    *beep.Ctrl

	// Guarded by speaker.Lock().
	attached bool
	done     chan struct{}
	closed   bool
}

func (c *speakerClip) Play() error {
	speaker.Lock()
	if c.closed {
		speaker.Unlock()
		return ErrNotReady
	}
	attach := !c.attached
	if attach {
		// Finished clips replay from the start.
		if c.source.Position() >= c.source.Len() {
			if err := c.source.Seek(0); err != nil {
				speaker.Unlock()
				return err
			}
		}
		c.done = make(chan struct{})
		c.attached = true
	}
	done := c.done
	c.vol.Mute()
	c.vol.FadeTo(1, float64(deviceSampleRate), c.backend.fade)
	c.ctrl.Paused = false
	speaker.Unlock()

	// speaker.Play takes the lock itself.
	if attach {
		speaker.Play(beep.Seq(c.ctrl, beep.Callback(func() {
			// Runs on the speaker goroutine with the lock held.
			c.attached = false
			close(done)
		})))
	}
	return nil
}

func (c *speakerClip) Pause() error {
	speaker.Lock()
	if c.closed {
		speaker.Unlock()
		return ErrNotReady
	}
	c.vol.FadeTo(0, float64(deviceSampleRate), c.backend.fade)
	speaker.Unlock()

	if c.backend.fade > 0 {
		time.Sleep(c.backend.fade)
	}

	speaker.Lock()
	c.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (c *speakerClip) Seek(pos time.Duration) error {
	speaker.Lock()
	defer speaker.Unlock()
	if c.closed {
		return ErrNotReady
	}
	n := c.format.SampleRate.N(pos)
	if n > c.source.Len() {
		n = c.source.Len()
	}
	return c.source.Seek(n)
}

func (c *speakerClip) Position() time.Duration {
	speaker.Lock()
	defer speaker.Unlock()
	if c.closed {
		return 0
	}
	return c.format.SampleRate.D(c.source.Position())
}

func (c *speakerClip) Duration() time.Duration {
	return c.format.SampleRate.D(c.source.Len())
}

func (c *speakerClip) Done() <-chan struct{} {
	speaker.Lock()
	defer speaker.Unlock()
	return c.done
}

func (c *speakerClip) Close() error {
	speaker.Lock()
	if c.closed {
		speaker.Unlock()
		return nil
	}
	c.closed = true
	// A nil streamer ends the Seq; the trailing callback then closes done.
	c.ctrl.Streamer = nil
	c.ctrl.Paused = false
	speaker.Unlock()

	c.backend.detach(c)
	return c.source.Close()
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

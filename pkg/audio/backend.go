// Package audio provides the narration playback controller and its device backends.
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotReady is returned by play, pause and seek when no clip is loaded.
	ErrNotReady = errors.New("audio: no clip loaded")
	// ErrLoad wraps network and codec failures while loading a clip.
	ErrLoad = errors.New("audio: load failed")
	// ErrPlayback wraps backend failures during play, pause or seek.
	ErrPlayback = errors.New("audio: playback failed")
	// ErrClosed is returned for commands submitted after Close.
	ErrClosed = errors.New("audio: controller closed")
)

// Backend acquires clips on an output device.
type Backend interface {
	// Open fetches and decodes uri and returns a paused clip positioned at zero.
	// It must honour ctx cancellation while fetching.
	Open(ctx context.Context, uri string) (Clip, error)
}

// Clip is one acquired audio resource.
// The controller calls Clip methods from a single goroutine.
type Clip interface {
	Play() error
	Pause() error
	Seek(pos time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	// Done is closed when playback reaches the end of the clip.
	// A clip that is played again after finishing returns a fresh channel.
	Done() <-chan struct{}
	// Close releases the resource. It is safe to call more than once.
	Close() error
}

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tourguide/pkg/model"
)

// Op identifies a controller command.
type Op string

const (
	OpLoad  Op = "load"
	OpPlay  Op = "play"
	OpPause Op = "pause"
	OpSeek  Op = "seek"
	OpStop  Op = "stop"
)

// Command is a single request to the playback slot.
type Command struct {
	Op       Op
	URI      string        // OpLoad
	Position time.Duration // OpSeek
}

type request struct {
	ctx  context.Context
	cmd  Command
	done func(error)
}

// Controller owns a single audio slot and executes commands against it one at a time,
// in submission order, on its own goroutine.
type Controller struct {
	backend  Backend
	interval time.Duration

	qmu     sync.Mutex
	queue   []request
	wake    chan struct{}
	closed  bool
	stopCh  chan struct{}
	stopped chan struct{}

	mu     sync.RWMutex
	sink   func(model.PlaybackStatus)
	status model.PlaybackStatus

	// Owned by the worker goroutine. finished stays set until the next Play so that
	// a stale Done channel is never selected twice.
	clip     Clip
	finished bool
}

// NewController creates a controller and starts its worker.
// interval bounds how often position updates are emitted while playing.
func NewController(backend Backend, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	c := &Controller{
		backend:  backend,
		interval: interval,
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
		status:   model.PlaybackStatus{State: model.PlaybackIdle},
	}
	go c.run()
	return c
}

// OnStatus registers the status sink. The sink is called from the controller goroutine
// and must not block.
func (c *Controller) OnStatus(fn func(model.PlaybackStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = fn
}

// Status returns the most recent status.
func (c *Controller) Status() model.PlaybackStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Submit queues cmd and returns immediately. done, if non-nil, is called from the
// controller goroutine once the command has settled. Commands whose ctx is already
// cancelled when they reach the head of the queue settle with ctx.Err() untouched.
func (c *Controller) Submit(ctx context.Context, cmd Command, done func(error)) {
	c.qmu.Lock()
	if c.closed {
		c.qmu.Unlock()
		if done != nil {
			done(ErrClosed)
		}
		return
	}
	c.queue = append(c.queue, request{ctx: ctx, cmd: cmd, done: done})
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Do submits cmd and waits for it to settle.
func (c *Controller) Do(ctx context.Context, cmd Command) error {
	errCh := make(chan error, 1)
	c.Submit(ctx, cmd, func(err error) { errCh <- err })
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load releases the current clip and loads uri.
func (c *Controller) Load(ctx context.Context, uri string) error {
	return c.Do(ctx, Command{Op: OpLoad, URI: uri})
}

// Play starts or resumes the loaded clip.
func (c *Controller) Play(ctx context.Context) error {
	return c.Do(ctx, Command{Op: OpPlay})
}

// Pause pauses the loaded clip, keeping its position.
func (c *Controller) Pause(ctx context.Context) error {
	return c.Do(ctx, Command{Op: OpPause})
}

// SeekTo moves the playback position, clamped to the clip bounds.
func (c *Controller) SeekTo(ctx context.Context, pos time.Duration) error {
	return c.Do(ctx, Command{Op: OpSeek, Position: pos})
}

// Stop releases the current clip.
func (c *Controller) Stop(ctx context.Context) error {
	return c.Do(ctx, Command{Op: OpStop})
}

// Close releases the slot and stops the worker. Pending commands settle with ErrClosed.
func (c *Controller) Close() error {
	c.qmu.Lock()
	if c.closed {
		c.qmu.Unlock()
		<-c.stopped
		return nil
	}
	c.closed = true
	c.qmu.Unlock()

	close(c.stopCh)
	<-c.stopped
	return nil
}

func (c *Controller) run() {
	defer close(c.stopped)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		var clipDone <-chan struct{}
		if c.clip != nil && !c.finished {
			clipDone = c.clip.Done()
		}

		select {
		case <-c.stopCh:
			c.drain()
			c.release()
			return
		case <-c.wake:
			for {
				req, ok := c.next()
				if !ok {
					break
				}
				c.execute(req)
			}
		case <-clipDone:
			c.onFinished()
		case <-ticker.C:
			if c.clip != nil && c.Status().State == model.PlaybackPlaying {
				c.emit(c.snapshot(model.PlaybackPlaying))
			}
		}
	}
}

func (c *Controller) next() (request, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return request{}, false
	}
	req := c.queue[0]
	c.queue = c.queue[1:]
	return req, true
}

func (c *Controller) drain() {
	c.qmu.Lock()
	pending := c.queue
	c.queue = nil
	c.qmu.Unlock()
	for _, req := range pending {
		if req.done != nil {
			req.done(ErrClosed)
		}
	}
}

func (c *Controller) execute(req request) {
	var err error
	if ctxErr := req.ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else {
		switch req.cmd.Op {
		case OpLoad:
			err = c.load(req.ctx, req.cmd.URI)
		case OpPlay:
			err = c.play()
		case OpPause:
			err = c.pause()
		case OpSeek:
			err = c.seek(req.cmd.Position)
		case OpStop:
			c.release()
			c.emit(model.PlaybackStatus{State: model.PlaybackIdle})
		default:
			err = fmt.Errorf("audio: unknown command %q", req.cmd.Op)
		}
	}

	if err != nil {
		slog.Debug("Audio: command failed", "op", req.cmd.Op, "uri", req.cmd.URI, "error", err)
	}
	if req.done != nil {
		req.done(err)
	}
}

func (c *Controller) load(ctx context.Context, uri string) error {
	c.release()
	c.emit(model.PlaybackStatus{State: model.PlaybackLoading, URI: uri})

	clip, err := c.backend.Open(ctx, uri)
	if err != nil {
		if ctx.Err() != nil {
			c.emit(model.PlaybackStatus{State: model.PlaybackIdle})
			return ctx.Err()
		}
		err = fmt.Errorf("%w: %s: %w", ErrLoad, uri, err)
		c.emit(model.PlaybackStatus{State: model.PlaybackError, URI: uri, Err: err})
		return err
	}
	if ctx.Err() != nil {
		// Superseded while the backend was opening; never adopt the clip.
		_ = clip.Close()
		c.emit(model.PlaybackStatus{State: model.PlaybackIdle})
		return ctx.Err()
	}

	c.clip = clip
	c.finished = false
	st := c.snapshot(model.PlaybackPaused)
	st.URI = uri
	c.emit(st)
	slog.Debug("Audio: clip loaded", "uri", uri, "duration", st.Duration)
	return nil
}

func (c *Controller) play() error {
	if c.clip == nil {
		return ErrNotReady
	}
	if c.Status().State == model.PlaybackPlaying {
		return nil
	}
	if err := c.clip.Play(); err != nil {
		return c.fail(err)
	}
	c.finished = false
	c.emit(c.snapshot(model.PlaybackPlaying))
	return nil
}

func (c *Controller) pause() error {
	if c.clip == nil {
		return ErrNotReady
	}
	if c.Status().State == model.PlaybackPaused {
		return nil
	}
	if err := c.clip.Pause(); err != nil {
		return c.fail(err)
	}
	c.emit(c.snapshot(model.PlaybackPaused))
	return nil
}

func (c *Controller) seek(pos time.Duration) error {
	if c.clip == nil {
		return ErrNotReady
	}
	if pos < 0 {
		pos = 0
	}
	if d := c.clip.Duration(); d > 0 && pos > d {
		pos = d
	}
	if err := c.clip.Seek(pos); err != nil {
		return c.fail(err)
	}
	c.emit(c.snapshot(c.Status().State))
	return nil
}

func (c *Controller) onFinished() {
	c.finished = true
	st := c.snapshot(model.PlaybackPaused)
	st.Position = st.Duration
	st.DidJustFinish = true
	c.emit(st)
}

// fail releases nothing: the clip stays loaded so the caller can decide what to do.
func (c *Controller) fail(cause error) error {
	err := fmt.Errorf("%w: %w", ErrPlayback, cause)
	st := c.snapshot(model.PlaybackError)
	st.Err = err
	c.emit(st)
	return err
}

func (c *Controller) release() {
	if c.clip == nil {
		return
	}
	if err := c.clip.Close(); err != nil {
		slog.Warn("Audio: failed to release clip", "error", err)
	}
	c.clip = nil
	c.finished = false
}

func (c *Controller) snapshot(state model.PlaybackState) model.PlaybackStatus {
	st := model.PlaybackStatus{State: state, URI: c.Status().URI}
	if c.clip != nil {
		st.Position = c.clip.Position()
		st.Duration = c.clip.Duration()
	}
	return st
}

func (c *Controller) emit(st model.PlaybackStatus) {
	c.mu.Lock()
	c.status = st
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(st)
	}
}

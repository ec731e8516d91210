package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourguide/pkg/model"
)

type fakeClip struct {
	mu       sync.Mutex
	uri      string
	pos      time.Duration
	dur      time.Duration
	playing  bool
	closed   int
	done     chan struct{}
	playErr  error
	seekCall []time.Duration
}

func (c *fakeClip) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playErr != nil {
		return c.playErr
	}
	if c.pos >= c.dur {
		c.pos = 0
	}
	c.done = make(chan struct{})
	c.playing = true
	return nil
}

func (c *fakeClip) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playing = false
	return nil
}

func (c *fakeClip) Seek(pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = pos
	c.seekCall = append(c.seekCall, pos)
	return nil
}

func (c *fakeClip) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

func (c *fakeClip) Duration() time.Duration { return c.dur }

func (c *fakeClip) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *fakeClip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// finish simulates the device reaching the end of the clip.
func (c *fakeClip) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = c.dur
	c.playing = false
	close(c.done)
}

type fakeBackend struct {
	mu     sync.Mutex
	clips  []*fakeClip
	fail   map[string]error
	gate   chan struct{} // when set, Open blocks until closed or ctx is done
	opened chan string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{fail: map[string]error{}, opened: make(chan string, 16)}
}

func (b *fakeBackend) Open(ctx context.Context, uri string) (Clip, error) {
	b.opened <- uri
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail[uri]; err != nil {
		return nil, err
	}
	c := &fakeClip{uri: uri, dur: 10 * time.Second}
	b.clips = append(b.clips, c)
	return c, nil
}

func (b *fakeBackend) clip(i int) *fakeClip {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clips[i]
}

type statusLog struct {
	mu  sync.Mutex
	all []model.PlaybackStatus
	ch  chan model.PlaybackStatus
}

func newStatusLog() *statusLog {
	return &statusLog{ch: make(chan model.PlaybackStatus, 64)}
}

func (l *statusLog) record(s model.PlaybackStatus) {
	l.mu.Lock()
	l.all = append(l.all, s)
	l.mu.Unlock()
	select {
	case l.ch <- s:
	default:
	}
}

func (l *statusLog) waitFor(t *testing.T, pred func(model.PlaybackStatus) bool) model.PlaybackStatus {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-l.ch:
			if pred(s) {
				return s
			}
		case <-timeout:
			t.Fatal("timed out waiting for status")
			return model.PlaybackStatus{}
		}
	}
}

func newTestController(t *testing.T) (*Controller, *fakeBackend, *statusLog) {
	t.Helper()
	b := newFakeBackend()
	c := NewController(b, time.Hour)
	log := newStatusLog()
	c.OnStatus(log.record)
	t.Cleanup(func() { _ = c.Close() })
	return c, b, log
}

func TestController_NotReady(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	assert.ErrorIs(t, c.Play(ctx), ErrNotReady)
	assert.ErrorIs(t, c.Pause(ctx), ErrNotReady)
	assert.ErrorIs(t, c.SeekTo(ctx, time.Second), ErrNotReady)
	assert.Equal(t, model.PlaybackIdle, c.Status().State)
}

func TestController_LoadPlayPauseSeek(t *testing.T) {
	c, b, log := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, "x.mp3"))
	st := c.Status()
	assert.Equal(t, model.PlaybackPaused, st.State)
	assert.Equal(t, "x.mp3", st.URI)
	assert.Equal(t, 10*time.Second, st.Duration)

	require.NoError(t, c.Play(ctx))
	assert.Equal(t, model.PlaybackPlaying, c.Status().State)
	require.NoError(t, c.Play(ctx), "play while playing is a no-op")

	require.NoError(t, c.SeekTo(ctx, -time.Second))
	require.NoError(t, c.SeekTo(ctx, time.Minute))
	clip := b.clip(0)
	assert.Equal(t, []time.Duration{0, 10 * time.Second}, clip.seekCall, "seek is clamped")

	require.NoError(t, c.Pause(ctx))
	assert.Equal(t, model.PlaybackPaused, c.Status().State)

	states := []model.PlaybackState{}
	log.mu.Lock()
	for _, s := range log.all {
		states = append(states, s.State)
	}
	log.mu.Unlock()
	assert.Equal(t, []model.PlaybackState{
		model.PlaybackLoading,
		model.PlaybackPaused,
		model.PlaybackPlaying,
		model.PlaybackPlaying,
		model.PlaybackPlaying,
		model.PlaybackPaused,
	}, states)
}

func TestController_LoadReleasesPrevious(t *testing.T) {
	c, b, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, "a.mp3"))
	require.NoError(t, c.Load(ctx, "b.mp3"))
	assert.Equal(t, 1, b.clip(0).closed)
	assert.Equal(t, 0, b.clip(1).closed)

	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, 1, b.clip(1).closed)
	assert.Equal(t, model.PlaybackIdle, c.Status().State)
}

func TestController_LoadError(t *testing.T) {
	c, b, _ := newTestController(t)
	ctx := context.Background()
	b.fail["broken.mp3"] = errors.New("404")

	err := c.Load(ctx, "broken.mp3")
	assert.ErrorIs(t, err, ErrLoad)
	assert.Contains(t, err.Error(), "404")

	st := c.Status()
	assert.Equal(t, model.PlaybackError, st.State)
	assert.NotEmpty(t, st.ErrorReason())
	assert.ErrorIs(t, c.Play(ctx), ErrNotReady)
}

func TestController_PlaybackError(t *testing.T) {
	c, b, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, "x.mp3"))
	clip := b.clip(0)
	clip.mu.Lock()
	clip.playErr = errors.New("device gone")
	clip.mu.Unlock()

	assert.ErrorIs(t, c.Play(ctx), ErrPlayback)
	assert.Equal(t, model.PlaybackError, c.Status().State)
}

func TestController_FinishAndReplay(t *testing.T) {
	c, b, log := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.Load(ctx, "x.mp3"))
	require.NoError(t, c.Play(ctx))
	b.clip(0).finish()

	st := log.waitFor(t, func(s model.PlaybackStatus) bool { return s.DidJustFinish })
	assert.Equal(t, model.PlaybackPaused, st.State)
	assert.Equal(t, st.Duration, st.Position)

	require.NoError(t, c.Play(ctx))
	assert.Equal(t, model.PlaybackPlaying, c.Status().State)
	assert.Equal(t, time.Duration(0), c.Status().Position)
}

func TestController_CancelledLoadIsDiscarded(t *testing.T) {
	c, b, _ := newTestController(t)
	b.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	var loadErr error
	settled := make(chan struct{})
	c.Submit(ctx, Command{Op: OpLoad, URI: "slow.mp3"}, func(err error) {
		loadErr = err
		close(settled)
	})

	<-b.opened
	cancel()
	<-settled

	assert.ErrorIs(t, loadErr, context.Canceled)
	assert.Equal(t, model.PlaybackIdle, c.Status().State)
	assert.ErrorIs(t, c.Play(context.Background()), ErrNotReady)
}

func TestController_CommandsRunInOrder(t *testing.T) {
	c, _, _ := newTestController(t)
	ctx := context.Background()

	var mu sync.Mutex
	var order []Op
	var wg sync.WaitGroup
	record := func(op Op) func(error) {
		wg.Add(1)
		return func(error) {
			mu.Lock()
			order = append(order, op)
			mu.Unlock()
			wg.Done()
		}
	}

	c.Submit(ctx, Command{Op: OpLoad, URI: "x.mp3"}, record(OpLoad))
	c.Submit(ctx, Command{Op: OpPlay}, record(OpPlay))
	c.Submit(ctx, Command{Op: OpSeek, Position: time.Second}, record(OpSeek))
	c.Submit(ctx, Command{Op: OpPause}, record(OpPause))
	wg.Wait()

	assert.Equal(t, []Op{OpLoad, OpPlay, OpSeek, OpPause}, order)
	assert.Equal(t, model.PlaybackPaused, c.Status().State)
	assert.Equal(t, time.Second, c.Status().Position)
}

func TestController_Close(t *testing.T) {
	b := newFakeBackend()
	c := NewController(b, time.Hour)
	require.NoError(t, c.Load(context.Background(), "x.mp3"))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, b.clip(0).closed)
	assert.ErrorIs(t, c.Play(context.Background()), ErrClosed)
}

func TestController_TickerEmitsWhilePlaying(t *testing.T) {
	b := newFakeBackend()
	c := NewController(b, 5*time.Millisecond)
	defer c.Close()
	log := newStatusLog()
	c.OnStatus(log.record)

	ctx := context.Background()
	require.NoError(t, c.Load(ctx, "x.mp3"))
	require.NoError(t, c.Play(ctx))

	for i := 0; i < 3; i++ {
		log.waitFor(t, func(s model.PlaybackStatus) bool { return s.State == model.PlaybackPlaying })
	}
}

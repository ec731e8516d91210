// Package narration decides which POI narration is audible and drives the player accordingly.
//
// All state lives on a single event loop. Location samples, catalogue updates, player
// status and user commands are posted as events and handled one at a time by handle.
// Player commands are submitted asynchronously and their outcome comes back as a
// CommandSettled event tagged with the generation that issued it.
package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tourguide/pkg/audio"
	"tourguide/pkg/geo"
	"tourguide/pkg/logging"
	"tourguide/pkg/model"
	"tourguide/pkg/proximity"
	"tourguide/pkg/session"
)

// State is the engine state.
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StateLoading   State = "loading"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateError     State = "error"
)

var (
	// ErrLocationUnavailable is reported when the location provider fails.
	ErrLocationUnavailable = errors.New("narration: location unavailable")
	// ErrNoActivePOI is returned for commands that need an active POI.
	ErrNoActivePOI = errors.New("narration: no active POI")
	// ErrUnknownPOI is returned when selecting a POI that is not in the catalogue or has no audio.
	ErrUnknownPOI = errors.New("narration: unknown POI")
	// ErrStopped is returned for commands issued after the engine stopped.
	ErrStopped = errors.New("narration: engine stopped")
)

// Player is the playback surface the engine drives.
type Player interface {
	// Submit queues cmd without blocking. done is called once the command settles.
	Submit(ctx context.Context, cmd audio.Command, done func(error))
}

// Options configures an Engine.
type Options struct {
	// Threshold is the proximity radius in meters.
	Threshold float64
	// ExitThreshold keeps the active POI eligible up to this radius. Values at or
	// below Threshold disable hysteresis.
	ExitThreshold float64
	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is the engine state as seen by observers.
type Snapshot struct {
	SessionID      string
	State          State
	ActivePOI      *model.POI
	DistanceMeters float64
	ManualOverride bool
	Pinned         bool
	Location       *model.LocationSample
	LastResolvedAt time.Time
	Playback       model.PlaybackStatus
	LastError      error
}

func (s *Snapshot) same(o *Snapshot) bool {
	return s.SessionID == o.SessionID &&
		s.State == o.State &&
		s.ActivePOI == o.ActivePOI &&
		s.ManualOverride == o.ManualOverride &&
		s.Pinned == o.Pinned &&
		s.Playback.State == o.Playback.State &&
		s.Playback.Position == o.Playback.Position &&
		s.Playback.Duration == o.Playback.Duration &&
		errText(s.LastError) == errText(o.LastError)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Stats are cumulative engine counters.
type Stats struct {
	Resolutions      uint64 `json:"resolutions"`
	Switches         uint64 `json:"switches"`
	Loads            uint64 `json:"loads"`
	LoadFailures     uint64 `json:"load_failures"`
	PlaybackFailures uint64 `json:"playback_failures"`
	Finished         uint64 `json:"finished"`
	Discarded        uint64 `json:"discarded"`
}

// Engine is the narration state machine.
type Engine struct {
	player  Player
	session *session.Manager
	now     func() time.Time

	qmu     sync.Mutex
	queue   []Event
	locSlot int // index of the pending LocationUpdated in queue, -1 if none
	closed  bool
	wake    chan struct{}
	stopped chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// Owned by the event loop.
	resolver    proximity.Resolver
	pois        []*model.POI
	location    *model.LocationSample
	state       State
	active      *model.POI
	distance    float64
	override    bool
	pinned      bool
	pinBase     string
	lastNearest string
	inRange     bool
	loaded      bool
	finished    bool
	started     bool
	failed      *model.POI
	gen         uint64
	opCtx       context.Context
	cancel      context.CancelFunc
	lastErr     error
	resolvedAt  time.Time
	status      model.PlaybackStatus

	mu        sync.RWMutex
	snap      Snapshot
	observers map[int]func(Snapshot)
	nextObs   int

	resolutions      atomic.Uint64
	switches         atomic.Uint64
	loads            atomic.Uint64
	loadFailures     atomic.Uint64
	playbackFailures atomic.Uint64
	finishedCount    atomic.Uint64
	discarded        atomic.Uint64
}

// New creates an engine in the Idle state. Call Run to start processing events.
func New(player Player, sess *session.Manager, opts Options) *Engine {
	if sess == nil {
		sess = session.NewManager()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		player:     player,
		session:    sess,
		now:        now,
		locSlot:    -1,
		wake:       make(chan struct{}, 1),
		stopped:    make(chan struct{}),
		baseCtx:    ctx,
		baseCancel: cancel,
		resolver:   proximity.NewResolver(opts.Threshold, opts.ExitThreshold),
		state:      StateIdle,
		opCtx:      ctx,
		observers:  make(map[int]func(Snapshot)),
	}
	e.snap = Snapshot{SessionID: sess.ID(), State: StateIdle}
	return e
}

// UpdateLocation posts a location sample. Samples that arrive faster than the loop
// handles them are coalesced; only the latest is resolved.
func (e *Engine) UpdateLocation(sample model.LocationSample) {
	e.post(LocationUpdated{Sample: sample})
}

// LocationError reports a location provider failure.
func (e *Engine) LocationError(err error) {
	e.post(LocationFailed{Err: err})
}

// SetPOIs replaces the POI catalogue snapshot.
func (e *Engine) SetPOIs(pois []*model.POI) {
	e.post(POIsUpdated{POIs: pois})
}

// HandleStatus mirrors a player status into the engine. It never blocks.
func (e *Engine) HandleStatus(st model.PlaybackStatus) {
	e.post(StatusChanged{Status: st})
}

// SetThreshold changes the proximity radii and re-resolves.
func (e *Engine) SetThreshold(enter, exit float64) {
	e.post(ThresholdChanged{Enter: enter, Exit: exit})
}

// Play resumes the active POI and clears the manual override.
func (e *Engine) Play(ctx context.Context) error {
	return e.command(ctx, ManualCommand{Kind: ManualPlay})
}

// Pause pauses the active POI and keeps it paused until the user plays it again
// or a different POI comes into range.
func (e *Engine) Pause(ctx context.Context) error {
	return e.command(ctx, ManualCommand{Kind: ManualPause})
}

// Seek moves the playback position of the active POI.
func (e *Engine) Seek(ctx context.Context, pos time.Duration) error {
	return e.command(ctx, ManualCommand{Kind: ManualSeek, Position: pos})
}

// Select narrates the given POI regardless of proximity. The selection holds until
// the nearest resolved POI changes.
func (e *Engine) Select(ctx context.Context, poiID string) error {
	return e.command(ctx, ManualCommand{Kind: ManualSelect, POIID: poiID})
}

// Retry reloads the POI whose clip failed last.
func (e *Engine) Retry(ctx context.Context) error {
	return e.command(ctx, ManualCommand{Kind: ManualRetry})
}

func (e *Engine) command(ctx context.Context, cmd ManualCommand) error {
	cmd.Reply = make(chan error, 1)
	e.post(cmd)
	select {
	case err := <-cmd.Reply:
		return err
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest published state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Subscribe registers fn to receive every state change. fn runs on the event loop
// and must not block. The returned func unregisters it.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.observers, id)
	}
}

// Narrated returns the IDs of POIs whose clip played to the end.
func (e *Engine) Narrated() []string {
	return e.session.Narrated()
}

// Session returns the narration session.
func (e *Engine) Session() *session.Manager {
	return e.session
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Resolutions:      e.resolutions.Load(),
		Switches:         e.switches.Load(),
		Loads:            e.loads.Load(),
		LoadFailures:     e.loadFailures.Load(),
		PlaybackFailures: e.playbackFailures.Load(),
		Finished:         e.finishedCount.Load(),
		Discarded:        e.discarded.Load(),
	}
}

// Run processes events until ctx is cancelled, then stops playback and clears state.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("Narration: engine started")
	defer close(e.stopped)
	defer e.teardown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.wake:
			e.drain()
		}
	}
}

func (e *Engine) post(ev Event) {
	e.qmu.Lock()
	if e.closed {
		e.qmu.Unlock()
		if m, ok := ev.(ManualCommand); ok && m.Reply != nil {
			m.Reply <- ErrStopped
		}
		return
	}
	if _, ok := ev.(LocationUpdated); ok {
		// The newer sample replaces the pending one at the tail, keeping arrival order.
		if e.locSlot >= 0 {
			e.queue = append(e.queue[:e.locSlot], e.queue[e.locSlot+1:]...)
		}
		e.locSlot = len(e.queue)
	}
	e.queue = append(e.queue, ev)
	e.qmu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// drain handles queued events until the queue is empty.
func (e *Engine) drain() {
	for {
		e.qmu.Lock()
		batch := e.queue
		e.queue = nil
		e.locSlot = -1
		e.qmu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			e.handle(ev)
		}
	}
}

func (e *Engine) teardown() {
	e.qmu.Lock()
	e.closed = true
	pending := e.queue
	e.queue = nil
	e.locSlot = -1
	e.qmu.Unlock()

	for _, ev := range pending {
		if m, ok := ev.(ManualCommand); ok && m.Reply != nil {
			m.Reply <- ErrStopped
		}
	}

	e.baseCancel()
	e.clearActive()
	e.failed = nil
	e.location = nil
	e.player.Submit(context.Background(), audio.Command{Op: audio.OpStop}, nil)
	e.setState(StateIdle)
	e.publish()
	slog.Info("Narration: engine stopped")
}

// handle is the single transition function.
func (e *Engine) handle(ev Event) {
	switch ev := ev.(type) {
	case LocationUpdated:
		s := ev.Sample
		e.location = &s
		if errors.Is(e.lastErr, ErrLocationUnavailable) {
			e.lastErr = nil
		}
		e.resolve()
	case LocationFailed:
		e.lastErr = fmt.Errorf("%w: %w", ErrLocationUnavailable, ev.Err)
		slog.Warn("Narration: location unavailable", "error", ev.Err)
	case POIsUpdated:
		e.setPOIs(ev.POIs)
	case StatusChanged:
		e.onStatus(ev.Status)
	case CommandSettled:
		e.onSettled(ev)
	case ThresholdChanged:
		e.resolver = proximity.NewResolver(ev.Enter, ev.Exit)
		slog.Info("Narration: threshold changed", "enter", e.resolver.Enter, "exit", e.resolver.Exit)
		e.resolve()
	case ManualCommand:
		err := e.manual(ev)
		if err != nil {
			slog.Debug("Narration: command rejected", "kind", ev.Kind, "error", err)
		}
		if ev.Reply != nil {
			ev.Reply <- err
		}
	}
	e.publish()
}

func (e *Engine) resolve() {
	if e.location == nil {
		return
	}
	// Hysteresis only keeps a POI that is currently in range.
	sticky := ""
	if e.inRange {
		sticky = e.activeID()
	}
	res := e.resolver.Resolve(e.location.Point, e.pois, sticky)
	e.resolutions.Add(1)
	e.resolvedAt = e.now()
	nearest := res.NearestID()
	e.lastNearest = nearest
	logging.TraceDefault("Narration: resolved", "nearest", nearest, "distance", res.DistanceMeters)

	defer e.updateDistance()

	if e.pinned {
		if nearest == e.pinBase {
			return
		}
		e.pinned = false
		slog.Debug("Narration: selection released", "poi", e.activeID(), "nearest", nearest)
	}

	switch {
	case nearest != "" && nearest != e.activeID():
		e.switchTo(res.Nearest, false)
	case nearest != "":
		if !e.inRange {
			e.reenter()
		}
	case e.active != nil:
		if e.inRange {
			e.leave()
		}
	}
}

func (e *Engine) updateDistance() {
	if e.active == nil || e.location == nil {
		e.distance = 0
		return
	}
	e.distance = geo.Distance(e.location.Point, e.active.Point())
}

func (e *Engine) switchTo(poi *model.POI, manual bool) {
	e.switches.Add(1)
	e.newGeneration()

	e.active = poi
	e.override = false
	e.pinned = false
	e.inRange = true
	e.loaded = false
	e.finished = false
	e.started = false
	e.lastErr = nil
	slog.Info("Narration: switching POI", "poi", poi.ID, "name", poi.DisplayName(), "manual", manual)

	e.setState(StateResolving)
	e.publish()

	e.loads.Add(1)
	e.submit(audio.Command{Op: audio.OpLoad, URI: poi.AudioRef})
	e.setState(StateLoading)
}

// reenter handles the active POI coming back into range.
func (e *Engine) reenter() {
	e.inRange = true
	if e.override || !e.loaded {
		return
	}
	if e.finished {
		e.finished = false
		e.submit(audio.Command{Op: audio.OpSeek, Position: 0})
		e.play(false)
		return
	}
	if e.state == StatePaused {
		e.play(false)
	}
}

// leave handles the active POI going out of range. The clip stays loaded.
func (e *Engine) leave() {
	e.inRange = false
	if e.state == StatePlaying {
		e.pause(false)
	}
}

func (e *Engine) play(manual bool) {
	e.submit(audio.Command{Op: audio.OpPlay})
	e.setState(StatePlaying)

	typ := model.NarrationResumed
	if !e.started {
		typ = model.NarrationStarted
		e.started = true
	}
	e.event(typ, manual, "")
}

func (e *Engine) pause(manual bool) {
	e.submit(audio.Command{Op: audio.OpPause})
	e.setState(StatePaused)
	e.event(model.NarrationPaused, manual, "")
}

func (e *Engine) onSettled(ev CommandSettled) {
	if ev.Gen != e.gen {
		e.discarded.Add(1)
		slog.Debug("Narration: discarding stale result", "op", ev.Op, "gen", ev.Gen, "current", e.gen)
		return
	}
	if errors.Is(ev.Err, context.Canceled) {
		return
	}

	switch ev.Op {
	case audio.OpLoad:
		if ev.Err != nil {
			e.loadFailed(ev.Err)
			return
		}
		e.loaded = true
		if e.inRange && !e.override {
			e.play(false)
		} else {
			e.setState(StatePaused)
		}
	case audio.OpPlay, audio.OpPause, audio.OpSeek:
		if ev.Err != nil {
			e.playbackFailed(ev.Op, ev.Err)
		}
	}
}

func (e *Engine) loadFailed(err error) {
	e.loadFailures.Add(1)
	poi := e.active
	slog.Warn("Narration: failed to load clip", "poi", poi.ID, "uri", poi.AudioRef, "error", err)
	e.event(model.NarrationFailed, false, err.Error())

	e.clearActive()
	e.failed = poi
	e.lastErr = err
	e.setState(StateError)
}

func (e *Engine) playbackFailed(op audio.Op, err error) {
	e.playbackFailures.Add(1)
	poi := e.active
	slog.Error("Narration: playback failed", "poi", poi.ID, "op", op, "error", err)
	e.event(model.NarrationFailed, false, err.Error())

	e.clearActive()
	e.failed = poi
	e.lastErr = err
	e.submit(audio.Command{Op: audio.OpStop})
	e.setState(StateError)
}

func (e *Engine) onStatus(st model.PlaybackStatus) {
	e.status = st
	if !st.DidJustFinish || e.active == nil || !e.loaded || e.state != StatePlaying {
		return
	}
	if st.URI != "" && st.URI != e.active.AudioRef {
		return
	}
	e.finished = true
	e.finishedCount.Add(1)
	e.setState(StatePaused)
	e.session.MarkNarrated(e.active.ID, e.now())
	e.event(model.NarrationFinished, false, "")
}

func (e *Engine) setPOIs(pois []*model.POI) {
	e.pois = pois

	if e.active != nil {
		fresh := e.find(e.active.ID)
		if fresh == nil || fresh.AudioRef != e.active.AudioRef {
			slog.Info("Narration: active POI changed in catalogue, stopping", "poi", e.active.ID)
			e.clearActive()
			e.submit(audio.Command{Op: audio.OpStop})
			e.setState(StateIdle)
		} else {
			e.active = fresh
		}
	}
	if e.failed != nil && e.find(e.failed.ID) == nil {
		e.failed = nil
	}
	e.resolve()
}

func (e *Engine) manual(cmd ManualCommand) error {
	switch cmd.Kind {
	case ManualPlay:
		if e.active == nil {
			return ErrNoActivePOI
		}
		e.override = false
		if !e.inRange {
			// Playing out of range holds until the resolution changes.
			e.pin()
			e.inRange = true
		}
		if !e.loaded {
			if e.state == StatePaused {
				e.setState(StateLoading)
			}
			return nil
		}
		if e.finished {
			e.finished = false
			e.submit(audio.Command{Op: audio.OpSeek, Position: 0})
		}
		if e.state != StatePlaying {
			e.play(true)
		}
		return nil

	case ManualPause:
		if e.active == nil {
			return ErrNoActivePOI
		}
		e.override = true
		switch e.state {
		case StatePlaying:
			e.pause(true)
		case StateLoading:
			// The load keeps running and settles into Paused.
			e.setState(StatePaused)
		}
		return nil

	case ManualSeek:
		if e.active == nil {
			return ErrNoActivePOI
		}
		if !e.loaded {
			return audio.ErrNotReady
		}
		e.finished = false
		e.submit(audio.Command{Op: audio.OpSeek, Position: cmd.Position})
		return nil

	case ManualSelect:
		poi := e.find(cmd.POIID)
		if poi == nil {
			return fmt.Errorf("%w: %s", ErrUnknownPOI, cmd.POIID)
		}
		if !poi.HasAudio() {
			return fmt.Errorf("%w: %s has no audio", ErrUnknownPOI, cmd.POIID)
		}
		if poi.ID == e.activeID() {
			return e.manual(ManualCommand{Kind: ManualPlay})
		}
		e.switchTo(poi, true)
		if poi.ID != e.lastNearest {
			e.pin()
		}
		return nil

	case ManualRetry:
		if e.state != StateError || e.failed == nil {
			return ErrNoActivePOI
		}
		poi := e.find(e.failed.ID)
		if poi == nil || !poi.HasAudio() {
			return fmt.Errorf("%w: %s", ErrUnknownPOI, e.failed.ID)
		}
		e.failed = nil
		e.switchTo(poi, true)
		if poi.ID != e.lastNearest {
			e.pin()
		}
		return nil
	}
	return fmt.Errorf("narration: unknown command %q", cmd.Kind)
}

func (e *Engine) pin() {
	e.pinned = true
	e.pinBase = e.lastNearest
}

func (e *Engine) clearActive() {
	e.newGeneration()
	e.active = nil
	e.override = false
	e.pinned = false
	e.inRange = false
	e.loaded = false
	e.finished = false
	e.started = false
	e.distance = 0
}

// newGeneration cancels in-flight commands and invalidates their results.
func (e *Engine) newGeneration() {
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	e.opCtx, e.cancel = context.WithCancel(e.baseCtx)
}

func (e *Engine) submit(cmd audio.Command) {
	gen := e.gen
	e.player.Submit(e.opCtx, cmd, func(err error) {
		e.post(CommandSettled{Gen: gen, Op: cmd.Op, Err: err})
	})
}

func (e *Engine) event(typ model.NarrationEventType, manual bool, summary string) {
	if e.active == nil {
		return
	}
	e.session.AddEvent(&model.NarrationEvent{
		Type:      typ,
		POIID:     e.active.ID,
		Title:     e.active.DisplayName(),
		Summary:   summary,
		Manual:    manual,
		Timestamp: e.now(),
	})
}

func (e *Engine) find(id string) *model.POI {
	for _, p := range e.pois {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (e *Engine) activeID() string {
	if e.active == nil {
		return ""
	}
	return e.active.ID
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	slog.Debug("Narration: state change", "from", e.state, "to", s, "poi", e.activeID())
	e.state = s
}

func (e *Engine) publish() {
	snap := Snapshot{
		SessionID:      e.session.ID(),
		State:          e.state,
		ActivePOI:      e.active,
		DistanceMeters: e.distance,
		ManualOverride: e.override,
		Pinned:         e.pinned,
		Location:       e.location,
		LastResolvedAt: e.resolvedAt,
		Playback:       e.status,
		LastError:      e.lastErr,
	}

	e.mu.Lock()
	changed := !snap.same(&e.snap)
	e.snap = snap
	var observers []func(Snapshot)
	if changed {
		observers = make([]func(Snapshot), 0, len(e.observers))
		for _, fn := range e.observers {
			observers = append(observers, fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

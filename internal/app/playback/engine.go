package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/app/resolver"
	"github.com/osa030/vibestream/internal/domain/song"
)

// Errors
var (
	ErrNoSong = errors.New("no song loaded")
	ErrClosed = errors.New("engine closed")
)

// SourceResolver produces a playable source for a song.
type SourceResolver interface {
	Resolve(ctx context.Context, s song.Song, opts resolver.Options) (resolver.Source, error)
}

// Config holds engine configuration.
type Config struct {
	SwapGuard       time.Duration        // Window in which device pauses after a source swap are ignored
	DurationEpsilon time.Duration        // Minimum duration change propagated to the session
	Quality         resolver.Quality     // Initial quality preference
	OfflineMode     bool                 // Initial offline mode
	IsDownloaded    func(id string) bool // Reports whether a song is stored offline
	Now             func() time.Time     // Clock used by the swap guard
}

// Engine is the playback state machine for one output device.
type Engine struct {
	mu sync.Mutex

	device   Device
	resolver SourceResolver
	config   Config

	session Session
	current *song.Song

	// Source currently assigned to the device. Token 0 means none.
	source    resolver.Source
	hasSource bool

	// Staleness keys
	generation uint64 // bumped by every load or re-resolve
	startSeq   uint64 // bumped by every start request or cancellation

	loadCancel  context.CancelFunc
	startCancel context.CancelFunc
	starting    bool

	// Source-swap guard
	swapping    bool
	swapStarted time.Time

	startedToken uint64 // token for which EventTrackStarted was emitted

	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates a new playback engine.
func NewEngine(device Device, res SourceResolver, config Config) *Engine {
	if config.SwapGuard <= 0 {
		config.SwapGuard = 200 * time.Millisecond
	}
	if config.DurationEpsilon <= 0 {
		config.DurationEpsilon = time.Second
	}
	if config.Quality == "" {
		config.Quality = resolver.QualityHigh
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		device:   device,
		resolver: res,
		config:   config,
		session: Session{
			Quality:     config.Quality,
			OfflineMode: config.OfflineMode,
			State:       StateIdle,
		},
		eventCh: make(chan Event, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the event channel.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Snapshot returns a copy of the playback session.
func (e *Engine) Snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Current returns the current song.
func (e *Engine) Current() (song.Song, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return song.Song{}, false
	}
	return *e.current, true
}

// Load makes s the current song with play intent and starts resolving its
// source. Any in-flight load is superseded.
func (e *Engine) Load(s song.Song) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	e.cancelPendingLocked()
	e.generation++

	// Detach the old source so its late events are dropped as stale.
	e.detachSourceLocked()

	cur := s
	e.current = &cur
	e.session.CurrentSongID = s.ID
	e.session.IsPlaying = true
	e.session.IsBuffering = true
	e.session.Position = 0
	e.session.Duration = s.Duration
	e.session.Err = nil

	zlog.Info().Msgf("playback: loading: song_id=%s name=%s generation=%d", s.ID, s.Name, e.generation)

	e.sendEventLocked(Event{Type: EventTrackChanged})
	e.setStateLocked(StateLoading)
	e.resolveLocked(false)
	return nil
}

// SetPlaying sets the play intent. The device is only touched when the
// intent and the device state disagree.
func (e *Engine) SetPlaying(playing bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		if playing {
			return ErrNoSong
		}
		return nil
	}

	if playing {
		switch e.session.State {
		case StateErrored:
			// No automatic retry, but an explicit play reloads.
			e.session.IsPlaying = true
			e.session.IsBuffering = true
			e.session.Err = nil
			e.cancelPendingLocked()
			e.generation++
			e.setStateLocked(StateLoading)
			e.resolveLocked(false)
			return nil
		case StateEnded:
			if err := e.device.Seek(0); err != nil {
				zlog.Warn().Msgf("playback: rewind failed: song_id=%s error=%v", e.session.CurrentSongID, err)
			}
			e.session.Position = 0
		}
	}

	e.session.IsPlaying = playing
	e.reconcileLocked()
	return nil
}

// Toggle flips the play intent.
func (e *Engine) Toggle() error {
	e.mu.Lock()
	playing := e.session.IsPlaying
	e.mu.Unlock()
	return e.SetPlaying(!playing)
}

// Seek moves the device position without changing the play intent.
func (e *Engine) Seek(pos time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasSource {
		return ErrNoSong
	}
	if pos < 0 {
		pos = 0
	}
	if err := e.device.Seek(pos); err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	e.session.Position = pos
	return nil
}

// SetQuality changes the quality preference and re-resolves the current song.
func (e *Engine) SetQuality(q resolver.Quality) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Quality == q {
		return
	}
	e.session.Quality = q
	zlog.Info().Msgf("playback: quality changed: quality=%s", q)
	e.reresolveLocked()
}

// SetOfflineMode toggles offline mode and re-resolves the current song.
func (e *Engine) SetOfflineMode(offline bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.OfflineMode == offline {
		return
	}
	e.session.OfflineMode = offline
	zlog.Info().Msgf("playback: offline mode changed: offline=%v", offline)
	e.reresolveLocked()
}

// Stop clears the current song and the play intent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.cancelPendingLocked()
	e.generation++

	e.detachSourceLocked()
	e.current = nil

	e.session.CurrentSongID = ""
	e.session.IsPlaying = false
	e.session.IsBuffering = false
	e.session.Position = 0
	e.session.Duration = 0
	e.session.Err = nil
	e.setStateLocked(StateIdle)
}

// Run pumps device events into the state machine until ctx is done or the
// engine is closed.
func (e *Engine) Run(ctx context.Context) error {
	events := e.device.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handleDeviceEvent(ev)
		}
	}
}

// Close stops playback and releases resources.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.stopLocked()
	e.cancel()
	e.closed = true
	close(e.eventCh)
}

// reresolveLocked resolves the current song again under a new generation,
// keeping the device source when the result is the same audio.
func (e *Engine) reresolveLocked() {
	if e.current == nil {
		return
	}
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
	e.generation++
	e.resolveLocked(true)
}

// resolveLocked resolves the current song asynchronously.
// Must be called with lock held.
func (e *Engine) resolveLocked(keepIfEqual bool) {
	gen := e.generation
	s := *e.current
	opts := resolver.Options{
		Quality: e.session.Quality,
		Offline: e.session.OfflineMode,
	}

	ctx, cancel := context.WithCancel(e.ctx)
	e.loadCancel = cancel

	go func() {
		defer cancel()
		if e.config.IsDownloaded != nil {
			opts.Downloaded = e.config.IsDownloaded(s.ID)
		}
		src, err := e.resolver.Resolve(ctx, s, opts)
		e.onResolved(gen, src, err, keepIfEqual)
	}()
}

func (e *Engine) onResolved(gen uint64, src resolver.Source, err error, keepIfEqual bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || gen != e.generation {
		zlog.Debug().Msgf("playback: discarding stale resolution: generation=%d current=%d", gen, e.generation)
		return
	}
	e.loadCancel = nil

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// The previous source must not keep playing for an errored session.
		e.detachSourceLocked()
		if resolver.IsUnavailable(err) {
			zlog.Warn().Msgf("playback: song unavailable: song_id=%s error=%v", e.session.CurrentSongID, err)
			e.failLocked(err, EventUnavailable)
			return
		}
		e.failLocked(errors.Wrap(err, "failed to resolve source"), EventError)
		return
	}

	if keepIfEqual && e.hasSource && src.Equal(e.source) {
		zlog.Debug().Msgf("playback: source unchanged, keeping device source: song_id=%s", src.SongID)
		return
	}

	src.Token = gen
	if e.starting {
		e.cancelStartLocked()
	}
	e.source = src
	e.hasSource = true
	e.swapping = true
	e.swapStarted = e.config.Now()
	e.session.Position = 0

	zlog.Debug().Msgf("playback: assigning source: song_id=%s kind=%s quality=%s token=%d",
		src.SongID, src.Kind, src.Quality, src.Token)

	if err := e.device.SetSource(src); err != nil {
		e.swapping = false
		e.failLocked(errors.Wrap(err, "failed to assign source"), EventError)
		return
	}

	if e.session.State == StateErrored {
		e.session.Err = nil
		e.setStateLocked(StateLoading)
	}

	if e.session.IsPlaying {
		e.startLocked()
		return
	}
	e.session.IsBuffering = false
	e.setStateLocked(StatePaused)
}

// reconcileLocked acts only when play intent and device state disagree.
// Must be called with lock held.
func (e *Engine) reconcileLocked() {
	if !e.hasSource {
		// The pending resolution applies the intent when it completes.
		if !e.session.IsPlaying {
			e.session.IsBuffering = false
		}
		return
	}

	if e.session.IsPlaying {
		if e.device.Paused() && !e.starting {
			e.startLocked()
		}
		return
	}

	if e.starting {
		e.cancelStartLocked()
	}
	if !e.device.Paused() {
		e.device.Stop()
	}
	e.session.IsBuffering = false
	switch e.session.State {
	case StatePlaying, StateBuffering, StateLoading:
		e.setStateLocked(StatePaused)
	}
}

// startLocked asks the device to start and commits the outcome unless the
// request was superseded. Must be called with lock held.
func (e *Engine) startLocked() {
	e.startSeq++
	seq := e.startSeq
	token := e.source.Token

	ctx, cancel := context.WithCancel(e.ctx)
	e.starting = true
	e.startCancel = cancel
	if e.session.State != StatePlaying {
		e.session.IsBuffering = true
	}

	go func() {
		err := e.device.Start(ctx)
		cancel()
		e.onStarted(seq, token, err)
	}()
}

func (e *Engine) onStarted(seq, token uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || seq != e.startSeq || token != e.source.Token {
		if err != nil {
			zlog.Debug().Msgf("playback: superseded start finished: token=%d error=%v", token, err)
		}
		return
	}
	e.starting = false
	e.startCancel = nil

	if err != nil {
		if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
			zlog.Debug().Msgf("playback: start aborted: token=%d", token)
			return
		}
		e.failLocked(errors.Wrap(err, "failed to start playback"), EventError)
		return
	}

	e.swapping = false
	e.session.IsBuffering = false

	if !e.session.IsPlaying {
		e.device.Stop()
		e.setStateLocked(StatePaused)
		return
	}
	e.setStateLocked(StatePlaying)
	e.trackStartedLocked(token)
}

// handleDeviceEvent applies a device notification to the session.
func (e *Engine) handleDeviceEvent(ev DeviceEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || !e.hasSource || ev.Token != e.source.Token {
		return
	}

	switch ev.Type {
	case DeviceEventPlaying:
		e.swapping = false
		e.session.IsBuffering = false
		if !e.session.IsPlaying {
			e.device.Stop()
			return
		}
		e.setStateLocked(StatePlaying)
		e.trackStartedLocked(ev.Token)

	case DeviceEventPlay:
		if !e.session.IsPlaying {
			e.session.IsPlaying = true
			e.sendEventLocked(Event{Type: EventStateChanged})
		}

	case DeviceEventPause:
		if ev.Seeking {
			return
		}
		if e.swapActiveLocked() {
			zlog.Debug().Msgf("playback: pause suppressed during source swap: token=%d", ev.Token)
			return
		}
		e.swapping = false
		if e.starting {
			e.cancelStartLocked()
		}
		e.session.IsPlaying = false
		e.session.IsBuffering = false
		switch e.session.State {
		case StatePlaying, StateBuffering, StateLoading:
			e.setStateLocked(StatePaused)
		default:
			e.sendEventLocked(Event{Type: EventStateChanged})
		}

	case DeviceEventWaiting:
		e.session.IsBuffering = true
		if e.session.State == StatePlaying {
			e.setStateLocked(StateBuffering)
		}

	case DeviceEventCanPlay:
		e.swapping = false
		e.session.IsBuffering = false
		if e.session.State == StateBuffering {
			e.setStateLocked(StatePlaying)
		}

	case DeviceEventTimeUpdate:
		e.session.Position = ev.Position
		if ev.Duration > 0 && absDuration(ev.Duration-e.session.Duration) > e.config.DurationEpsilon {
			e.session.Duration = ev.Duration
			e.sendEventLocked(Event{Type: EventDurationChanged})
		}

	case DeviceEventEnded:
		e.swapping = false
		e.session.IsBuffering = false
		e.session.Position = e.session.Duration
		zlog.Info().Msgf("playback: song ended: song_id=%s", e.session.CurrentSongID)
		e.setStateLocked(StateEnded)
		e.sendEventLocked(Event{Type: EventEnded})

	case DeviceEventError:
		err := ev.Err
		if err == nil {
			err = errors.New("device error")
		}
		e.failLocked(err, EventError)
	}
}

// swapActiveLocked reports whether the source-swap guard is held.
func (e *Engine) swapActiveLocked() bool {
	if !e.swapping {
		return false
	}
	if e.config.Now().Sub(e.swapStarted) >= e.config.SwapGuard {
		e.swapping = false
		return false
	}
	return true
}

func (e *Engine) trackStartedLocked(token uint64) {
	if e.startedToken == token {
		return
	}
	e.startedToken = token
	zlog.Info().Msgf("playback: song started: song_id=%s", e.session.CurrentSongID)
	e.sendEventLocked(Event{Type: EventTrackStarted})
}

// failLocked moves to Errored, clearing intent and buffering. The device is
// halted so intent and output agree.
func (e *Engine) failLocked(err error, typ EventType) {
	if e.starting {
		e.cancelStartLocked()
	}
	if e.hasSource && !e.device.Paused() {
		e.device.Stop()
	}
	zlog.Error().Msgf("playback: %s: song_id=%s error=%v", typ, e.session.CurrentSongID, err)
	e.session.IsPlaying = false
	e.session.IsBuffering = false
	e.session.Err = err
	e.setStateLocked(StateErrored)
	e.sendEventLocked(Event{Type: typ, Err: err})
}

// detachSourceLocked halts the device and forgets its source, so later
// events carrying the old token are dropped.
func (e *Engine) detachSourceLocked() {
	if e.hasSource && !e.device.Paused() {
		e.device.Stop()
	}
	e.source = resolver.Source{}
	e.hasSource = false
	e.swapping = false
}

func (e *Engine) cancelPendingLocked() {
	if e.loadCancel != nil {
		e.loadCancel()
		e.loadCancel = nil
	}
	if e.starting {
		e.cancelStartLocked()
	}
}

// cancelStartLocked abandons a pending start. Its outcome is discarded.
func (e *Engine) cancelStartLocked() {
	e.startSeq++
	if e.startCancel != nil {
		e.startCancel()
		e.startCancel = nil
	}
	e.starting = false
}

func (e *Engine) setStateLocked(s State) {
	if e.session.State == s {
		return
	}
	zlog.Debug().Msgf("playback: state changed: from=%s to=%s", e.session.State, s)
	e.session.State = s
	e.sendEventLocked(Event{Type: EventStateChanged})
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (e *Engine) sendEventLocked(ev Event) {
	if e.closed {
		return
	}
	if e.current != nil {
		cur := *e.current
		ev.Song = &cur
	}
	ev.Session = e.session
	select {
	case e.eventCh <- ev:
	case <-e.ctx.Done():
	default:
		zlog.Warn().Msgf("playback: event channel full, dropping event: type=%s", ev.Type)
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Package session provides the playback session manager.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/app/download"
	"github.com/osa030/vibestream/internal/app/notification"
	"github.com/osa030/vibestream/internal/app/playback"
	"github.com/osa030/vibestream/internal/app/queue"
	"github.com/osa030/vibestream/internal/app/resolver"
	"github.com/osa030/vibestream/internal/app/session/state"
	"github.com/osa030/vibestream/internal/domain/song"
	"github.com/osa030/vibestream/internal/infra/config"
)

// BlobStore is the offline copy store shared by playback and downloads.
type BlobStore interface {
	resolver.BlobStore
	download.BlobStore
	IDs(ctx context.Context) ([]string, error)
}

// VolumeDevice is implemented by output devices with a volume control.
type VolumeDevice interface {
	SetVolume(v float64) error
}

// Deps holds the collaborators of a session.
type Deps struct {
	Device       playback.Device
	Blobs        BlobStore
	Streams      resolver.StreamResolver // nil disables lazy resolution
	Continuation queue.Continuation      // nil disables queue continuation
	State        *state.Manager
	Sink         download.FileSink     // nil keeps only offline copies
	Notification *notification.Manager // nil creates a private manager
	HTTPClient   *http.Client
	Offline      bool // start in offline mode
}

// Status is a snapshot of the whole session.
type Status struct {
	Playback playback.Session
	Current  *song.Song
	Queue    []song.Song
	Index    int
	Shuffle  bool
	Download *download.Task
	Notice   *state.Notice
}

// Manager wires the playback engine, queue, downloads and user state.
type Manager struct {
	mu sync.Mutex

	config *config.Config

	// Components
	engine       *playback.Engine
	queue        *queue.Manager
	downloads    *download.Manager
	stateMgr     *state.Manager
	notification *notification.Manager
	device       playback.Device
	blobs        BlobStore

	lastStatus notification.PlaybackStatus
	started    bool
	observe    func(playback.Event) // test hook, called for every engine event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if deps.Device == nil {
		return nil, errors.New("output device is required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if deps.State == nil {
		deps.State = state.New(nil, nil, state.Config{})
	}
	if deps.Notification == nil {
		deps.Notification = notification.NewManager()
	}

	ctx, cancel := context.WithCancel(context.Background())

	res := resolver.New(deps.Blobs, deps.Streams, resolver.Config{
		StreamTimeout: config.Millis(cfg.Playback.ResolveTimeoutMs),
	})
	engine := playback.NewEngine(deps.Device, res, playback.Config{
		SwapGuard:       config.Millis(cfg.Playback.SwapGuardMs),
		DurationEpsilon: config.Millis(cfg.Playback.DurationEpsilonMs),
		Quality:         resolver.ParseQuality(cfg.Playback.Quality),
		OfflineMode:     deps.Offline,
		IsDownloaded:    deps.State.IsDownloaded,
	})

	m := &Manager{
		config: cfg,
		engine: engine,
		queue: queue.NewManager(engine, deps.Continuation, queue.Config{
			ContinuationSize: cfg.Queue.ContinuationSize,
			FetchTimeout:     config.Millis(cfg.Queue.FetchTimeoutMs),
			Shuffle:          cfg.Queue.Shuffle,
		}),
		downloads: download.NewManager(deps.Blobs, deps.Sink, download.Config{
			HTTPClient:       deps.HTTPClient,
			CompletionLinger: config.Millis(cfg.Download.LingerMs),
			Quality:          resolver.ParseQuality(cfg.Download.Quality),
		}),
		stateMgr:     deps.State,
		notification: deps.Notification,
		device:       deps.Device,
		blobs:        deps.Blobs,
		lastStatus:   notification.StatusStopped,
		ctx:          ctx,
		cancel:       cancel,
	}

	m.downloads.SetDownloadedCallback(m.onDownloaded)
	m.downloads.SetUpdateCallback(m.onDownloadUpdate)

	return m, nil
}

// Start reconciles the offline index and starts the event loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	// The blob store is the source of truth for what is downloaded.
	ids, err := m.blobs.IDs(ctx)
	if err != nil {
		zlog.Warn().Msgf("session: failed to list offline copies: error=%v", err)
	} else {
		m.stateMgr.SetDownloaded(ids)
		zlog.Info().Msgf("session: offline copies reconciled: count=%d", len(ids))
	}

	m.applyVolume(m.stateMgr.Volume())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.engine.Run(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error().Msgf("session: engine stopped: error=%v", err)
		}
	}()

	m.wg.Add(1)
	go m.playbackLoop()

	zlog.Info().Msg("session: started")
	return nil
}

// PlaySong starts a new playback context with q as the queue.
func (m *Manager) PlaySong(s song.Song, q []song.Song) error {
	if err := m.queue.Replace(q, s); err != nil {
		return errors.Wrap(err, "failed to play song")
	}
	return nil
}

// TogglePlay flips the play intent.
func (m *Manager) TogglePlay() error {
	return m.engine.Toggle()
}

// SetPlaying sets the play intent.
func (m *Manager) SetPlaying(playing bool) error {
	return m.engine.SetPlaying(playing)
}

// Next moves to the following queue entry, fetching a continuation at the
// end of the queue.
func (m *Manager) Next(ctx context.Context) error {
	return m.queue.Advance(ctx)
}

// Previous moves to the preceding queue entry.
func (m *Manager) Previous() error {
	return m.queue.Retreat()
}

// Seek moves the playback position.
func (m *Manager) Seek(pos time.Duration) error {
	return m.engine.Seek(pos)
}

// AddToQueue appends songs not already queued and returns how many were added.
func (m *Manager) AddToQueue(songs ...song.Song) int {
	return m.queue.Append(songs...)
}

// ToggleShuffle flips shuffle and returns the new value.
func (m *Manager) ToggleShuffle() bool {
	return m.queue.ToggleShuffle()
}

// SetShuffle sets shuffle.
func (m *Manager) SetShuffle(shuffle bool) {
	m.queue.SetShuffle(shuffle)
}

// Shuffle reports whether shuffle is on.
func (m *Manager) Shuffle() bool {
	return m.queue.Shuffle()
}

// Position returns the playback position of the current song.
func (m *Manager) Position() time.Duration {
	return m.engine.Snapshot().Position
}

// SetQuality changes the streaming quality preference.
func (m *Manager) SetQuality(q resolver.Quality) {
	m.engine.SetQuality(q)
}

// SetOfflineMode toggles offline mode.
func (m *Manager) SetOfflineMode(offline bool) {
	m.engine.SetOfflineMode(offline)
}

// SetVolume stores the volume and applies it to the device when supported.
func (m *Manager) SetVolume(v float64) {
	m.stateMgr.SetVolume(v)
	m.applyVolume(m.stateMgr.Volume())
}

// Volume returns the stored volume.
func (m *Manager) Volume() float64 {
	return m.stateMgr.Volume()
}

// StartDownload downloads s at the configured download quality.
func (m *Manager) StartDownload(ctx context.Context, s song.Song) (download.Task, error) {
	return m.downloads.QuickDownload(ctx, s)
}

// RemoveDownload deletes the offline copy of songID.
func (m *Manager) RemoveDownload(ctx context.Context, songID string) error {
	return m.downloads.Remove(ctx, songID)
}

// WaitDownloads blocks until running downloads finish.
func (m *Manager) WaitDownloads() {
	m.downloads.Wait()
}

// ToggleLike flips the like state of s.
func (m *Manager) ToggleLike(s song.Song) bool {
	return m.stateMgr.ToggleLike(s)
}

// State returns the user state.
func (m *Manager) State() *state.Manager {
	return m.stateMgr
}

// Notifications returns the now-playing notification manager.
func (m *Manager) Notifications() *notification.Manager {
	return m.notification
}

// Status returns the current session status.
func (m *Manager) Status() Status {
	st := Status{
		Playback: m.engine.Snapshot(),
		Queue:    m.queue.Songs(),
		Index:    m.queue.Index(),
		Shuffle:  m.queue.Shuffle(),
	}
	if cur, ok := m.engine.Current(); ok {
		st.Current = &cur
	}
	if task, ok := m.downloads.Active(); ok {
		st.Download = &task
	}
	if n, ok := m.stateMgr.LastNotice(); ok {
		st.Notice = &n
	}
	return st
}

// Close stops playback and flushes pending state.
func (m *Manager) Close() {
	m.cancel()
	m.engine.Close()
	m.wg.Wait()
	m.downloads.Close()
	m.notification.Close()
	m.stateMgr.Close()
	zlog.Info().Msg("session: closed")
}

// playbackLoop handles playback events. Each run holds one m.wg slot.
func (m *Manager) playbackLoop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: playback loop panicked: %v", r)
			if m.ctx.Err() == nil {
				// Restart loop to keep the session responsive
				zlog.Info().Msg("session: restarting playback loop")
				m.wg.Add(1)
				go m.playbackLoop()
			}
		}
		m.wg.Done()
	}()

	events := m.engine.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.handlePlaybackEvent(event)
		}
	}
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Msgf("session: playback event: type=%s state=%s", event.Type, event.Session.State)

	m.mu.Lock()
	observe := m.observe
	m.mu.Unlock()
	if observe != nil {
		observe(event)
	}

	switch event.Type {
	case playback.EventTrackChanged:
		m.onTrackChanged(event)

	case playback.EventStateChanged:
		m.onStateChanged(event)

	case playback.EventEnded:
		if m.ctx.Err() != nil {
			return
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.advance()
		}()

	case playback.EventUnavailable:
		m.stateMgr.PostNotice(state.NoticeUnavailable, m.config.Messages.Unavailable)

	case playback.EventError:
		m.stateMgr.PostNotice(state.NoticePlaybackError, m.config.Messages.PlaybackError)
	}
}

func (m *Manager) onTrackChanged(event playback.Event) {
	if event.Song == nil {
		return
	}
	s := *event.Song
	m.stateMgr.AppendHistory(s)

	status := statusOf(event.Session)
	m.mu.Lock()
	m.lastStatus = status
	m.mu.Unlock()

	np := notification.NewNowPlaying(s, status)
	zlog.Info().Msgf("session: now playing: song_id=%s name=%s", s.ID, s.Name)
	m.notification.Broadcast(np)
}

func (m *Manager) onStateChanged(event playback.Event) {
	status := statusOf(event.Session)

	m.mu.Lock()
	if status == m.lastStatus {
		m.mu.Unlock()
		return
	}
	m.lastStatus = status
	m.mu.Unlock()

	var np notification.NowPlaying
	if event.Song != nil {
		np = notification.NewNowPlaying(*event.Song, status)
	} else {
		np = notification.NowPlaying{Status: status}
	}
	np.Position = event.Session.Position
	if event.Session.Duration > 0 {
		np.Duration = event.Session.Duration
	}
	m.notification.Broadcast(np)
}

func (m *Manager) advance() {
	if m.ctx.Err() != nil {
		return
	}
	if err := m.queue.Advance(m.ctx); err != nil {
		if errors.Is(err, queue.ErrEmpty) {
			return
		}
		zlog.Warn().Msgf("session: failed to advance queue: error=%v", err)
	}
}

func (m *Manager) onDownloaded(songID string, downloaded bool) {
	if downloaded {
		m.stateMgr.MarkDownloaded(songID)
		return
	}
	m.stateMgr.UnmarkDownloaded(songID)
}

func (m *Manager) onDownloadUpdate(task download.Task) {
	if task.Status != download.StatusFailed {
		return
	}
	msg := m.config.Messages.DownloadFailed
	if task.Song.Name != "" {
		msg += ": " + task.Song.Name
	}
	m.stateMgr.PostNotice(state.NoticeDownloadFailed, msg)
}

func (m *Manager) applyVolume(v float64) {
	vd, ok := m.device.(VolumeDevice)
	if !ok {
		return
	}
	if err := vd.SetVolume(v); err != nil {
		zlog.Warn().Msgf("session: failed to set volume: volume=%.2f error=%v", v, err)
	}
}

// statusOf maps the engine session to the coarse media-session status.
func statusOf(s playback.Session) notification.PlaybackStatus {
	switch s.State {
	case playback.StatePlaying, playback.StateBuffering:
		return notification.StatusPlaying
	case playback.StateLoading:
		if s.IsPlaying {
			return notification.StatusPlaying
		}
		return notification.StatusPaused
	case playback.StatePaused:
		return notification.StatusPaused
	default:
		return notification.StatusStopped
	}
}

package state

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/vibestream/internal/domain/playlist"
	"github.com/osa030/vibestream/internal/domain/song"
	"github.com/osa030/vibestream/internal/domain/user"
)

// LocalDocumentKey is the local store key of the state document.
const LocalDocumentKey = "session_state"

var (
	ErrPlaylistNotFound = errors.New("playlist not found")
)

// LocalStore persists documents on this device.
type LocalStore interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

// RemoteStore mirrors the private data document of a logged-in user.
type RemoteStore interface {
	Write(ctx context.Context, name string, v any) error
}

// Config represents state manager configuration.
type Config struct {
	SyncDebounce time.Duration // coalescing window for remote pushes (default 1s)
	PushTimeout  time.Duration // timeout of one remote write (default 15s)
	HistoryLimit int           // default 20
	Now          func() time.Time
	NewID        func() string
}

// Manager manages the user state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	local  LocalStore
	remote RemoteStore
	config Config

	profile    *user.Profile
	private    user.PrivateData
	downloaded []string
	volume     float64

	notice   *Notice
	onNotice func(Notice)

	pushTimer *time.Timer
	pending   bool
	pushWG    sync.WaitGroup
	pushMu    sync.Mutex // serializes remote writes in snapshot order
}

// New creates a new state manager. Either store may be nil.
func New(local LocalStore, remote RemoteStore, config Config) *Manager {
	if config.SyncDebounce <= 0 {
		config.SyncDebounce = time.Second
	}
	if config.PushTimeout <= 0 {
		config.PushTimeout = 15 * time.Second
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 20
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	return &Manager{
		local:  local,
		remote: remote,
		config: config,
		private: user.PrivateData{
			Playlists:       []playlist.Playlist{},
			LikedSongs:      []song.Song{},
			History:         []song.Song{},
			FavoriteArtists: []string{},
		},
		downloaded: []string{},
		volume:     1,
	}
}

// Load restores the state saved on this device. A missing document leaves
// the anonymous defaults.
func (m *Manager) Load(ctx context.Context) error {
	if m.local == nil {
		return nil
	}

	var doc localDocument
	found, err := m.local.Load(ctx, LocalDocumentKey, &doc)
	if err != nil {
		return errors.Wrap(err, "failed to load local state")
	}
	if !found {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = doc.User
	m.private = normalizePrivate(doc.Private)
	m.downloaded = lo.Uniq(lo.Compact(doc.DownloadedIDs))
	m.volume = clampVolume(doc.Volume)
	zlog.Debug().Msgf("state: loaded local state: liked=%d playlists=%d downloaded=%d", len(m.private.LikedSongs), len(m.private.Playlists), len(m.downloaded))
	return nil
}

// Hydrate replaces the private data with the remote copy of profile and
// enables remote sync.
func (m *Manager) Hydrate(profile user.Profile, data user.PrivateData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopTimerLocked()
	m.pending = false
	p := profile
	m.profile = &p
	m.private = normalizePrivate(data)
	m.saveLocalLocked()
	zlog.Info().Msgf("state: hydrated: email=%s liked=%d playlists=%d", profile.Email, len(m.private.LikedSongs), len(m.private.Playlists))
}

// Logout pushes pending changes, then drops the user and their private data.
// Downloads and volume belong to the device and are kept.
func (m *Manager) Logout(ctx context.Context) {
	m.Flush(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = nil
	m.private = normalizePrivate(user.PrivateData{})
	m.saveLocalLocked()
}

// User returns the logged-in profile.
func (m *Manager) User() (user.Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return user.Profile{}, false
	}
	return *m.profile, true
}

// ToggleLike likes or unlikes s and returns whether it is now liked.
func (m *Manager) ToggleLike(s song.Song) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	liked := m.private.LikedSongs
	if idx := slices.IndexFunc(liked, func(l song.Song) bool { return l.ID == s.ID }); idx >= 0 {
		m.private.LikedSongs = slices.Delete(slices.Clone(liked), idx, idx+1)
		m.changedLocked()
		return false
	}
	m.private.LikedSongs = append([]song.Song{s}, liked...)
	m.changedLocked()
	return true
}

// IsLiked reports whether the song is liked.
func (m *Manager) IsLiked(songID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.ContainsFunc(m.private.LikedSongs, func(s song.Song) bool { return s.ID == songID })
}

// LikedSongs returns liked songs, most recent first.
func (m *Manager) LikedSongs() []song.Song {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.private.LikedSongs)
}

// CreatePlaylist creates an empty playlist.
func (m *Manager) CreatePlaylist(title, description string) (playlist.Playlist, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return playlist.Playlist{}, errors.New("playlist title is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	creator := ""
	if m.profile != nil {
		creator = m.profile.Name
	}
	p := playlist.New(m.config.NewID(), title, description, creator, m.config.Now())
	m.private.Playlists = append(slices.Clone(m.private.Playlists), p)
	m.changedLocked()
	return clonePlaylist(p), nil
}

// AddSongToPlaylist appends s to the playlist. Adding a song twice is a no-op.
func (m *Manager) AddSongToPlaylist(playlistID string, s song.Song) error {
	return m.updatePlaylist(playlistID, func(p *playlist.Playlist) bool {
		if p.Contains(s.ID) {
			return false
		}
		p.Songs = append(slices.Clone(p.Songs), s)
		return true
	})
}

// RemoveSongFromPlaylist removes a song from the playlist.
func (m *Manager) RemoveSongFromPlaylist(playlistID, songID string) error {
	return m.updatePlaylist(playlistID, func(p *playlist.Playlist) bool {
		before := len(p.Songs)
		p.Songs = lo.Reject(p.Songs, func(s song.Song, _ int) bool { return s.ID == songID })
		return len(p.Songs) != before
	})
}

// RemovePlaylist deletes a playlist.
func (m *Manager) RemovePlaylist(playlistID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := slices.IndexFunc(m.private.Playlists, func(p playlist.Playlist) bool { return p.ID == playlistID })
	if idx < 0 {
		return errors.Wrapf(ErrPlaylistNotFound, "id %s", playlistID)
	}
	m.private.Playlists = slices.Delete(slices.Clone(m.private.Playlists), idx, idx+1)
	m.changedLocked()
	return nil
}

// Playlists returns all playlists.
func (m *Manager) Playlists() []playlist.Playlist {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Map(m.private.Playlists, func(p playlist.Playlist, _ int) playlist.Playlist {
		return clonePlaylist(p)
	})
}

// Playlist returns a playlist by ID.
func (m *Manager) Playlist(playlistID string) (playlist.Playlist, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := lo.Find(m.private.Playlists, func(p playlist.Playlist) bool { return p.ID == playlistID })
	if !ok {
		return playlist.Playlist{}, false
	}
	return clonePlaylist(p), true
}

// AppendHistory records s as the most recently played song.
func (m *Manager) AppendHistory(s song.Song) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := lo.Reject(m.private.History, func(h song.Song, _ int) bool { return h.ID == s.ID })
	history = append([]song.Song{s}, history...)
	if len(history) > m.config.HistoryLimit {
		history = history[:m.config.HistoryLimit]
	}
	m.private.History = history
	m.changedLocked()
}

// History returns played songs, most recent first.
func (m *Manager) History() []song.Song {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.private.History)
}

// ToggleFavoriteArtist adds or removes an artist and returns whether it is
// now a favorite.
func (m *Manager) ToggleFavoriteArtist(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slices.Contains(m.private.FavoriteArtists, name) {
		m.private.FavoriteArtists = lo.Without(m.private.FavoriteArtists, name)
		m.changedLocked()
		return false
	}
	m.private.FavoriteArtists = append(slices.Clone(m.private.FavoriteArtists), name)
	m.changedLocked()
	return true
}

// FavoriteArtists returns favorite artist names.
func (m *Manager) FavoriteArtists() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.private.FavoriteArtists)
}

// MarkDownloaded records that an offline copy of songID exists.
func (m *Manager) MarkDownloaded(songID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Contains(m.downloaded, songID) {
		return
	}
	m.downloaded = append(slices.Clone(m.downloaded), songID)
	m.saveLocalLocked()
}

// UnmarkDownloaded forgets the offline copy of songID.
func (m *Manager) UnmarkDownloaded(songID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.downloaded, songID) {
		return
	}
	m.downloaded = lo.Without(m.downloaded, songID)
	m.saveLocalLocked()
}

// SetDownloaded reconciles the downloaded set with the blob store contents.
func (m *Manager) SetDownloaded(songIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloaded = lo.Uniq(lo.Compact(songIDs))
	m.saveLocalLocked()
}

// IsDownloaded reports whether songID has an offline copy.
func (m *Manager) IsDownloaded(songID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.downloaded, songID)
}

// DownloadedIDs returns the ids with an offline copy.
func (m *Manager) DownloadedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.downloaded)
}

// SetVolume sets the output volume, clamped to [0, 1].
func (m *Manager) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = clampVolume(v)
	m.saveLocalLocked()
}

// Volume returns the output volume.
func (m *Manager) Volume() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volume
}

// SetNoticeCallback sets the callback invoked for every posted notice.
func (m *Manager) SetNoticeCallback(callback func(Notice)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNotice = callback
}

// PostNotice records a user-visible message.
func (m *Manager) PostNotice(kind NoticeKind, message string) {
	m.mu.Lock()
	n := Notice{Kind: kind, Message: message, At: m.config.Now()}
	m.notice = &n
	cb := m.onNotice
	m.mu.Unlock()

	zlog.Info().Msgf("state: notice: kind=%s message=%q", kind, message)
	if cb != nil {
		cb(n)
	}
}

// LastNotice returns the most recent notice.
func (m *Manager) LastNotice() (Notice, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.notice == nil {
		return Notice{}, false
	}
	return *m.notice, true
}

// Snapshot returns a copy of the whole state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var profile *user.Profile
	if m.profile != nil {
		p := *m.profile
		profile = &p
	}
	return Snapshot{
		User:       profile,
		LikedSongs: slices.Clone(m.private.LikedSongs),
		Playlists: lo.Map(m.private.Playlists, func(p playlist.Playlist, _ int) playlist.Playlist {
			return clonePlaylist(p)
		}),
		History:         slices.Clone(m.private.History),
		FavoriteArtists: slices.Clone(m.private.FavoriteArtists),
		DownloadedIDs:   slices.Clone(m.downloaded),
		Volume:          m.volume,
	}
}

// Flush pushes a pending remote write now and waits for in-flight pushes.
func (m *Manager) Flush(ctx context.Context) {
	m.mu.Lock()
	m.stopTimerLocked()
	pending := m.pending
	m.mu.Unlock()

	if pending {
		m.push(ctx)
	}
	m.pushWG.Wait()
}

// Close flushes pending writes.
func (m *Manager) Close() {
	m.Flush(context.Background())
}

func (m *Manager) updatePlaylist(playlistID string, fn func(p *playlist.Playlist) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := slices.IndexFunc(m.private.Playlists, func(p playlist.Playlist) bool { return p.ID == playlistID })
	if idx < 0 {
		return errors.Wrapf(ErrPlaylistNotFound, "id %s", playlistID)
	}

	playlists := slices.Clone(m.private.Playlists)
	if !fn(&playlists[idx]) {
		return nil
	}
	m.private.Playlists = playlists
	m.changedLocked()
	return nil
}

// changedLocked persists private data locally and schedules a remote push.
func (m *Manager) changedLocked() {
	m.private.UpdatedAt = m.config.Now().UnixMilli()
	m.saveLocalLocked()
	m.schedulePushLocked()
}

func (m *Manager) saveLocalLocked() {
	if m.local == nil {
		return
	}
	doc := localDocument{
		User:          m.profile,
		Private:       m.private,
		DownloadedIDs: m.downloaded,
		Volume:        m.volume,
	}
	if err := m.local.Save(context.Background(), LocalDocumentKey, doc); err != nil {
		zlog.Error().Msgf("state: failed to save local state: error=%v", err)
	}
}

func (m *Manager) schedulePushLocked() {
	if m.remote == nil || m.profile == nil {
		return
	}
	m.pending = true
	m.stopTimerLocked()
	// Counted here, under mu, so Flush cannot miss a timer that already fired.
	m.pushWG.Add(1)
	m.pushTimer = time.AfterFunc(m.config.SyncDebounce, func() {
		defer m.pushWG.Done()
		m.push(context.Background())
	})
}

// push writes the latest private data snapshot. Failures are logged only.
func (m *Manager) push(ctx context.Context) {
	m.pushMu.Lock()
	defer m.pushMu.Unlock()

	m.mu.Lock()
	if !m.pending || m.profile == nil || m.remote == nil {
		m.mu.Unlock()
		return
	}
	m.pending = false
	name := user.DocumentName(m.profile.Email)
	data := m.private
	m.mu.Unlock()

	pushCtx, cancel := context.WithTimeout(ctx, m.config.PushTimeout)
	defer cancel()

	if err := m.remote.Write(pushCtx, name, data); err != nil {
		zlog.Error().Msgf("state: remote sync failed: document=%s error=%v", name, err)
		return
	}
	zlog.Debug().Msgf("state: remote sync done: document=%s", name)
}

// stopTimerLocked cancels the scheduled push. A timer stopped before firing
// releases its wait group slot.
func (m *Manager) stopTimerLocked() {
	if m.pushTimer != nil {
		if m.pushTimer.Stop() {
			m.pushWG.Done()
		}
		m.pushTimer = nil
	}
}

func normalizePrivate(d user.PrivateData) user.PrivateData {
	if d.Playlists == nil {
		d.Playlists = []playlist.Playlist{}
	}
	if d.LikedSongs == nil {
		d.LikedSongs = []song.Song{}
	}
	if d.History == nil {
		d.History = []song.Song{}
	}
	if d.FavoriteArtists == nil {
		d.FavoriteArtists = []string{}
	}
	return d
}

func clonePlaylist(p playlist.Playlist) playlist.Playlist {
	p.Songs = slices.Clone(p.Songs)
	return p
}

func clampVolume(v float64) float64 {
	return min(max(v, 0), 1)
}

//go:build linux

package mpris

import (
	"context"
	"sync"
	"time"

	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/app/notification"
)

// Adapter connects the player to MPRIS over D-Bus. It is a now-playing
// sink: clients read the metadata of the last update.
type Adapter struct {
	server *server.Server
	player *playerAdapter
}

// New creates and starts a new MPRIS adapter.
func New(ctrl Controller) (*Adapter, error) {
	a := &Adapter{
		player: &playerAdapter{ctrl: ctrl},
	}
	a.server = server.NewServer("vibestream", &rootAdapter{}, a.player)

	go func() {
		if err := a.server.Listen(); err != nil {
			zlog.Warn().Msgf("mpris: listen failed: error=%v", err)
		}
	}()

	return a, nil
}

// Update records the now-playing metadata.
func (a *Adapter) Update(_ context.Context, np notification.NowPlaying) error {
	a.player.set(np)
	return nil
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error { return nil }

func (r *rootAdapter) Quit() error { return nil }

func (r *rootAdapter) CanQuit() (bool, error) { return false, nil }

func (r *rootAdapter) CanRaise() (bool, error) { return false, nil }

func (r *rootAdapter) HasTrackList() (bool, error) { return false, nil }

func (r *rootAdapter) Identity() (string, error) { return "Vibestream", nil }

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"https"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/mp3"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter and the shuffle
// extension.
type playerAdapter struct {
	ctrl Controller

	mu      sync.Mutex
	current notification.NowPlaying
}

func (p *playerAdapter) set(np notification.NowPlaying) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// State-only updates keep the last known metadata.
	if np.SongID == "" {
		p.current.Status = np.Status
		return
	}
	p.current = np
}

func (p *playerAdapter) nowPlaying() notification.NowPlaying {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *playerAdapter) Next() error {
	return p.ctrl.Next(context.Background())
}

func (p *playerAdapter) Previous() error {
	return p.ctrl.Previous()
}

func (p *playerAdapter) Pause() error {
	return p.ctrl.SetPlaying(false)
}

func (p *playerAdapter) PlayPause() error {
	return p.ctrl.TogglePlay()
}

func (p *playerAdapter) Stop() error {
	return p.ctrl.SetPlaying(false)
}

func (p *playerAdapter) Play() error {
	return p.ctrl.SetPlaying(true)
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	pos := p.ctrl.Position() + time.Duration(offset)*time.Microsecond
	if pos < 0 {
		pos = 0
	}
	return p.ctrl.Seek(pos)
}

func (p *playerAdapter) SetPosition(_ string, position types.Microseconds) error {
	return p.ctrl.Seek(time.Duration(position) * time.Microsecond)
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil // Not supported
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	return toPlaybackStatus(p.nowPlaying().Status), nil
}

func (p *playerAdapter) Rate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetRate(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	return toMetadata(p.nowPlaying()), nil
}

func (p *playerAdapter) Volume() (float64, error) {
	return p.ctrl.Volume(), nil
}

func (p *playerAdapter) SetVolume(v float64) error {
	p.ctrl.SetVolume(v)
	return nil
}

func (p *playerAdapter) Position() (int64, error) {
	return p.ctrl.Position().Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) CanGoNext() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.nowPlaying().SongID != "", nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

// Shuffle implements OrgMprisMediaPlayer2PlayerAdapterShuffle.
func (p *playerAdapter) Shuffle() (bool, error) {
	return p.ctrl.Shuffle(), nil
}

// SetShuffle implements OrgMprisMediaPlayer2PlayerAdapterShuffle.
func (p *playerAdapter) SetShuffle(shuffle bool) error {
	p.ctrl.SetShuffle(shuffle)
	return nil
}

// Package queue owns the play queue and decides what plays next.
package queue

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/vibestream/internal/app/continuation"
	"github.com/osa030/vibestream/internal/domain/song"
)

var (
	ErrEmpty = errors.New("queue is empty")
)

// Player is the part of the playback engine the queue drives.
type Player interface {
	Load(s song.Song) error
	SetPlaying(playing bool) error
}

// Continuation supplies songs to extend a queue that ran out.
type Continuation interface {
	GetCandidates(ctx context.Context, count int, seed song.Song, queue []song.Song) ([]continuation.CandidateWithSource, error)
}

// Config represents queue manager configuration.
type Config struct {
	ContinuationSize int           // songs appended per continuation fetch (default 5)
	FetchTimeout     time.Duration // continuation fetch timeout (default 10s)
	Shuffle          bool
	Rand             func(n int) int // defaults to rand.IntN
}

// Manager manages the play queue.
type Manager struct {
	mu sync.Mutex

	player       Player
	continuation Continuation
	config       Config

	songs   []song.Song
	index   int // -1 when nothing is current
	shuffle bool

	// bumped by Replace; continuation results from an older queue are dropped
	generation uint64
	fetching   bool
}

// NewManager creates a new queue manager. continuation may be nil.
func NewManager(player Player, cont Continuation, config Config) *Manager {
	if config.ContinuationSize <= 0 {
		config.ContinuationSize = 5
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 10 * time.Second
	}
	if config.Rand == nil {
		config.Rand = rand.IntN
	}
	return &Manager{
		player:       player,
		continuation: cont,
		config:       config,
		index:        -1,
		shuffle:      config.Shuffle,
	}
}

// Replace starts a new playback context: the queue becomes songs and start
// is loaded. A start song missing from songs is prepended.
func (m *Manager) Replace(songs []song.Song, start song.Song) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := slices.Clone(songs)
	idx := slices.IndexFunc(queue, func(s song.Song) bool { return s.ID == start.ID })
	if idx < 0 {
		queue = append([]song.Song{start}, queue...)
		idx = 0
	}

	m.songs = queue
	m.index = idx
	m.generation++
	m.fetching = false

	zlog.Debug().Msgf("queue: replaced: size=%d index=%d song_id=%s", len(queue), idx, start.ID)
	return m.player.Load(queue[idx])
}

// Append adds songs to the end of the queue. Songs already queued are skipped.
func (m *Manager) Append(songs ...song.Song) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(songs, len(songs))
}

func (m *Manager) appendLocked(songs []song.Song, limit int) int {
	existing := lo.SliceToMap(m.songs, func(s song.Song) (string, bool) {
		return s.ID, true
	})

	added := 0
	for _, s := range songs {
		if added >= limit {
			break
		}
		if s.ID == "" || existing[s.ID] {
			continue
		}
		existing[s.ID] = true
		m.songs = append(m.songs, s)
		added++
	}
	return added
}

// Advance moves to the next song. When the last song is current and shuffle
// is off, one continuation fetch is attempted; if nothing new arrives the
// playing intent is cleared.
func (m *Manager) Advance(ctx context.Context) error {
	m.mu.Lock()
	if len(m.songs) == 0 {
		m.mu.Unlock()
		return ErrEmpty
	}
	if next, ok := m.nextIndexLocked(); ok {
		err := m.loadLocked(next)
		m.mu.Unlock()
		return err
	}
	if m.fetching {
		m.mu.Unlock()
		return nil
	}

	gen := m.generation
	seed := m.songs[m.index]
	snapshot := slices.Clone(m.songs)
	m.fetching = true
	m.mu.Unlock()

	candidates := m.fetchContinuation(ctx, seed, snapshot)

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation {
		zlog.Debug().Msgf("queue: discarding stale continuation: song_id=%s", seed.ID)
		return nil
	}
	m.fetching = false

	added := m.appendLocked(continuation.Songs(candidates), m.config.ContinuationSize)
	zlog.Info().Msgf("queue: continuation appended: seed=%s candidates=%d added=%d size=%d", seed.ID, len(candidates), added, len(m.songs))

	if next, ok := m.nextIndexLocked(); ok {
		return m.loadLocked(next)
	}
	zlog.Info().Msg("queue: end of queue reached, stopping")
	return m.player.SetPlaying(false)
}

// Retreat moves to the previous song. At the head of the queue it is a no-op.
func (m *Manager) Retreat() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.songs) == 0 {
		return ErrEmpty
	}
	prev := m.index - 1
	if prev < 0 {
		return nil
	}
	return m.loadLocked(prev)
}

// SetShuffle sets the shuffle policy.
func (m *Manager) SetShuffle(shuffle bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shuffle = shuffle
}

// ToggleShuffle flips the shuffle policy and returns the new value.
func (m *Manager) ToggleShuffle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shuffle = !m.shuffle
	return m.shuffle
}

// Shuffle reports whether shuffle is on.
func (m *Manager) Shuffle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuffle
}

// Songs returns a copy of the queue.
func (m *Manager) Songs() []song.Song {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.songs)
}

// Index returns the index of the current song, or -1.
func (m *Manager) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Contains reports whether a song with id is queued.
func (m *Manager) Contains(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.ContainsFunc(m.songs, func(s song.Song) bool { return s.ID == id })
}

// nextIndexLocked returns the index that should play next and whether it
// is within bounds. Shuffle picks uniformly over the whole queue, the
// current index included.
func (m *Manager) nextIndexLocked() (int, bool) {
	var next int
	if m.shuffle {
		next = m.config.Rand(len(m.songs))
	} else {
		next = m.index + 1
	}
	return next, next >= 0 && next < len(m.songs)
}

func (m *Manager) loadLocked(idx int) error {
	m.index = idx
	zlog.Debug().Msgf("queue: loading: index=%d song_id=%s", idx, m.songs[idx].ID)
	return m.player.Load(m.songs[idx])
}

// fetchContinuation never fails; errors and timeouts mean no new songs.
func (m *Manager) fetchContinuation(ctx context.Context, seed song.Song, queue []song.Song) []continuation.CandidateWithSource {
	if m.continuation == nil {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.config.FetchTimeout)
	defer cancel()

	candidates, err := m.continuation.GetCandidates(fetchCtx, m.config.ContinuationSize, seed, queue)
	if err != nil {
		zlog.Warn().Msgf("queue: continuation fetch failed: seed=%s error=%v", seed.ID, err)
		return nil
	}
	return candidates
}

// Package notification fans now-playing updates out to media-session sinks.
package notification

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/domain/song"
)

const sendTimeout = 500 * time.Millisecond

// PlaybackStatus is the coarse status shown by media sessions.
type PlaybackStatus string

const (
	StatusPlaying PlaybackStatus = "Playing"
	StatusPaused  PlaybackStatus = "Paused"
	StatusStopped PlaybackStatus = "Stopped"
)

// NowPlaying is the metadata pushed to sinks.
type NowPlaying struct {
	SequenceNo uint64
	SongID     string
	Title      string
	Artist     string
	Album      string
	ArtworkURL string
	Duration   time.Duration
	Position   time.Duration
	Status     PlaybackStatus
}

// NewNowPlaying builds the metadata for s. Songs without an album show
// "Single", songs without artists show "Unknown".
func NewNowPlaying(s song.Song, status PlaybackStatus) NowPlaying {
	artist := strings.Join(s.ArtistNames(), ", ")
	if artist == "" {
		artist = "Unknown"
	}
	album := s.Album.Name
	if album == "" {
		album = "Single"
	}
	return NowPlaying{
		SongID:     s.ID,
		Title:      s.Name,
		Artist:     artist,
		Album:      album,
		ArtworkURL: s.ImageURL(),
		Duration:   s.Duration,
		Status:     status,
	}
}

// Sink receives now-playing updates.
type Sink interface {
	Update(ctx context.Context, np NowPlaying) error
}

// subscription represents a sink's subscription.
type subscription struct {
	id   string
	sink Sink
}

// Manager manages sink subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(sink Sink) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:   id,
		sink: sink,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast sends np to all sinks and returns the sequence number it was
// stamped with. Each send runs in its own goroutine with a timeout so a
// slow sink cannot stall the others.
func (m *Manager) Broadcast(np NowPlaying) uint64 {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	np.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.sink.Update(ctx, np)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: sink update failed: subscription_id=%s error=%v", s.id, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: sink update timed out: subscription_id=%s", s.id)
			}
		}(sub)
	}

	wg.Wait()
	return np.SequenceNo
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

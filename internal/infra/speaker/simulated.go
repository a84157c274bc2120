package speaker

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/vibestream/internal/app/playback"
	"github.com/osa030/vibestream/internal/app/resolver"
)

var errNoSource = errors.New("no source assigned")

// Simulated is an output device that produces no audio. Position advances
// with the wall clock while playing.
type Simulated struct {
	mu sync.Mutex

	config Config
	events events

	src       resolver.Source
	hasSource bool
	paused    bool
	position  time.Duration // position at the last pause or seek
	startedAt time.Time
	volume    float64

	done      chan struct{}
	closeOnce sync.Once
}

// NewSimulated creates a simulated device.
func NewSimulated(config Config) *Simulated {
	s := &Simulated{
		config: config.withDefaults(),
		events: newEvents(),
		paused: true,
		volume: 1,
		done:   make(chan struct{}),
	}
	go s.tick()
	return s
}

// SetSource assigns a new source. The device is paused at position zero.
func (s *Simulated) SetSource(src resolver.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src = src
	s.hasSource = true
	s.paused = true
	s.position = 0
	return nil
}

// Start begins playback of the assigned source.
func (s *Simulated) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasSource {
		return errNoSource
	}
	if err := ctx.Err(); err != nil {
		return playback.ErrAborted
	}
	if !s.paused {
		return nil
	}

	token := s.src.Token
	if s.src.Kind == resolver.KindRemote && s.position == 0 {
		s.events.emit(playback.DeviceEvent{Type: playback.DeviceEventWaiting, Token: token})
		s.events.emit(playback.DeviceEvent{Type: playback.DeviceEventCanPlay, Token: token})
	}
	s.paused = false
	s.startedAt = time.Now()
	s.events.emit(playback.DeviceEvent{Type: playback.DeviceEventPlaying, Token: token})
	return nil
}

// Stop pauses output.
func (s *Simulated) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return
	}
	s.position = s.positionLocked()
	s.paused = true
	s.events.emit(playback.DeviceEvent{Type: playback.DeviceEventPause, Token: s.src.Token, Position: s.position})
}

// Seek moves the position.
func (s *Simulated) Seek(pos time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasSource {
		return errNoSource
	}
	if length := s.config.SimulatedLength; length > 0 && pos > length {
		pos = length
	}
	s.position = pos
	s.startedAt = time.Now()
	s.events.emit(playback.DeviceEvent{
		Type:     playback.DeviceEventTimeUpdate,
		Token:    s.src.Token,
		Position: pos,
		Duration: s.config.SimulatedLength,
	})
	return nil
}

// Paused reports whether output is halted.
func (s *Simulated) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Events returns the device event channel.
func (s *Simulated) Events() <-chan playback.DeviceEvent {
	return s.events
}

// SetVolume records the volume level.
func (s *Simulated) SetVolume(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = clampLevel(v)
	return nil
}

// Volume returns the volume level.
func (s *Simulated) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Close stops the position ticker.
func (s *Simulated) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *Simulated) positionLocked() time.Duration {
	if s.paused {
		return s.position
	}
	return s.position + time.Since(s.startedAt)
}

func (s *Simulated) tick() {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.update()
		}
	}
}

func (s *Simulated) update() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || !s.hasSource {
		return
	}
	pos := s.positionLocked()
	length := s.config.SimulatedLength
	if length > 0 && pos >= length {
		s.position = length
		s.paused = true
		s.events.emit(playback.DeviceEvent{Type: playback.DeviceEventEnded, Token: s.src.Token, Position: length, Duration: length})
		return
	}
	s.events.emit(playback.DeviceEvent{Type: playback.DeviceEventTimeUpdate, Token: s.src.Token, Position: pos, Duration: length})
}

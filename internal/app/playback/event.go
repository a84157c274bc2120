package playback

import (
	"time"

	"github.com/osa030/vibestream/internal/app/resolver"
	"github.com/osa030/vibestream/internal/domain/song"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackChanged    EventType = iota // Current song changed, source resolution started
	EventTrackStarted                     // Device confirmed audio for the current song
	EventStateChanged                     // Playback state changed
	EventEnded                            // Current song finished
	EventError                            // Device or decode failure
	EventUnavailable                      // No source could be resolved
	EventDurationChanged                  // Device reported a different duration
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventTrackStarted:
		return "track_started"
	case EventStateChanged:
		return "state_changed"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	case EventUnavailable:
		return "unavailable"
	case EventDurationChanged:
		return "duration_changed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	Song    *song.Song // Current song (nil once stopped)
	Session Session    // Session snapshot at the time of the event
	Err     error      // Set for EventError and EventUnavailable
}

// Session is the shared playback session. IsPlaying is the play intent,
// State is what the device confirmed; the two are reconciled by the engine.
type Session struct {
	CurrentSongID string
	IsPlaying     bool
	IsBuffering   bool
	Position      time.Duration
	Duration      time.Duration
	Quality       resolver.Quality
	OfflineMode   bool
	State         State
	Err           error
}

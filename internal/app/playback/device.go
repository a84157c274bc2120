package playback

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/vibestream/internal/app/resolver"
)

// ErrAborted is returned by Device.Start when the start was interrupted by
// a newer source or a stop request.
var ErrAborted = errors.New("playback start aborted")

// Device is the single audio output.
//
// SetSource is a cheap assignment and may emit a spurious pause event.
// Start blocks until audio begins and returns ErrAborted or the context
// error when interrupted. Stop halts output and keeps the position.
// Implementations must never block when delivering events.
type Device interface {
	SetSource(src resolver.Source) error
	Start(ctx context.Context) error
	Stop()
	Seek(pos time.Duration) error
	Paused() bool
	Events() <-chan DeviceEvent
}

// DeviceEventType represents a device notification.
type DeviceEventType int

const (
	DeviceEventPlaying    DeviceEventType = iota // Audio is being produced
	DeviceEventPlay                              // Playback was requested on the device
	DeviceEventPause                             // Output halted
	DeviceEventWaiting                           // Stalled waiting for data
	DeviceEventCanPlay                           // Enough data to play
	DeviceEventTimeUpdate                        // Position advanced
	DeviceEventEnded                             // Reached the end of the source
	DeviceEventError                             // Decode or network failure
)

// String returns the string representation of the device event type.
func (t DeviceEventType) String() string {
	switch t {
	case DeviceEventPlaying:
		return "playing"
	case DeviceEventPlay:
		return "play"
	case DeviceEventPause:
		return "pause"
	case DeviceEventWaiting:
		return "waiting"
	case DeviceEventCanPlay:
		return "canplay"
	case DeviceEventTimeUpdate:
		return "timeupdate"
	case DeviceEventEnded:
		return "ended"
	case DeviceEventError:
		return "error"
	default:
		return "unknown"
	}
}

// DeviceEvent is a notification raised by a Device. Token echoes the
// Source.Token of the source the event belongs to.
type DeviceEvent struct {
	Type     DeviceEventType
	Token    uint64
	Position time.Duration
	Duration time.Duration
	Seeking  bool // set on pauses caused by a seek
	Err      error
}

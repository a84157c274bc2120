// Package playback drives the single audio output device and keeps its state
// consistent with the application's play/pause intent.
package playback

// State represents the playback state.
type State int

const (
	StateIdle      State = iota // No song loaded
	StateLoading                // Resolving a source or waiting for the device to start
	StatePlaying                // Device confirmed audio output
	StatePaused                 // Song loaded, output halted
	StateBuffering              // Playing intent, device waiting for data
	StateEnded                  // Song reached its end
	StateErrored                // Resolution or device failure
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateEnded:
		return "ended"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

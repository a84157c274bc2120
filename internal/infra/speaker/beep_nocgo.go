//go:build !((linux && cgo) || windows || darwin)

package speaker

// AudioAvailable indicates whether audio playback is supported in this build.
// Audio output needs cgo on linux.
const AudioAvailable = false

// Device falls back to the simulated device in builds without audio.
type Device = Simulated

// New creates a simulated device.
func New(config Config) (*Device, error) {
	return NewSimulated(config), nil
}

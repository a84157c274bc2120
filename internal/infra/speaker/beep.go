//go:build (linux && cgo) || windows || darwin

package speaker

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/app/playback"
	"github.com/osa030/vibestream/internal/app/resolver"
)

// AudioAvailable indicates whether audio playback is supported in this build.
const AudioAvailable = true

const sampleRate = beep.SampleRate(44100)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	})
	return speakerErr
}

// Device plays mp3 sources on the system audio output.
type Device struct {
	mu sync.Mutex

	config Config
	events events

	src       resolver.Source
	hasSource bool

	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	level    float64

	done      chan struct{}
	closeOnce sync.Once
}

// New creates an audio output device.
func New(config Config) (*Device, error) {
	d := &Device{
		config: config.withDefaults(),
		events: newEvents(),
		level:  1,
		done:   make(chan struct{}),
	}
	go d.tick()
	return d, nil
}

// SetSource assigns a new source, discarding the current one.
func (d *Device) SetSource(src resolver.Source) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	d.src = src
	d.hasSource = true
	return nil
}

// Start decodes the assigned source if needed and starts output. Remote
// sources are fetched first.
func (d *Device) Start(ctx context.Context) error {
	d.mu.Lock()
	if !d.hasSource {
		d.mu.Unlock()
		return errNoSource
	}
	src := d.src
	if d.ctrl != nil {
		speaker.Lock()
		d.ctrl.Paused = false
		speaker.Unlock()
		d.mu.Unlock()
		d.events.emit(playback.DeviceEvent{Type: playback.DeviceEventPlaying, Token: src.Token})
		return nil
	}
	d.mu.Unlock()

	data := src.Data
	if src.Kind == resolver.KindRemote {
		d.events.emit(playback.DeviceEvent{Type: playback.DeviceEventWaiting, Token: src.Token})
		var err error
		data, err = fetchSource(ctx, d.config.HTTPClient, src.URL)
		if err != nil {
			if ctx.Err() != nil {
				return playback.ErrAborted
			}
			return err
		}
		d.events.emit(playback.DeviceEvent{Type: playback.DeviceEventCanPlay, Token: src.Token})
	}

	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return errors.Wrap(err, "failed to decode audio")
	}
	if err := initSpeaker(); err != nil {
		_ = streamer.Close()
		return errors.Wrap(err, "failed to initialize speaker")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Superseded while fetching or decoding.
	if ctx.Err() != nil || !d.hasSource || d.src.Token != src.Token || d.ctrl != nil {
		_ = streamer.Close()
		return playback.ErrAborted
	}

	d.streamer = streamer
	d.format = format
	d.ctrl = &beep.Ctrl{Streamer: beep.Resample(4, format.SampleRate, sampleRate, streamer)}
	d.volume = &effects.Volume{
		Streamer: d.ctrl,
		Base:     2,
		Volume:   levelToVolume(d.level),
		Silent:   d.level <= 0,
	}

	token := src.Token
	speaker.Play(beep.Seq(d.volume, beep.Callback(func() {
		// Runs on the speaker goroutine; finish takes d.mu.
		go d.finish(token)
	})))

	zlog.Debug().Msgf("speaker: started: song_id=%s token=%d duration=%s",
		src.SongID, token, format.SampleRate.D(streamer.Len()))
	d.events.emit(playback.DeviceEvent{Type: playback.DeviceEventPlaying, Token: token})
	return nil
}

// Stop pauses output.
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctrl == nil {
		return
	}
	speaker.Lock()
	wasPlaying := !d.ctrl.Paused
	d.ctrl.Paused = true
	speaker.Unlock()

	if wasPlaying {
		d.events.emit(playback.DeviceEvent{Type: playback.DeviceEventPause, Token: d.src.Token, Position: d.positionLocked()})
	}
}

// Seek moves the position of the decoded stream.
func (d *Device) Seek(pos time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.streamer == nil {
		return nil
	}

	speaker.Lock()
	n := d.format.SampleRate.N(pos)
	if n > d.streamer.Len() {
		n = d.streamer.Len()
	}
	err := d.streamer.Seek(n)
	speaker.Unlock()
	if err != nil {
		return errors.Wrap(err, "failed to seek")
	}

	d.events.emit(playback.DeviceEvent{
		Type:     playback.DeviceEventTimeUpdate,
		Token:    d.src.Token,
		Position: d.positionLocked(),
		Duration: d.durationLocked(),
	})
	return nil
}

// Paused reports whether output is halted.
func (d *Device) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctrl == nil {
		return true
	}
	speaker.Lock()
	defer speaker.Unlock()
	return d.ctrl.Paused
}

// Events returns the device event channel.
func (d *Device) Events() <-chan playback.DeviceEvent {
	return d.events
}

// SetVolume sets the output level (0.0 to 1.0).
func (d *Device) SetVolume(v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.level = clampLevel(v)
	if d.volume != nil {
		speaker.Lock()
		d.volume.Volume = levelToVolume(d.level)
		d.volume.Silent = d.level <= 0
		speaker.Unlock()
	}
	return nil
}

// Close stops output and releases the decoder.
func (d *Device) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	return nil
}

func (d *Device) finish(token uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasSource || d.src.Token != token {
		return
	}
	dur := d.durationLocked()
	zlog.Debug().Msgf("speaker: source drained: song_id=%s token=%d", d.src.SongID, token)
	d.clearLocked()
	d.events.emit(playback.DeviceEvent{Type: playback.DeviceEventEnded, Token: token, Position: dur, Duration: dur})
}

// clearLocked removes the current stream from the mixer. The source stays
// assigned so a later Start replays it from the beginning.
func (d *Device) clearLocked() {
	if d.ctrl == nil {
		return
	}
	speaker.Clear()
	if d.streamer != nil {
		_ = d.streamer.Close()
	}
	d.streamer = nil
	d.ctrl = nil
	d.volume = nil
}

func (d *Device) positionLocked() time.Duration {
	if d.streamer == nil {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return d.format.SampleRate.D(d.streamer.Position())
}

func (d *Device) durationLocked() time.Duration {
	if d.streamer == nil {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return d.format.SampleRate.D(d.streamer.Len())
}

func (d *Device) tick() {
	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.mu.Lock()
			if d.ctrl != nil {
				speaker.Lock()
				playing := !d.ctrl.Paused
				speaker.Unlock()
				if playing {
					d.events.emit(playback.DeviceEvent{
						Type:     playback.DeviceEventTimeUpdate,
						Token:    d.src.Token,
						Position: d.positionLocked(),
						Duration: d.durationLocked(),
					})
				}
			}
			d.mu.Unlock()
		}
	}
}

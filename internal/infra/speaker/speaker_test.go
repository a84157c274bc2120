package speaker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibestream/internal/app/playback"
	"github.com/osa030/vibestream/internal/app/resolver"
)

func nextEvent(t *testing.T, d *Simulated) playback.DeviceEvent {
	t.Helper()
	select {
	case ev := <-d.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for device event")
		return playback.DeviceEvent{}
	}
}

func nextEventOfType(t *testing.T, d *Simulated, typ playback.DeviceEventType) playback.DeviceEvent {
	t.Helper()
	for {
		ev := nextEvent(t, d)
		if ev.Type == typ {
			return ev
		}
	}
}

func TestSimulated_StartEchoesToken(t *testing.T) {
	d := NewSimulated(Config{TickInterval: time.Hour})
	t.Cleanup(func() { _ = d.Close() })

	assert.ErrorIs(t, d.Start(context.Background()), errNoSource)

	require.NoError(t, d.SetSource(resolver.Source{Kind: resolver.KindLocal, SongID: "s1", Token: 7}))
	assert.True(t, d.Paused())

	require.NoError(t, d.Start(context.Background()))
	assert.False(t, d.Paused())

	ev := nextEvent(t, d)
	assert.Equal(t, playback.DeviceEventPlaying, ev.Type)
	assert.Equal(t, uint64(7), ev.Token)
}

func TestSimulated_RemoteSourceBuffers(t *testing.T) {
	d := NewSimulated(Config{TickInterval: time.Hour})
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.SetSource(resolver.Source{Kind: resolver.KindRemote, URL: "https://cdn/x", Token: 3}))
	require.NoError(t, d.Start(context.Background()))

	var types []playback.DeviceEventType
	for range 3 {
		types = append(types, nextEvent(t, d).Type)
	}
	assert.Equal(t, []playback.DeviceEventType{
		playback.DeviceEventWaiting,
		playback.DeviceEventCanPlay,
		playback.DeviceEventPlaying,
	}, types)
}

func TestSimulated_CanceledStartAborts(t *testing.T) {
	d := NewSimulated(Config{TickInterval: time.Hour})
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.SetSource(resolver.Source{Token: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Start(ctx), playback.ErrAborted)
	assert.True(t, d.Paused())
}

func TestSimulated_StopEmitsPause(t *testing.T) {
	d := NewSimulated(Config{TickInterval: time.Hour})
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.SetSource(resolver.Source{Token: 2}))
	require.NoError(t, d.Start(context.Background()))
	nextEventOfType(t, d, playback.DeviceEventPlaying)

	d.Stop()
	ev := nextEvent(t, d)
	assert.Equal(t, playback.DeviceEventPause, ev.Type)
	assert.Equal(t, uint64(2), ev.Token)
	assert.True(t, d.Paused())

	// second stop is a no-op
	d.Stop()
	select {
	case ev := <-d.Events():
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func TestSimulated_EndsAfterLength(t *testing.T) {
	d := NewSimulated(Config{TickInterval: 5 * time.Millisecond, SimulatedLength: 30 * time.Millisecond})
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.SetSource(resolver.Source{Token: 9}))
	require.NoError(t, d.Start(context.Background()))

	ev := nextEventOfType(t, d, playback.DeviceEventEnded)
	assert.Equal(t, uint64(9), ev.Token)
	assert.Equal(t, 30*time.Millisecond, ev.Position)
	assert.True(t, d.Paused())
}

func TestSimulated_SeekClampsToLength(t *testing.T) {
	d := NewSimulated(Config{TickInterval: time.Hour, SimulatedLength: time.Minute})
	t.Cleanup(func() { _ = d.Close() })

	assert.ErrorIs(t, d.Seek(time.Second), errNoSource)
	require.NoError(t, d.SetSource(resolver.Source{Token: 4}))

	require.NoError(t, d.Seek(2*time.Minute))
	ev := nextEvent(t, d)
	assert.Equal(t, playback.DeviceEventTimeUpdate, ev.Type)
	assert.Equal(t, time.Minute, ev.Position)
}

func TestSimulated_Volume(t *testing.T) {
	d := NewSimulated(Config{TickInterval: time.Hour})
	t.Cleanup(func() { _ = d.Close() })
	assert.InDelta(t, 1.0, d.Volume(), 1e-9)
	require.NoError(t, d.SetVolume(-3))
	assert.InDelta(t, 0.0, d.Volume(), 1e-9)
	require.NoError(t, d.SetVolume(0.4))
	assert.InDelta(t, 0.4, d.Volume(), 1e-9)
}

func TestFetchSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ID3 audio"))
	}))
	t.Cleanup(srv.Close)

	data, err := fetchSource(context.Background(), srv.Client(), srv.URL+"/song.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3 audio"), data)

	_, err = fetchSource(context.Background(), srv.Client(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestLevelToVolume(t *testing.T) {
	tests := []struct {
		level    float64
		expected float64
	}{
		{level: 1, expected: 0},
		{level: 1.5, expected: 0},
		{level: 0.5, expected: -1},
		{level: 0.25, expected: -2},
		{level: 0, expected: -10},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.expected, levelToVolume(tt.level), 1e-9, "level %v", tt.level)
	}
}

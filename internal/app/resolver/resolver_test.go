package resolver

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibestream/internal/domain/song"
)

type fakeBlobs struct {
	data map[string][]byte
	err  error
}

func (f *fakeBlobs) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	d, ok := f.data[id]
	return d, ok, nil
}

type fakeStreams struct {
	mu    sync.Mutex
	calls int
	url   string
	urls  []song.DownloadURL // overrides url when set
	err   error
	block bool
}

func (f *fakeStreams) StreamURLs(ctx context.Context, id string) ([]song.DownloadURL, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.urls != nil {
		return f.urls, nil
	}
	return []song.DownloadURL{{Quality: "320kbps", URL: f.url}}, nil
}

func (f *fakeStreams) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func renditions(labels ...string) []song.DownloadURL {
	urls := make([]song.DownloadURL, len(labels))
	for i, l := range labels {
		urls[i] = song.DownloadURL{Quality: l, URL: "u-" + l}
	}
	return urls
}

func TestSelectURL(t *testing.T) {
	labels := renditions("12kbps", "48kbps", "96kbps", "160kbps", "320kbps")
	shuffled := renditions("160kbps", "12kbps", "320kbps", "96kbps", "48kbps")

	tests := []struct {
		name     string
		urls     []song.DownloadURL
		quality  Quality
		expected string
	}{
		{name: "low picks lowest", urls: labels, quality: QualityLow, expected: "u-12kbps"},
		{name: "normal picks middle", urls: labels, quality: QualityNormal, expected: "u-96kbps"},
		{name: "high picks highest", urls: labels, quality: QualityHigh, expected: "u-320kbps"},
		{name: "input order does not matter", urls: shuffled, quality: QualityHigh, expected: "u-320kbps"},
		{name: "unsorted low", urls: shuffled, quality: QualityLow, expected: "u-12kbps"},
		{name: "single rendition", urls: renditions("320kbps"), quality: QualityLow, expected: "u-320kbps"},
		{name: "even count normal uses n/2", urls: renditions("12kbps", "96kbps", "160kbps", "320kbps"), quality: QualityNormal, expected: "u-160kbps"},
		{name: "non numeric ranks lowest", urls: renditions("320kbps", "auto"), quality: QualityLow, expected: "u-auto"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectURL(tt.urls, tt.quality)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.URL)
		})
	}
}

func TestSelectURL_StableTies(t *testing.T) {
	urls := []song.DownloadURL{
		{Quality: "auto", URL: "first"},
		{Quality: "hq", URL: "second"},
	}
	low, err := SelectURL(urls, QualityLow)
	require.NoError(t, err)
	assert.Equal(t, "first", low.URL)

	high, err := SelectURL(urls, QualityHigh)
	require.NoError(t, err)
	assert.Equal(t, "second", high.URL)

	// input slice is left untouched
	assert.Equal(t, "first", urls[0].URL)
}

func TestSelectURL_Empty(t *testing.T) {
	_, err := SelectURL(nil, QualityHigh)
	assert.ErrorIs(t, err, ErrNoRenditions)
}

func TestParseQuality(t *testing.T) {
	assert.Equal(t, QualityLow, ParseQuality("low"))
	assert.Equal(t, QualityNormal, ParseQuality(" Normal "))
	assert.Equal(t, QualityHigh, ParseQuality("high"))
	assert.Equal(t, QualityHigh, ParseQuality(""))
}

func TestResolve_OfflinePrecedence(t *testing.T) {
	blobs := &fakeBlobs{data: map[string][]byte{"s1": []byte("audio")}}
	streams := &fakeStreams{url: "https://stream"}
	r := New(blobs, streams, Config{})

	s := song.Song{ID: "s1", DownloadURLs: renditions("320kbps")}

	for _, opts := range []Options{
		{Quality: QualityHigh, Downloaded: true},
		{Quality: QualityHigh, Offline: true},
	} {
		src, err := r.Resolve(context.Background(), s, opts)
		require.NoError(t, err)
		assert.Equal(t, KindLocal, src.Kind)
		assert.Equal(t, []byte("audio"), src.Data)
		assert.Equal(t, "s1", src.SongID)
	}
	assert.Zero(t, streams.Calls())
}

func TestResolve_OfflineMissIsUnavailableWithoutNetwork(t *testing.T) {
	streams := &fakeStreams{url: "https://stream"}
	r := New(&fakeBlobs{}, streams, Config{})

	s := song.Song{ID: "s1", DownloadURLs: renditions("320kbps")}
	_, err := r.Resolve(context.Background(), s, Options{Offline: true})

	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Zero(t, streams.Calls(), "offline mode must not resolve streams")
}

func TestResolve_DownloadedFlagFallsThroughOnMiss(t *testing.T) {
	r := New(&fakeBlobs{}, &fakeStreams{}, Config{})

	s := song.Song{ID: "s1", DownloadURLs: renditions("96kbps", "320kbps")}
	src, err := r.Resolve(context.Background(), s, Options{Quality: QualityHigh, Downloaded: true})

	require.NoError(t, err)
	assert.Equal(t, KindRemote, src.Kind)
	assert.Equal(t, "u-320kbps", src.URL)
	assert.Equal(t, "320kbps", src.Quality)
}

func TestResolve_BlobErrorTreatedAsMissing(t *testing.T) {
	r := New(&fakeBlobs{err: errors.New("disk on fire")}, &fakeStreams{}, Config{})

	s := song.Song{ID: "s1", DownloadURLs: renditions("320kbps")}
	src, err := r.Resolve(context.Background(), s, Options{Downloaded: true})
	require.NoError(t, err)
	assert.Equal(t, KindRemote, src.Kind)

	_, err = r.Resolve(context.Background(), s, Options{Offline: true})
	assert.True(t, IsUnavailable(err))
}

func TestResolve_LazyStream(t *testing.T) {
	streams := &fakeStreams{url: "https://stream/s1"}
	r := New(&fakeBlobs{}, streams, Config{})

	src, err := r.Resolve(context.Background(), song.Song{ID: "s1"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, KindRemote, src.Kind)
	assert.Equal(t, "https://stream/s1", src.URL)
	assert.Equal(t, 1, streams.Calls())
}

func TestResolve_LazyStreamHonorsQuality(t *testing.T) {
	tests := []struct {
		quality  Quality
		expected string
	}{
		{quality: QualityLow, expected: "u-12kbps"},
		{quality: QualityNormal, expected: "u-96kbps"},
		{quality: QualityHigh, expected: "u-320kbps"},
	}

	streams := &fakeStreams{urls: renditions("320kbps", "12kbps", "96kbps")}
	r := New(&fakeBlobs{}, streams, Config{})
	for _, tt := range tests {
		t.Run(string(tt.quality), func(t *testing.T) {
			src, err := r.Resolve(context.Background(), song.Song{ID: "s1"}, Options{Quality: tt.quality})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, src.URL)
			assert.Equal(t, strings.TrimPrefix(tt.expected, "u-"), src.Quality)
		})
	}
}

func TestResolve_LazyStreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		streams *fakeStreams
	}{
		{name: "resolver error", streams: &fakeStreams{err: errors.New("boom")}},
		{name: "empty url", streams: &fakeStreams{url: ""}},
		{name: "no renditions", streams: &fakeStreams{urls: []song.DownloadURL{}}},
		{name: "timeout", streams: &fakeStreams{block: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&fakeBlobs{}, tt.streams, Config{StreamTimeout: 20 * time.Millisecond})
			_, err := r.Resolve(context.Background(), song.Song{ID: "s1"}, Options{})
			require.Error(t, err)
			assert.True(t, IsUnavailable(err))
		})
	}
}

func TestResolve_CanceledCallerIsNotUnavailable(t *testing.T) {
	r := New(&fakeBlobs{}, &fakeStreams{block: true}, Config{StreamTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Resolve(ctx, song.Song{ID: "s1"}, Options{})
	require.Error(t, err)
	assert.False(t, IsUnavailable(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestResolve_NoStreamResolver(t *testing.T) {
	r := New(nil, nil, Config{})
	_, err := r.Resolve(context.Background(), song.Song{ID: "s1"}, Options{})
	assert.True(t, IsUnavailable(err))
}

func TestSource_Equal(t *testing.T) {
	a := Source{Kind: KindRemote, SongID: "s1", URL: "x", Token: 1}
	b := Source{Kind: KindRemote, SongID: "s1", URL: "x", Token: 2}
	c := Source{Kind: KindRemote, SongID: "s1", URL: "y"}
	l := Source{Kind: KindLocal, SongID: "s1"}

	assert.True(t, a.Equal(b), "tokens do not affect identity")
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(l))
	assert.True(t, l.Equal(Source{Kind: KindLocal, SongID: "s1"}))
}

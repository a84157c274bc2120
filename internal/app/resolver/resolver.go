package resolver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/domain/song"
)

// ErrUnavailable means no source could be produced for the song.
var ErrUnavailable = errors.New("track unavailable")

// BlobStore reads offline audio.
type BlobStore interface {
	Get(ctx context.Context, id string) ([]byte, bool, error)
}

// StreamResolver lazily fetches the stream renditions of a song.
type StreamResolver interface {
	StreamURLs(ctx context.Context, songID string) ([]song.DownloadURL, error)
}

// Options carries the per-request resolution inputs.
type Options struct {
	Quality    Quality
	Offline    bool // offline mode: never touch the network
	Downloaded bool // the song is known to be stored offline
}

// Config holds resolver configuration.
type Config struct {
	StreamTimeout time.Duration // bound on a lazy stream resolution
}

// Resolver turns a song into a Source.
type Resolver struct {
	blobs   BlobStore
	streams StreamResolver
	config  Config
}

// New creates a resolver. streams may be nil when only offline and
// pre-resolved sources are available.
func New(blobs BlobStore, streams StreamResolver, config Config) *Resolver {
	if config.StreamTimeout <= 0 {
		config.StreamTimeout = 10 * time.Second
	}
	return &Resolver{blobs: blobs, streams: streams, config: config}
}

// Resolve picks the source for s, in strict order: offline copy, pre-resolved
// download URL, lazy stream resolution. It fails with ErrUnavailable, or with
// the context error when the caller abandoned the request.
func (r *Resolver) Resolve(ctx context.Context, s song.Song, opts Options) (Source, error) {
	if opts.Offline || opts.Downloaded {
		if data, ok := r.lookupBlob(ctx, s.ID); ok {
			zlog.Debug().Msgf("resolver: using offline copy: song_id=%s bytes=%d", s.ID, len(data))
			return Source{Kind: KindLocal, SongID: s.ID, Data: data}, nil
		}
		if err := ctx.Err(); err != nil {
			return Source{}, errors.Wrap(err, "resolution superseded")
		}
		if opts.Offline {
			return Source{}, errors.Mark(errors.Newf("song %s is not stored offline", s.ID), ErrUnavailable)
		}
	}

	if len(s.DownloadURLs) > 0 {
		d, err := SelectURL(s.DownloadURLs, opts.Quality)
		if err == nil && d.URL != "" {
			return Source{Kind: KindRemote, SongID: s.ID, URL: d.URL, Quality: d.Quality}, nil
		}
	}

	if r.streams == nil {
		return Source{}, errors.Mark(errors.Newf("song %s has no stream", s.ID), ErrUnavailable)
	}

	rctx, cancel := context.WithTimeout(ctx, r.config.StreamTimeout)
	defer cancel()

	urls, err := r.streams.StreamURLs(rctx, s.ID)
	if err != nil {
		if ctx.Err() != nil {
			return Source{}, errors.Wrap(ctx.Err(), "resolution superseded")
		}
		return Source{}, errors.Mark(errors.Wrapf(err, "failed to resolve stream for %s", s.ID), ErrUnavailable)
	}
	d, err := SelectURL(urls, opts.Quality)
	if err != nil || d.URL == "" {
		return Source{}, errors.Mark(errors.Newf("empty stream URL for %s", s.ID), ErrUnavailable)
	}
	zlog.Debug().Msgf("resolver: stream resolved: song_id=%s quality=%s", s.ID, d.Quality)
	return Source{Kind: KindRemote, SongID: s.ID, URL: d.URL, Quality: d.Quality}, nil
}

// lookupBlob treats store errors as a miss.
func (r *Resolver) lookupBlob(ctx context.Context, id string) ([]byte, bool) {
	if r.blobs == nil {
		return nil, false
	}
	data, ok, err := r.blobs.Get(ctx, id)
	if err != nil {
		zlog.Warn().Msgf("resolver: offline lookup failed, treating as missing: song_id=%s error=%v", id, err)
		return nil, false
	}
	if !ok || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// IsUnavailable reports whether err is a resolution failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/app/account"
	"github.com/osa030/vibestream/internal/app/continuation"
	"github.com/osa030/vibestream/internal/app/download"
	"github.com/osa030/vibestream/internal/app/filter"
	"github.com/osa030/vibestream/internal/app/notification"
	"github.com/osa030/vibestream/internal/app/session"
	"github.com/osa030/vibestream/internal/app/session/state"
	"github.com/osa030/vibestream/internal/infra/blobstore"
	"github.com/osa030/vibestream/internal/infra/catalog"
	"github.com/osa030/vibestream/internal/infra/config"
	"github.com/osa030/vibestream/internal/infra/database"
	"github.com/osa030/vibestream/internal/infra/desktop"
	"github.com/osa030/vibestream/internal/infra/docstore"
	"github.com/osa030/vibestream/internal/infra/filesink"
	"github.com/osa030/vibestream/internal/infra/localstore"
	"github.com/osa030/vibestream/internal/infra/mpris"
	"github.com/osa030/vibestream/internal/infra/speaker"
)

// appOptions selects the optional parts of the application.
type appOptions struct {
	Offline      bool
	MediaSession bool // expose MPRIS and desktop notifications
	Console      bool // print now-playing updates
}

// application holds the wired components of one CLI invocation.
type application struct {
	cfg      *config.Config
	db       *sql.DB
	blobs    *blobstore.Store
	catalogs map[string]songSearcher
	docs     *docstore.Client // nil when remote sync is not configured
	state    *state.Manager
	session  *session.Manager
	accounts *account.Manager // nil when remote sync is not configured

	closers []func() error
}

func openApplication(ctx context.Context, cfg *config.Config, opts appOptions) (*application, error) {
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	zlog.Debug().Msgf("app: database opened: path=%s", dbPath)

	a := &application{
		cfg:   cfg,
		db:    db,
		blobs: blobstore.New(db),
	}
	a.closers = append(a.closers, db.Close)

	catalogClient := catalog.New(catalog.Config{
		BaseURL: cfg.Catalog.BaseURL,
		Timeout: config.Millis(cfg.Catalog.TimeoutMs),
	})
	a.catalogs = map[string]songSearcher{"default": catalogClient}

	var remote state.RemoteStore
	if cfg.DocStore.BaseURL != "" {
		a.docs, err = docstore.New(docstore.Config{
			BaseURL: cfg.DocStore.BaseURL,
			Token:   cfg.DocStore.Token,
			Timeout: config.Millis(cfg.DocStore.TimeoutMs),
		})
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "failed to create document store client")
		}
		remote = a.docs
	}

	a.state = state.New(localstore.New(db), remote, state.Config{
		SyncDebounce: config.Millis(cfg.Sync.DebounceMs),
	})
	if err := a.state.Load(ctx); err != nil {
		zlog.Warn().Msgf("app: failed to load local state, starting fresh: error=%v", err)
	}
	if a.docs != nil {
		a.accounts = account.NewManager(a.docs, a.state, account.Config{})
	}

	filters := filter.NewChainFromConfig(cfg)
	chain, err := continuation.NewProviderChainFromConfig(cfg, catalogClient, filters)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to create continuation providers")
	}

	device, err := speaker.New(speaker.Config{})
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to open audio device")
	}
	if !speaker.AudioAvailable {
		zlog.Warn().Msg("app: audio output not available in this build, using a silent device")
	}

	notifications := notification.NewManager()
	a.session, err = session.NewManager(cfg, session.Deps{
		Device:       device,
		Blobs:        a.blobs,
		Streams:      catalogClient,
		Continuation: chain,
		State:        a.state,
		Sink:         downloadSink(cfg),
		Notification: notifications,
		Offline:      opts.Offline,
	})
	if err != nil {
		_ = device.Close()
		a.Close()
		return nil, errors.Wrap(err, "failed to create session manager")
	}
	// Session closes first, then the device it drives.
	a.closers = append(a.closers, device.Close, func() error { a.session.Close(); return nil })

	if opts.MediaSession {
		a.attachMediaSession(notifications)
	}
	if opts.Console {
		notifications.Subscribe(consoleSink{})
	}

	if err := a.session.Start(ctx); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "failed to start session")
	}
	return a, nil
}

func (a *application) attachMediaSession(notifications *notification.Manager) {
	adapter, err := mpris.New(a.session)
	if err != nil {
		zlog.Warn().Msgf("app: media session unavailable: error=%v", err)
	} else {
		notifications.Subscribe(adapter)
		a.closers = append(a.closers, adapter.Close)
	}

	if n := desktop.New(); n != nil {
		notifications.Subscribe(n)
		a.closers = append(a.closers, n.Close)
	}
}

// Close releases everything in reverse order of acquisition.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			zlog.Warn().Msgf("app: close failed: error=%v", err)
		}
	}
	a.closers = nil
}

func (a *application) searcher(source string) (songSearcher, error) {
	s, ok := a.catalogs[source]
	if !ok {
		return nil, fmt.Errorf("unknown catalog source: %s", source)
	}
	return s, nil
}

func downloadSink(cfg *config.Config) download.FileSink {
	if cfg.Download.SkipFile {
		return nil
	}
	return filesink.New(cfg.DownloadDirectory())
}

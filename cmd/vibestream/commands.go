package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/vibestream/internal/app/download"
	"github.com/osa030/vibestream/internal/app/session/state"
	"github.com/osa030/vibestream/internal/domain/song"
	"github.com/osa030/vibestream/internal/infra/catalog"
	"github.com/osa030/vibestream/internal/infra/config"
)

const (
	progressInterval  = 250 * time.Millisecond
	searchArtistLimit = 3
)

var errNoRemote = errors.New("remote sync is not configured (set docstore.base_url)")

// songSearcher is the part of a catalog used by the CLI.
type songSearcher interface {
	SearchSongs(ctx context.Context, query string) ([]song.Song, error)
	SearchAlbums(ctx context.Context, query string) ([]catalog.Album, error)
	GetAlbumDetails(ctx context.Context, id string) (*catalog.Album, error)
	SearchArtists(ctx context.Context, query string) ([]catalog.Artist, error)
}

// searchAll searches songs and the songs of the best matching album in
// parallel. A failed lookup counts as no results.
func searchAll(ctx context.Context, s songSearcher, query string) []song.Song {
	var songs, albumSongs []song.Song

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := s.SearchSongs(gctx, query)
		if err != nil {
			zlog.Warn().Msgf("search: song search failed: query=%s, error=%v", query, err)
			return nil
		}
		songs = found
		return nil
	})
	g.Go(func() error {
		albums, err := s.SearchAlbums(gctx, query)
		if err != nil || len(albums) == 0 {
			if err != nil {
				zlog.Warn().Msgf("search: album search failed: query=%s, error=%v", query, err)
			}
			return nil
		}
		album, err := s.GetAlbumDetails(gctx, albums[0].ID)
		if err != nil {
			zlog.Warn().Msgf("search: album lookup failed: id=%s, error=%v", albums[0].ID, err)
			return nil
		}
		albumSongs = album.Songs
		return nil
	})
	_ = g.Wait()

	all := append(songs, albumSongs...)
	return lo.UniqBy(all, func(s song.Song) string { return s.ID })
}

func openSearch(ctx context.Context, a *application, source, query string) ([]song.Song, error) {
	s, err := a.searcher(source)
	if err != nil {
		return nil, err
	}
	songs := searchAll(ctx, s, query)
	if len(songs) == 0 {
		return nil, fmt.Errorf("no songs found for %q", query)
	}
	return songs, nil
}

func printSongs(songs []song.Song) {
	for i, s := range songs {
		fmt.Printf("%3d. %s - %s [%s] %s\n", i, s.Name, s.PrimaryArtist(), formatDuration(s.Duration), s.ID)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func runSearch(ctx context.Context, cfg *config.Config, source, query string) error {
	a, err := openApplication(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.searcher(source)
	if err != nil {
		return err
	}
	artists, err := s.SearchArtists(ctx, query)
	if err != nil {
		zlog.Warn().Msgf("search: artist search failed: query=%s, error=%v", query, err)
	}

	songs, err := openSearch(ctx, a, source, query)
	if err != nil {
		return err
	}
	if names := topArtists(artists, searchArtistLimit); len(names) > 0 {
		fmt.Printf("Artists: %s\n", strings.Join(names, ", "))
	}
	printSongs(songs)
	return nil
}

func runDownload(ctx context.Context, cfg *config.Config, source, query string, index int) error {
	a, err := openApplication(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	songs, err := openSearch(ctx, a, source, query)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(songs) {
		return fmt.Errorf("index %d out of range (%d results)", index, len(songs))
	}
	target := songs[index]

	task, err := a.session.StartDownload(ctx, target)
	if err != nil {
		return err
	}
	fmt.Printf("Downloading %s - %s\n", target.Name, target.PrimaryArtist())

	final, err := waitDownload(ctx, a, task)
	if err != nil {
		return err
	}
	fmt.Println()
	if final.SavedPath != "" {
		fmt.Printf("Saved %s to %s\n", humanize.Bytes(uint64(final.Received)), final.SavedPath)
	} else {
		fmt.Printf("Stored %s for offline playback\n", humanize.Bytes(uint64(final.Received)))
	}
	return nil
}

// waitDownload prints progress until the task leaves the downloading state.
func waitDownload(ctx context.Context, a *application, started download.Task) (download.Task, error) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	last := started
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}

		task := a.session.Status().Download
		if task == nil || task.ID != started.ID {
			// Cleared before we saw the final snapshot.
			if a.state.IsDownloaded(last.Song.ID) {
				last.Status = download.StatusCompleted
				return last, nil
			}
			return last, errors.New("download did not complete")
		}
		last = *task

		switch task.Status {
		case download.StatusCompleted:
			return last, nil
		case download.StatusFailed:
			if task.Err == nil {
				return last, errors.New("download failed")
			}
			return last, errors.Wrap(task.Err, "download failed")
		}
		if task.Total > 0 {
			fmt.Printf("\r%3d%% %s / %s", task.Percent,
				humanize.Bytes(uint64(task.Received)), humanize.Bytes(uint64(task.Total)))
		} else {
			fmt.Printf("\r%s", humanize.Bytes(uint64(task.Received)))
		}
	}
}

func runOfflineList(ctx context.Context, cfg *config.Config) error {
	a, err := openApplication(ctx, cfg, appOptions{Offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.blobs.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No downloaded songs")
		return nil
	}

	known := lo.KeyBy(knownSongs(a.state), func(s song.Song) string { return s.ID })
	for _, e := range entries {
		name := "(unknown song)"
		if s, ok := known[e.ID]; ok {
			name = s.Name + " - " + s.PrimaryArtist()
		}
		fmt.Printf("%-12s %-40s %8s  %s\n", e.ID, name, humanize.Bytes(uint64(e.Size)), humanize.Time(e.StoredAt))
	}
	return nil
}

func runOfflineRemove(ctx context.Context, cfg *config.Config, id string) error {
	a, err := openApplication(ctx, cfg, appOptions{Offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.state.IsDownloaded(id) {
		return fmt.Errorf("song %s is not downloaded", id)
	}
	if err := a.session.RemoveDownload(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", id)
	return nil
}

func runSignup(ctx context.Context, cfg *config.Config, name, email, password string) error {
	a, err := openApplication(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.accounts == nil {
		return errNoRemote
	}
	profile, err := a.accounts.Signup(ctx, name, email, password)
	if err != nil {
		a.state.PostNotice(state.NoticeLoginFailed, cfg.Messages.LoginFailed)
		return err
	}
	fmt.Printf("Welcome, %s\n", profile.Name)
	return nil
}

func runLogin(ctx context.Context, cfg *config.Config, email, password string) error {
	a, err := openApplication(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.accounts == nil {
		return errNoRemote
	}
	profile, err := a.accounts.Login(ctx, email, password)
	if err != nil {
		a.state.PostNotice(state.NoticeLoginFailed, cfg.Messages.LoginFailed)
		return err
	}
	fmt.Printf("Logged in as %s (%d playlists, %d liked songs)\n",
		profile.Name, len(a.state.Playlists()), len(a.state.LikedSongs()))
	return nil
}

func runLogout(ctx context.Context, cfg *config.Config) error {
	a, err := openApplication(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, ok := a.state.User(); !ok {
		fmt.Println("Not logged in")
		return nil
	}
	if a.accounts != nil {
		a.accounts.Logout(ctx)
	} else {
		a.state.Logout(ctx)
	}
	fmt.Println("Logged out")
	return nil
}

// knownSongs collects every song the user state refers to.
func knownSongs(st *state.Manager) []song.Song {
	songs := append(st.LikedSongs(), st.History()...)
	for _, p := range st.Playlists() {
		songs = append(songs, p.Songs...)
	}
	return lo.UniqBy(songs, func(s song.Song) string { return s.ID })
}

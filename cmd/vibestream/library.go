package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/osa030/vibestream/internal/app/session/state"
	"github.com/osa030/vibestream/internal/domain/playlist"
	"github.com/osa030/vibestream/internal/domain/song"
	"github.com/osa030/vibestream/internal/infra/catalog"
	"github.com/osa030/vibestream/internal/infra/config"
)

// withLibrary runs fn against the user state of a fresh application.
func withLibrary(ctx context.Context, cfg *config.Config, fn func(a *application) error) error {
	a, err := openApplication(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printPlaylists(playlists []playlist.Playlist) {
	if len(playlists) == 0 {
		fmt.Println("No playlists")
		return
	}
	for _, p := range playlists {
		fmt.Printf("%-36s %-30s %3d songs %7s  %s\n", p.ID, p.Title, len(p.Songs),
			formatDuration(p.TotalDuration()), humanize.Time(time.UnixMilli(p.CreatedAt)))
	}
}

func runPlaylistList(ctx context.Context, cfg *config.Config) error {
	return withLibrary(ctx, cfg, func(a *application) error {
		printPlaylists(a.state.Playlists())
		return nil
	})
}

func runPlaylistShow(ctx context.Context, cfg *config.Config, id string) error {
	return withLibrary(ctx, cfg, func(a *application) error {
		p, ok := a.state.Playlist(id)
		if !ok {
			return errors.Wrapf(state.ErrPlaylistNotFound, "id %s", id)
		}
		fmt.Printf("%s (%d songs)\n", p.Title, len(p.Songs))
		if p.Description != "" {
			fmt.Printf("  %s\n", p.Description)
		}
		printSongs(p.Songs)
		return nil
	})
}

func runPlaylistCreate(ctx context.Context, cfg *config.Config, title, description string) error {
	return withLibrary(ctx, cfg, func(a *application) error {
		p, err := a.state.CreatePlaylist(title, description)
		if err != nil {
			return err
		}
		fmt.Printf("Created playlist %s (%s)\n", p.Title, p.ID)
		return nil
	})
}

func runPlaylistAdd(ctx context.Context, cfg *config.Config, source, id, query string, index int) error {
	return withLibrary(ctx, cfg, func(a *application) error {
		s, err := a.searcher(source)
		if err != nil {
			return err
		}
		added, err := addSearchHit(ctx, a.state, s, id, query, index)
		if err != nil {
			return err
		}
		fmt.Printf("Added %s - %s\n", added.Name, added.PrimaryArtist())
		return nil
	})
}

// addSearchHit adds result index of a search for query to a playlist.
func addSearchHit(ctx context.Context, st *state.Manager, s songSearcher, playlistID, query string, index int) (song.Song, error) {
	if _, ok := st.Playlist(playlistID); !ok {
		return song.Song{}, errors.Wrapf(state.ErrPlaylistNotFound, "id %s", playlistID)
	}
	songs := searchAll(ctx, s, query)
	if len(songs) == 0 {
		return song.Song{}, fmt.Errorf("no songs found for %q", query)
	}
	if index < 0 || index >= len(songs) {
		return song.Song{}, fmt.Errorf("index %d out of range (%d results)", index, len(songs))
	}
	if err := st.AddSongToPlaylist(playlistID, songs[index]); err != nil {
		return song.Song{}, err
	}
	return songs[index], nil
}

func runPlaylistRemove(ctx context.Context, cfg *config.Config, id, songID string) error {
	return withLibrary(ctx, cfg, func(a *application) error {
		msg, err := removeFromLibrary(a.state, id, songID)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	})
}

// removeFromLibrary removes one song from a playlist, or the whole playlist
// when songID is empty.
func removeFromLibrary(st *state.Manager, playlistID, songID string) (string, error) {
	p, ok := st.Playlist(playlistID)
	if !ok {
		return "", errors.Wrapf(state.ErrPlaylistNotFound, "id %s", playlistID)
	}
	if songID == "" {
		if err := st.RemovePlaylist(playlistID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed playlist %s", p.Title), nil
	}
	if !p.Contains(songID) {
		return "", fmt.Errorf("song %s is not in playlist %s", songID, p.Title)
	}
	if err := st.RemoveSongFromPlaylist(playlistID, songID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %s from %s", songID, p.Title), nil
}

func runLiked(ctx context.Context, cfg *config.Config) error {
	return withLibrary(ctx, cfg, func(a *application) error {
		liked := a.state.LikedSongs()
		if len(liked) == 0 {
			fmt.Println("No liked songs")
			return nil
		}
		printSongs(liked)
		return nil
	})
}

func runHistory(ctx context.Context, cfg *config.Config, limit int) error {
	return withLibrary(ctx, cfg, func(a *application) error {
		history := a.state.History()
		if len(history) == 0 {
			fmt.Println("Nothing played yet")
			return nil
		}
		if limit > 0 && len(history) > limit {
			history = history[:limit]
		}
		printSongs(history)
		return nil
	})
}

func runArtistSearch(ctx context.Context, cfg *config.Config, source, query string) error {
	return withLibrary(ctx, cfg, func(a *application) error {
		s, err := a.searcher(source)
		if err != nil {
			return err
		}
		artists, err := s.SearchArtists(ctx, query)
		if err != nil {
			return err
		}
		if len(artists) == 0 {
			return fmt.Errorf("no artists found for %q", query)
		}
		favorites := a.state.FavoriteArtists()
		for _, ar := range artists {
			mark := " "
			if lo.Contains(favorites, ar.Name) {
				mark = "*"
			}
			fmt.Printf("%s %-40s %s\n", mark, ar.Name, ar.ID)
		}
		return nil
	})
}

func runArtistFavorite(ctx context.Context, cfg *config.Config, name string) error {
	return withLibrary(ctx, cfg, func(a *application) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("artist name is required")
		}
		if a.state.ToggleFavoriteArtist(name) {
			fmt.Printf("Added %s to favorite artists\n", name)
		} else {
			fmt.Printf("Removed %s from favorite artists\n", name)
		}
		return nil
	})
}

func runArtistList(ctx context.Context, cfg *config.Config) error {
	return withLibrary(ctx, cfg, func(a *application) error {
		favorites := a.state.FavoriteArtists()
		if len(favorites) == 0 {
			fmt.Println("No favorite artists")
			return nil
		}
		for _, name := range favorites {
			fmt.Println(name)
		}
		return nil
	})
}

// topArtists returns the names of at most n artist hits.
func topArtists(artists []catalog.Artist, n int) []string {
	names := lo.Map(artists, func(a catalog.Artist, _ int) string { return a.Name })
	if len(names) > n {
		names = names[:n]
	}
	return names
}

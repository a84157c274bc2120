package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/vibestream/internal/app/notification"
	"github.com/osa030/vibestream/internal/app/resolver"
	"github.com/osa030/vibestream/internal/app/session"
	"github.com/osa030/vibestream/internal/app/session/state"
	"github.com/osa030/vibestream/internal/domain/song"
	"github.com/osa030/vibestream/internal/infra/config"
)

const volumeStep = 0.1

var errNothingToPlay = errors.New("nothing to play")

type playOptions struct {
	Query        string
	Playlist     string // playlist ID, takes precedence over Query
	Liked        bool
	Source       string
	Offline      bool
	Shuffle      bool
	MediaSession bool
}

// consoleSink prints now-playing updates to stdout.
type consoleSink struct{}

func (consoleSink) Update(_ context.Context, np notification.NowPlaying) error {
	if np.SongID == "" {
		fmt.Printf("  [%s]\n", strings.ToLower(string(np.Status)))
		return nil
	}
	fmt.Printf("> %s - %s (%s) [%s]\n", np.Title, np.Artist, np.Album, strings.ToLower(string(np.Status)))
	return nil
}

func runPlay(ctx context.Context, cfg *config.Config, opts playOptions) error {
	a, err := openApplication(ctx, cfg, appOptions{
		Offline:      opts.Offline,
		MediaSession: opts.MediaSession,
		Console:      true,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	var songs []song.Song
	switch {
	case opts.Playlist != "":
		p, ok := a.state.Playlist(opts.Playlist)
		if !ok {
			return errors.Wrapf(state.ErrPlaylistNotFound, "id %s", opts.Playlist)
		}
		songs = p.Songs
	case opts.Liked:
		songs = a.state.LikedSongs()
	case opts.Query != "":
		songs, err = openSearch(ctx, a, opts.Source, opts.Query)
		if err != nil {
			return err
		}
	default:
		songs = offlineSongs(a.state)
	}
	if len(songs) == 0 {
		return errNothingToPlay
	}

	if opts.Shuffle {
		a.session.SetShuffle(true)
	}
	if err := a.session.PlaySong(songs[0], songs); err != nil {
		return err
	}

	printControls()
	return controlLoop(ctx, a.session, os.Stdin)
}

// offlineSongs returns the downloaded songs the user state knows about.
func offlineSongs(st *state.Manager) []song.Song {
	return lo.Filter(knownSongs(st), func(s song.Song, _ int) bool {
		return st.IsDownloaded(s.ID)
	})
}

func printControls() {
	fmt.Println("Controls: n next, p previous, t toggle, s shuffle, l like, f favorite artist, d download, o offline, c quality, +/- volume, i info, q quit")
}

// controlLoop reads single-letter commands until quit, EOF or cancellation.
func controlLoop(ctx context.Context, m *session.Manager, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep playing until interrupted
				<-ctx.Done()
				return nil
			}
			if line == "q" {
				return nil
			}
			if err := handleControl(ctx, m, line); err != nil {
				fmt.Printf("  %v\n", err)
			}
		}
	}
}

func handleControl(ctx context.Context, m *session.Manager, line string) error {
	switch line {
	case "":
		return nil
	case "n":
		return m.Next(ctx)
	case "p":
		return m.Previous()
	case "t":
		return m.TogglePlay()
	case "s":
		fmt.Printf("  shuffle %s\n", onOff(m.ToggleShuffle()))
	case "l":
		cur := m.Status().Current
		if cur == nil {
			return errNothingToPlay
		}
		if m.ToggleLike(*cur) {
			fmt.Printf("  liked %s\n", cur.Name)
		} else {
			fmt.Printf("  unliked %s\n", cur.Name)
		}
	case "f":
		cur := m.Status().Current
		if cur == nil {
			return errNothingToPlay
		}
		artist := cur.PrimaryArtist()
		if artist == "" {
			return errors.New("song has no artist")
		}
		if m.State().ToggleFavoriteArtist(artist) {
			fmt.Printf("  %s is a favorite\n", artist)
		} else {
			fmt.Printf("  %s is no longer a favorite\n", artist)
		}
	case "c":
		q := nextQuality(m.Status().Playback.Quality)
		m.SetQuality(q)
		fmt.Printf("  quality %s\n", q)
	case "d":
		cur := m.Status().Current
		if cur == nil {
			return errNothingToPlay
		}
		if _, err := m.StartDownload(ctx, *cur); err != nil {
			return err
		}
		fmt.Printf("  downloading %s\n", cur.Name)
	case "o":
		offline := !m.Status().Playback.OfflineMode
		m.SetOfflineMode(offline)
		fmt.Printf("  offline mode %s\n", onOff(offline))
	case "+", "-":
		v := m.Volume() + volumeStep
		if line == "-" {
			v = m.Volume() - volumeStep
		}
		m.SetVolume(v)
		fmt.Printf("  volume %.0f%%\n", m.Volume()*100)
	case "i":
		printStatus(m.Status())
	default:
		printControls()
	}
	return nil
}

func printStatus(st session.Status) {
	if st.Current == nil {
		fmt.Println("  nothing loaded")
		return
	}
	p := st.Playback
	fmt.Printf("  %s - %s %s/%s [%s] quality=%s offline=%s\n",
		st.Current.Name, st.Current.PrimaryArtist(),
		formatDuration(p.Position), formatDuration(p.Duration), p.State, p.Quality, onOff(p.OfflineMode))
	fmt.Printf("  queue %d/%d shuffle=%s\n", st.Index+1, len(st.Queue), onOff(st.Shuffle))
	if st.Download != nil {
		fmt.Printf("  download %s %d%% %s\n", st.Download.Song.Name, st.Download.Percent, st.Download.Status)
	}
	if st.Notice != nil {
		fmt.Printf("  notice: %s\n", st.Notice.Message)
	}
}

// nextQuality cycles low, normal, high.
func nextQuality(q resolver.Quality) resolver.Quality {
	switch q {
	case resolver.QualityLow:
		return resolver.QualityNormal
	case resolver.QualityNormal:
		return resolver.QualityHigh
	default:
		return resolver.QualityLow
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

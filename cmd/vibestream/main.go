// Package main provides the vibestream player entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/app/filter"
	"github.com/osa030/vibestream/internal/infra/config"
	"github.com/osa030/vibestream/internal/infra/logger"
)

var (
	app        = kingpin.New("vibestream", "vibestream music player")
	configPath = app.Flag("config", "Path to config file").Default("config/vibestream.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	// play command
	playCmd            = app.Command("play", "Search and play songs").Default()
	playQuery          = playCmd.Arg("query", "Search text (empty plays offline songs)").Strings()
	playOffline        = playCmd.Flag("offline", "Play downloaded songs only").Bool()
	playPlaylist       = playCmd.Flag("playlist", "Play a saved playlist by ID").String()
	playLiked          = playCmd.Flag("liked", "Play liked songs").Bool()
	playShuffle        = playCmd.Flag("shuffle", "Shuffle the queue").Bool()
	playSource         = playCmd.Flag("source", "Catalog source").Default("default").String()
	playQuality        = playCmd.Flag("quality", "Streaming quality (low, normal, high)").Enum("low", "normal", "high")
	playNoMediaSession = playCmd.Flag("no-media-session", "Disable MPRIS and desktop notifications").Bool()

	// search command
	searchCmd    = app.Command("search", "Search songs and print the results")
	searchQuery  = searchCmd.Arg("query", "Search text").Required().Strings()
	searchSource = searchCmd.Flag("source", "Catalog source").Default("default").String()

	// download command
	downloadCmd    = app.Command("download", "Download a song for offline playback")
	downloadQuery  = downloadCmd.Arg("query", "Search text").Required().Strings()
	downloadIndex  = downloadCmd.Flag("index", "Result index to download").Default("0").Int()
	downloadSource = downloadCmd.Flag("source", "Catalog source").Default("default").String()

	// offline commands
	offlineCmd       = app.Command("offline", "Manage offline songs")
	offlineListCmd   = offlineCmd.Command("list", "List downloaded songs")
	offlineRemoveCmd = offlineCmd.Command("remove", "Remove a downloaded song")
	offlineRemoveID  = offlineRemoveCmd.Arg("id", "Song ID").Required().String()

	// library commands
	playlistCmd          = app.Command("playlist", "Manage playlists")
	playlistListCmd      = playlistCmd.Command("list", "List playlists").Default()
	playlistShowCmd      = playlistCmd.Command("show", "Show the songs of a playlist")
	playlistShowID       = playlistShowCmd.Arg("playlist-id", "Playlist ID").Required().String()
	playlistCreateCmd    = playlistCmd.Command("create", "Create an empty playlist")
	playlistCreateTitle  = playlistCreateCmd.Arg("title", "Playlist title").Required().String()
	playlistCreateDesc   = playlistCreateCmd.Arg("description", "Playlist description").Strings()
	playlistAddCmd       = playlistCmd.Command("add", "Search and add a song to a playlist")
	playlistAddID        = playlistAddCmd.Arg("playlist-id", "Playlist ID").Required().String()
	playlistAddQuery     = playlistAddCmd.Arg("query", "Search text").Required().Strings()
	playlistAddIndex     = playlistAddCmd.Flag("index", "Result index to add").Default("0").Int()
	playlistAddSource    = playlistAddCmd.Flag("source", "Catalog source").Default("default").String()
	playlistRemoveCmd    = playlistCmd.Command("remove", "Remove a song, or the whole playlist when no song is given")
	playlistRemoveID     = playlistRemoveCmd.Arg("playlist-id", "Playlist ID").Required().String()
	playlistRemoveSongID = playlistRemoveCmd.Arg("song-id", "Song ID").String()

	likedCmd     = app.Command("liked", "List liked songs")
	historyCmd   = app.Command("history", "List recently played songs")
	historyLimit = historyCmd.Flag("limit", "Maximum songs to list (0 lists all)").Default("20").Int()

	artistCmd          = app.Command("artist", "Search artists and manage favorites")
	artistListCmd      = artistCmd.Command("list", "List favorite artists").Default()
	artistSearchCmd    = artistCmd.Command("search", "Search artists")
	artistSearchQuery  = artistSearchCmd.Arg("query", "Search text").Required().Strings()
	artistSearchSource = artistSearchCmd.Flag("source", "Catalog source").Default("default").String()
	artistFavoriteCmd  = artistCmd.Command("favorite", "Toggle a favorite artist")
	artistFavoriteName = artistFavoriteCmd.Arg("name", "Artist name").Required().Strings()

	// account commands
	signupCmd      = app.Command("signup", "Create an account and log in")
	signupName     = signupCmd.Arg("name", "Display name").Required().String()
	signupEmail    = signupCmd.Arg("email", "Email address").Required().String()
	signupPassword = signupCmd.Arg("password", "Password").Required().String()

	loginCmd      = app.Command("login", "Log in and sync user data")
	loginEmail    = loginCmd.Arg("email", "Email address").Required().String()
	loginPassword = loginCmd.Arg("password", "Password").Required().String()

	logoutCmd = app.Command("logout", "Log out")

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stderr",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Debug().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}
	if err := validateFilterConfig(cfg); err != nil {
		zlog.Fatal().Msgf("Invalid filter config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		logCloser.Close()
		os.Exit(1)
	}
}

// run dispatches the parsed command.
func run(ctx context.Context, command string, cfg *config.Config) error {
	switch command {
	case playCmd.FullCommand():
		if *playQuality != "" {
			cfg.Playback.Quality = *playQuality
		}
		return runPlay(ctx, cfg, playOptions{
			Query:        strings.Join(*playQuery, " "),
			Playlist:     *playPlaylist,
			Liked:        *playLiked,
			Source:       *playSource,
			Offline:      *playOffline,
			Shuffle:      *playShuffle,
			MediaSession: !*playNoMediaSession,
		})
	case searchCmd.FullCommand():
		return runSearch(ctx, cfg, *searchSource, strings.Join(*searchQuery, " "))
	case downloadCmd.FullCommand():
		return runDownload(ctx, cfg, *downloadSource, strings.Join(*downloadQuery, " "), *downloadIndex)
	case offlineListCmd.FullCommand():
		return runOfflineList(ctx, cfg)
	case offlineRemoveCmd.FullCommand():
		return runOfflineRemove(ctx, cfg, *offlineRemoveID)
	case playlistListCmd.FullCommand():
		return runPlaylistList(ctx, cfg)
	case playlistShowCmd.FullCommand():
		return runPlaylistShow(ctx, cfg, *playlistShowID)
	case playlistCreateCmd.FullCommand():
		return runPlaylistCreate(ctx, cfg, *playlistCreateTitle, strings.Join(*playlistCreateDesc, " "))
	case playlistAddCmd.FullCommand():
		return runPlaylistAdd(ctx, cfg, *playlistAddSource, *playlistAddID, strings.Join(*playlistAddQuery, " "), *playlistAddIndex)
	case playlistRemoveCmd.FullCommand():
		return runPlaylistRemove(ctx, cfg, *playlistRemoveID, *playlistRemoveSongID)
	case likedCmd.FullCommand():
		return runLiked(ctx, cfg)
	case historyCmd.FullCommand():
		return runHistory(ctx, cfg, *historyLimit)
	case artistListCmd.FullCommand():
		return runArtistList(ctx, cfg)
	case artistSearchCmd.FullCommand():
		return runArtistSearch(ctx, cfg, *artistSearchSource, strings.Join(*artistSearchQuery, " "))
	case artistFavoriteCmd.FullCommand():
		return runArtistFavorite(ctx, cfg, strings.Join(*artistFavoriteName, " "))
	case signupCmd.FullCommand():
		return runSignup(ctx, cfg, *signupName, *signupEmail, *signupPassword)
	case loginCmd.FullCommand():
		return runLogin(ctx, cfg, *loginEmail, *loginPassword)
	case logoutCmd.FullCommand():
		return runLogout(ctx, cfg)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	for _, factory := range filter.GetRegistered() {
		f := factory()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// validateFilterConfig validates filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}

		factory, exists := registry[filterName]
		if !exists {
			return fmt.Errorf("unknown filter: %s", filterName)
		}

		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return fmt.Errorf("filter %s: %w", filterName, err)
		}
	}

	return nil
}

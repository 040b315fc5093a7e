package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/grrywlsn/plexsync/config"
	"github.com/grrywlsn/plexsync/logging"
	"github.com/grrywlsn/plexsync/match"
	"github.com/grrywlsn/plexsync/musicbrainz"
	"github.com/grrywlsn/plexsync/playlistsync"
	"github.com/grrywlsn/plexsync/plex"
	"github.com/grrywlsn/plexsync/spotify"
)

// Version information - set during build
var version = "dev"

// Constants for display formatting
const (
	separatorLine          = "="
	separatorLength        = 80
	playlistSeparator      = "🎵"
	playlistSeparatorCount = 40
)

// Exit codes
const (
	exitCodeSuccess     = 0
	exitCodeNoPlaylists = 1
	exitCodeConfigError = 2
	exitCodeClientError = 3
	exitCodeSyncError   = 4
)

var errNoPlaylists = errors.New("no playlists to process")

// playlistCatalog lists source playlists
type playlistCatalog interface {
	UserPublicPlaylists(ctx context.Context, username string) ([]spotify.PlaylistInfo, error)
	PlaylistInfo(ctx context.Context, playlistID string) (*spotify.PlaylistInfo, error)
}

// serverIdentity resolves the Plex machine identifier used in playlist URIs
type serverIdentity interface {
	GetServerID(ctx context.Context) (string, error)
	SetServerID(serverID string)
}

// recordingLookup finds MusicBrainz recording IDs for unmatched tracks
type recordingLookup interface {
	Lookup(ctx context.Context, isrc, artist, title string) (string, error)
}

// missingTrack is an unmatched track with its MusicBrainz recording, if found
type missingTrack struct {
	playlistsync.TrackResult
	MusicBrainzID string
}

// Application represents the main application state
type Application struct {
	config     *config.Config
	logger     *slog.Logger
	out        io.Writer
	catalog    playlistCatalog
	server     serverIdentity
	recordings recordingLookup
	syncer     *playlistsync.Syncer
}

// NewApplication creates a new application instance
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	spotifyClient, err := spotify.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify client: %w", err)
	}

	plexClient := plex.NewClient(cfg, logger)

	selector := newSelector(cfg.Match, logger)
	syncer := playlistsync.New(spotifyClient, plexClient, selector, playlistsync.MergeMode(cfg.Sync.MergeMode), logger)

	return &Application{
		config:     cfg,
		logger:     logger,
		out:        os.Stdout,
		catalog:    spotifyClient,
		server:     plexClient,
		recordings: musicbrainz.NewClient(),
		syncer:     syncer,
	}, nil
}

// newSelector builds the track matcher from the match settings
func newSelector(cfg config.MatchConfig, logger *slog.Logger) *match.Selector {
	scorer := match.NewScorer(cfg.Weights(), cfg.Distance())
	selector := match.NewSelector(scorer, cfg.Threshold, logger)
	logger.Debug("matching configured", "weights", fmt.Sprintf("%+v", scorer.Weights()), "threshold", selector.Threshold())
	return selector
}

// Run executes the main application logic
func (app *Application) Run(ctx context.Context) error {
	// Auto-discover server ID if not provided
	if err := app.discoverServerID(ctx); err != nil {
		app.logger.Warn("failed to auto-discover server ID, set PLEX_SERVER_ID manually if playlist writes fail", "error", err)
	}

	playlists, err := app.getPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("failed to get playlist metadata: %w", err)
	}

	playlists = app.filterExcludedPlaylists(playlists)
	if len(playlists) == 0 {
		app.printNoPlaylistsMessage()
		return errNoPlaylists
	}

	fmt.Fprintf(app.out, "🎵 Processing %d Spotify playlist(s)...\n\n", len(playlists))

	results, err := app.syncer.Run(ctx, playlists)
	if err != nil {
		return err
	}

	failed := 0
	for i, result := range results {
		fmt.Fprintf(app.out, "📋 Playlist %d/%d: %s (%s)\n", i+1, len(results), result.Playlist.Name, result.Playlist.ID)
		fmt.Fprintln(app.out, strings.Repeat(separatorLine, separatorLength))

		if result.Err != nil {
			failed++
			fmt.Fprintf(app.out, "❌ Failed to process playlist: %v\n", result.Err)
		} else {
			app.displayMatchingResults(result)
			if missing := app.lookupMissingTracks(ctx, result.Unmatched()); len(missing) > 0 {
				app.displayMissingTracksSummary(missing)
			}
		}

		// Add separator between playlists
		if i < len(results)-1 {
			fmt.Fprintln(app.out, "\n"+strings.Repeat(playlistSeparator, playlistSeparatorCount))
			fmt.Fprintln(app.out)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d playlists failed", failed, len(results))
	}

	fmt.Fprintln(app.out, "\n🎉 All playlists processed!")
	return nil
}

// discoverServerID attempts to auto-discover the Plex server ID
func (app *Application) discoverServerID(ctx context.Context) error {
	if app.config.Plex.ServerID != "" {
		return nil // Already set
	}

	app.logger.Info("auto-discovering Plex server ID")
	serverID, err := app.server.GetServerID(ctx)
	if err != nil {
		return err
	}

	app.config.Plex.ServerID = serverID
	app.server.SetServerID(serverID)
	app.logger.Info("discovered server ID", "server_id", serverID)
	return nil
}

// getPlaylists resolves the playlists to sync. Explicit playlist IDs win over
// a username; a playlist that cannot be read is logged and skipped.
func (app *Application) getPlaylists(ctx context.Context) ([]playlistsync.Playlist, error) {
	var playlists []playlistsync.Playlist

	if len(app.config.Spotify.PlaylistIDs) == 0 && app.config.Spotify.Username != "" {
		// Fetch all public playlists for the user
		publicPlaylists, err := app.catalog.UserPublicPlaylists(ctx, app.config.Spotify.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch public playlists for user %s: %w", app.config.Spotify.Username, err)
		}

		for _, pl := range publicPlaylists {
			playlists = append(playlists, playlistsync.Playlist{
				ID:          pl.ID,
				Name:        pl.Name,
				Description: pl.Description,
			})
		}
		app.logger.Info("found public playlists", "username", app.config.Spotify.Username, "count", len(playlists))
		return playlists, nil
	}

	for _, playlistID := range app.config.Spotify.PlaylistIDs {
		info, err := app.catalog.PlaylistInfo(ctx, playlistID)
		if err != nil {
			app.logger.Error("failed to get playlist info", "playlist", playlistID, "error", err)
			continue
		}
		playlists = append(playlists, playlistsync.Playlist{
			ID:          playlistID,
			Name:        info.Name,
			Description: info.Description,
		})
	}

	return playlists, nil
}

// filterExcludedPlaylists drops playlists listed in SPOTIFY_PLAYLIST_EXCLUDED_ID
func (app *Application) filterExcludedPlaylists(playlists []playlistsync.Playlist) []playlistsync.Playlist {
	if len(app.config.Spotify.ExcludedPlaylistIDs) == 0 {
		return playlists
	}

	excluded := make(map[string]bool, len(app.config.Spotify.ExcludedPlaylistIDs))
	for _, id := range app.config.Spotify.ExcludedPlaylistIDs {
		excluded[id] = true
	}

	filtered := make([]playlistsync.Playlist, 0, len(playlists))
	for _, pl := range playlists {
		if excluded[pl.ID] {
			app.logger.Info("excluding playlist", "playlist", pl.Name, "id", pl.ID)
			continue
		}
		filtered = append(filtered, pl)
	}
	return filtered
}

// displayMatchingResults displays the results of matching songs to Plex
func (app *Application) displayMatchingResults(result playlistsync.PlaylistResult) {
	fmt.Fprintln(app.out, "MATCHING RESULTS")
	fmt.Fprintln(app.out, strings.Repeat("-", 60))

	for i, tr := range result.Tracks {
		status := "❌ No match"
		switch tr.Status {
		case playlistsync.StatusMatched:
			status = fmt.Sprintf("✅ Matched (score %d)", tr.Match.Score)
		case playlistsync.StatusInvalid:
			status = "⚠️  Invalid track"
		case playlistsync.StatusError:
			status = "❌ Search failed"
		}

		fmt.Fprintf(app.out, "%3d. %s: %s", i+1, describe(tr), status)
		if tr.Status == playlistsync.StatusMatched {
			fmt.Fprintf(app.out, " (Plex: %s)", tr.Match.Track.String())
		}
		fmt.Fprintln(app.out)
	}

	app.displaySummary(result)
}

// displaySummary displays a summary of the matching results
func (app *Application) displaySummary(result playlistsync.PlaylistResult) {
	total := len(result.Tracks)
	percent := func(n int) float64 {
		if total == 0 {
			return 0
		}
		return float64(n) / float64(total) * 100
	}

	matched := result.Count(playlistsync.StatusMatched)
	noMatches := result.Count(playlistsync.StatusNoMatch)
	invalid := result.Count(playlistsync.StatusInvalid)
	errored := result.Count(playlistsync.StatusError)

	fmt.Fprintln(app.out, "\n"+strings.Repeat(separatorLine, separatorLength))
	fmt.Fprintln(app.out, "SUMMARY")
	fmt.Fprintln(app.out, strings.Repeat(separatorLine, separatorLength))
	fmt.Fprintf(app.out, "Total songs: %d\n", total)
	fmt.Fprintf(app.out, "Matches: %d (%.1f%%)\n", matched, result.MatchRate())
	fmt.Fprintf(app.out, "No matches: %d (%.1f%%)\n", noMatches, percent(noMatches))
	if invalid > 0 {
		fmt.Fprintf(app.out, "Invalid tracks: %d (%.1f%%)\n", invalid, percent(invalid))
	}
	if errored > 0 {
		fmt.Fprintf(app.out, "Search errors: %d (%.1f%%)\n", errored, percent(errored))
	}

	switch result.Action {
	case playlistsync.ActionCreated:
		fmt.Fprintf(app.out, "\n✅ Created playlist: %s (ID: %s) with %d tracks\n", result.Playlist.Name, result.DestinationID, result.Added)
	case playlistsync.ActionMerged:
		fmt.Fprintf(app.out, "\n✅ Merged into playlist: %s (ID: %s), %d new tracks\n", result.Playlist.Name, result.DestinationID, result.Added)
	case playlistsync.ActionReplaced:
		fmt.Fprintf(app.out, "\n✅ Replaced playlist: %s (ID: %s) with %d tracks\n", result.Playlist.Name, result.DestinationID, result.Added)
	case playlistsync.ActionSkipped:
		fmt.Fprintf(app.out, "\n⏭️  Playlist %s already exists, left unchanged\n", result.Playlist.Name)
	default:
		fmt.Fprintln(app.out, "\n❌ No matches found, playlist not created")
	}
}

// lookupMissingTracks finds MusicBrainz recording IDs for unmatched tracks
func (app *Application) lookupMissingTracks(ctx context.Context, unmatched []playlistsync.TrackResult) []missingTrack {
	if len(unmatched) == 0 {
		return nil
	}

	app.logger.Info("looking up MusicBrainz IDs for missing tracks", "count", len(unmatched))

	missing := make([]missingTrack, 0, len(unmatched))
	for _, tr := range unmatched {
		mt := missingTrack{TrackResult: tr}
		if app.recordings != nil && len(tr.Source.Artists) > 0 {
			id, err := app.recordings.Lookup(ctx, tr.Source.ISRC, tr.Source.Artists[0], tr.Source.Title)
			if err != nil {
				app.logger.Debug("no MusicBrainz recording", "track", tr.Source.Title, "error", err)
			}
			mt.MusicBrainzID = id
		}
		missing = append(missing, mt)
	}
	return missing
}

// displayMissingTracksSummary displays a summary of tracks that were not matched
func (app *Application) displayMissingTracksSummary(missingTracks []missingTrack) {
	fmt.Fprintln(app.out, "\n"+strings.Repeat(separatorLine, separatorLength))
	fmt.Fprintln(app.out, "MISSING TRACKS SUMMARY")
	fmt.Fprintln(app.out, strings.Repeat(separatorLine, separatorLength))
	fmt.Fprintf(app.out, "Tracks not found in Plex library (%d total):\n", len(missingTracks))
	fmt.Fprintln(app.out, strings.Repeat("-", 80))

	for i, mt := range missingTracks {
		fmt.Fprintf(app.out, "%3d. %s (%s)\n", i+1, describe(mt.TrackResult), mt.Status)
		fmt.Fprintf(app.out, "     Spotify track ID: %s\n", orPlaceholder(mt.Source.ExternalID, "(local file)"))
		fmt.Fprintf(app.out, "     ISRC: %s\n", orPlaceholder(mt.Source.ISRC, "(not available)"))
		if mt.MusicBrainzID != "" {
			fmt.Fprintf(app.out, "     MusicBrainz ID: %s - https://musicbrainz.org/recording/%s\n", mt.MusicBrainzID, mt.MusicBrainzID)
		} else {
			fmt.Fprintln(app.out, "     MusicBrainz ID: (not found)")
		}
		if i < len(missingTracks)-1 {
			fmt.Fprintln(app.out)
		}
	}
}

// describe formats a track as "Artists - Title (Album)" using the source data
func describe(tr playlistsync.TrackResult) string {
	artists := strings.Join(tr.Source.Artists, ", ")
	if tr.Status != playlistsync.StatusInvalid {
		artists = strings.Join(tr.Track.Artists(), ", ")
	}
	return fmt.Sprintf("%s - %s (%s)", artists, tr.Source.Title, tr.Source.Album)
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}

// printNoPlaylistsMessage displays a helpful message when no playlists are specified
func (app *Application) printNoPlaylistsMessage() {
	fmt.Fprintln(app.out, "❌ No playlists to process!")
	fmt.Fprintln(app.out, "Please provide either:")
	fmt.Fprintln(app.out, "  - SPOTIFY_USERNAME environment variable to fetch all public playlists for a user")
	fmt.Fprintln(app.out, "  - SPOTIFY_PLAYLIST_ID environment variable with comma-separated playlist IDs or URLs")
	fmt.Fprintln(app.out, "  - -username command line flag to specify a Spotify username")
	fmt.Fprintln(app.out, "  - -playlists command line flag to specify playlist IDs")
	fmt.Fprintln(app.out, "\nExample:")
	fmt.Fprintln(app.out, "  ./plexsync -username your_spotify_username")
	fmt.Fprintln(app.out, "  ./plexsync -playlists 37i9dQZF1DXcBWIGoYBM5M,37i9dQZF1DXcBWIGoYBM5N")
	fmt.Fprintln(app.out, "  ./plexsync -debug -playlists 37i9dQZF1DXcBWIGoYBM5M  # with debug output")
}

// cliOptions holds command line flags
type cliOptions struct {
	configPath  string
	playlists   string
	username    string
	merge       string
	debug       bool
	showVersion bool
}

// parseFlags parses command line flags
func parseFlags(args []string, output io.Writer) (cliOptions, error) {
	var opts cliOptions

	fs := flag.NewFlagSet("plexsync", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML config file (default "+config.DefaultConfigFile+" if present)")
	fs.StringVar(&opts.playlists, "playlists", "", "Comma-separated list of Spotify playlist IDs or URLs (overrides SPOTIFY_PLAYLIST_ID env var)")
	fs.StringVar(&opts.username, "username", "", "Spotify username to fetch all public playlists (overrides SPOTIFY_USERNAME env var)")
	fs.StringVar(&opts.merge, "merge", "", "How to update existing Plex playlists: union, replace or skip (overrides PLAYLIST_MERGE_MODE env var)")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug output (candidate scores for every track)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return opts, nil
}

// overrides maps the flags onto configuration keys
func (o cliOptions) overrides() map[string]string {
	overrides := map[string]string{
		"SPOTIFY_PLAYLIST_ID": o.playlists,
		"SPOTIFY_USERNAME":    o.username,
		"PLAYLIST_MERGE_MODE": o.merge,
	}
	if o.debug {
		overrides["LOG_LEVEL"] = "debug"
	}
	return overrides
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCodeSuccess
		}
		fmt.Fprintln(os.Stderr, err)
		return exitCodeConfigError
	}

	if opts.showVersion {
		fmt.Printf("PlexSync version %s\n", version)
		return exitCodeSuccess
	}

	cfg, err := config.LoadWithOverrides(opts.configPath, opts.overrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitCodeConfigError
	}

	logger, closer := logging.New(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.File,
	})
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		return exitCodeClientError
	}

	if err := app.Run(ctx); err != nil {
		if errors.Is(err, errNoPlaylists) {
			return exitCodeNoPlaylists
		}
		logger.Error("application failed", "error", err)
		return exitCodeSyncError
	}
	return exitCodeSuccess
}

func main() {
	os.Exit(run(os.Args[1:]))
}

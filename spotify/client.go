package spotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/grrywlsn/plexsync/config"
	"github.com/grrywlsn/plexsync/track"
)

// Number of playlist items requested per page
const pageSize = 100

// Client wraps the Spotify API client
type Client struct {
	client *spotify.Client
	logger *slog.Logger
}

// PlaylistInfo represents basic information about a playlist
type PlaylistInfo struct {
	ID          string
	Name        string
	Description string
	Owner       string
	TrackCount  int
	Public      bool
}

// NewClient creates a new Spotify client authenticated with the client
// credentials flow, which needs no user interaction and can read public
// playlists. A nil logger uses slog.Default().
func NewClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	creds := &clientcredentials.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	// Fetch a token now so bad credentials fail before any sync work
	token, err := creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, creds.TokenSource(ctx)))
	return newClient(httpClient, logger), nil
}

// newClient wraps an authenticated HTTP client. Extra options are passed to
// the Spotify API client.
func newClient(httpClient *http.Client, logger *slog.Logger, opts ...spotify.ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: spotify.New(httpClient, opts...),
		logger: logger,
	}
}

// UserPublicPlaylists fetches all public playlists for a Spotify user
func (c *Client) UserPublicPlaylists(ctx context.Context, username string) ([]PlaylistInfo, error) {
	var playlists []PlaylistInfo

	userPlaylists, err := c.client.GetPlaylistsForUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user playlists: %w", err)
	}

	// Collect all playlists, handling pagination
	for {
		for _, playlist := range userPlaylists.Playlists {
			if !playlist.IsPublic {
				continue
			}
			playlists = append(playlists, PlaylistInfo{
				ID:          string(playlist.ID),
				Name:        playlist.Name,
				Description: playlist.Description,
				Owner:       playlist.Owner.DisplayName,
				TrackCount:  int(playlist.Tracks.Total),
				Public:      playlist.IsPublic,
			})
		}

		err := c.client.NextPage(ctx, userPlaylists)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get next page of user playlists: %w", err)
		}
	}

	return playlists, nil
}

// PlaylistInfo returns basic information about a playlist
func (c *Client) PlaylistInfo(ctx context.Context, playlistID string) (*PlaylistInfo, error) {
	playlist, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID))
	if err != nil {
		return nil, fmt.Errorf("playlist %s not found or not accessible: %w", playlistID, err)
	}

	return &PlaylistInfo{
		ID:          string(playlist.ID),
		Name:        playlist.Name,
		Description: playlist.Description,
		Owner:       playlist.Owner.DisplayName,
		TrackCount:  int(playlist.Tracks.Total),
		Public:      playlist.IsPublic,
	}, nil
}

// PlaylistTracks fetches every track of a playlist in playlist order.
// Entries whose track is no longer available are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]track.Raw, error) {
	page, err := c.client.GetPlaylistTracks(ctx, spotify.ID(playlistID), spotify.Limit(pageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist tracks: %w", err)
	}

	raws := make([]track.Raw, 0, int(page.Total))
	for pageNum := 1; ; pageNum++ {
		for _, item := range page.Tracks {
			if item.Track.Name == "" {
				c.logger.Debug("skipping unavailable playlist item", "playlist", playlistID, "added_at", item.AddedAt)
				continue
			}
			raws = append(raws, convertTrack(item.Track))
		}

		err := c.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get playlist tracks (page %d): %w", pageNum+1, err)
		}
	}

	c.logger.Debug("fetched playlist tracks", "playlist", playlistID, "tracks", len(raws))
	return raws, nil
}

// convertTrack converts a Spotify track into an unvalidated catalog track,
// keeping every credited artist
func convertTrack(t spotify.FullTrack) track.Raw {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	return track.Raw{
		Title:      t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		ExternalID: string(t.ID),
		ISRC:       t.ExternalIDs["isrc"],
	}
}

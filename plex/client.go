package plex

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grrywlsn/plexsync/config"
	"github.com/grrywlsn/plexsync/track"
)

// Constants for Plex API
const (
	// Plex library type for music tracks
	PlexMusicTrackType = "10"

	// HTTP timeouts
	DefaultHTTPTimeout = 30 * time.Second

	// Number of tracks added per playlist request
	AddBatchSize = 50
)

// Client wraps the Plex API client
type Client struct {
	baseURL    string
	token      string
	sectionID  int
	serverID   string
	httpClient *http.Client
	logger     *slog.Logger
}

// PlexTrack represents a track from Plex
type PlexTrack struct {
	ID            string `xml:"ratingKey,attr"`
	Title         string `xml:"title,attr"`
	Artist        string `xml:"grandparentTitle,attr"` // album artist
	TrackArtist   string `xml:"originalTitle,attr"`    // set when it differs from the album artist
	Album         string `xml:"parentTitle,attr"`
	Duration      int    `xml:"duration,attr"`
	PlaylistEntry string `xml:"playlistItemID,attr"`
}

// PlexPlaylist represents a Plex playlist
type PlexPlaylist struct {
	ID          string `xml:"ratingKey,attr" json:"ratingKey"`
	Title       string `xml:"title,attr" json:"title"`
	Description string `xml:"summary,attr" json:"summary"`
	TrackCount  int    `xml:"leafCount,attr" json:"leafCount"`
	Smart       bool   `xml:"smart,attr" json:"smart"`
}

// PlexResponse represents the XML response from Plex API
type PlexResponse struct {
	XMLName        xml.Name       `xml:"MediaContainer"`
	LeafCountAdded *int           `xml:"leafCountAdded,attr"`
	Tracks         []PlexTrack    `xml:"Track"`
	Playlists      []PlexPlaylist `xml:"Playlist"`
}

// PlexServerInfo represents server information from Plex API
type PlexServerInfo struct {
	XMLName           xml.Name `xml:"MediaContainer"`
	FriendlyName      string   `xml:"friendlyName,attr"`
	MachineIdentifier string   `xml:"machineIdentifier,attr"`
	Version           string   `xml:"version,attr"`
}

// Raw converts the Plex track into an unvalidated catalog track. The track
// artist credit is preferred over the album artist and split into names.
func (t PlexTrack) Raw() track.Raw {
	credit := t.TrackArtist
	if credit == "" {
		credit = t.Artist
	}
	return track.Raw{
		Title:      t.Title,
		Artists:    track.SplitArtists(credit),
		Album:      t.Album,
		ExternalID: t.ID,
	}
}

// NewClient creates a new Plex client. A nil logger uses slog.Default().
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: DefaultHTTPTimeout}

	if cfg.Plex.SkipTLSVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.Plex.URL, "/"),
		token:      cfg.Plex.Token,
		sectionID:  cfg.Plex.LibrarySectionID,
		serverID:   cfg.Plex.ServerID,
		httpClient: httpClient,
		logger:     logger,
	}
}

// do sends an authenticated request and returns the response when its status
// is one of ok. The caller closes the body.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, accept string, ok ...int) (*http.Response, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("X-Plex-Token", c.token)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	for _, status := range ok {
		if resp.StatusCode == status {
			return resp, nil
		}
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return nil, fmt.Errorf("plex API %s %s returned status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
}

// getXML performs a GET request and decodes the XML MediaContainer into out
func (c *Client) getXML(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, params, "application/xml", http.StatusOK)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// GetServerInfo retrieves server information from the Plex API
func (c *Client) GetServerInfo(ctx context.Context) (*PlexServerInfo, error) {
	var serverInfo PlexServerInfo
	if err := c.getXML(ctx, "/", nil, &serverInfo); err != nil {
		return nil, fmt.Errorf("failed to get server info: %w", err)
	}
	return &serverInfo, nil
}

// GetServerID retrieves the server ID (machine identifier) from the Plex API
func (c *Client) GetServerID(ctx context.Context) (string, error) {
	serverInfo, err := c.GetServerInfo(ctx)
	if err != nil {
		return "", err
	}

	if serverInfo.MachineIdentifier == "" {
		return "", fmt.Errorf("server info response does not contain machine identifier")
	}

	return serverInfo.MachineIdentifier, nil
}

// SetServerID updates the server ID in the client
func (c *Client) SetServerID(serverID string) {
	c.serverID = serverID
}

// ServerID returns the server ID used in playlist item URIs
func (c *Client) ServerID() string {
	return c.serverID
}

// Search queries the music library for tracks and returns them as catalog
// candidates in the order Plex ranks them
func (c *Client) Search(ctx context.Context, query string) ([]track.Raw, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("type", PlexMusicTrackType)

	var searchResp PlexResponse
	path := fmt.Sprintf("/library/sections/%d/search", c.sectionID)
	if err := c.getXML(ctx, path, params, &searchResp); err != nil {
		return nil, fmt.Errorf("search for %q failed: %w", query, err)
	}

	c.logger.Debug("plex search", "query", query, "results", len(searchResp.Tracks))

	raws := make([]track.Raw, 0, len(searchResp.Tracks))
	for _, t := range searchResp.Tracks {
		raws = append(raws, t.Raw())
	}
	return raws, nil
}

// GetPlaylists retrieves all audio playlists from the Plex server
func (c *Client) GetPlaylists(ctx context.Context) ([]PlexPlaylist, error) {
	params := url.Values{}
	params.Set("playlistType", "audio")

	var playlistResp PlexResponse
	if err := c.getXML(ctx, "/playlists", params, &playlistResp); err != nil {
		return nil, fmt.Errorf("failed to get playlists: %w", err)
	}

	return playlistResp.Playlists, nil
}

// FindPlaylist returns the first non-smart playlist whose title equals name
// exactly, or nil when there is none
func (c *Client) FindPlaylist(ctx context.Context, name string) (*PlexPlaylist, error) {
	playlists, err := c.GetPlaylists(ctx)
	if err != nil {
		return nil, err
	}

	for i := range playlists {
		if playlists[i].Title == name && !playlists[i].Smart {
			return &playlists[i], nil
		}
	}
	return nil, nil
}

// FindPlaylistID returns the ID of the playlist named name, or "" when there
// is none
func (c *Client) FindPlaylistID(ctx context.Context, name string) (string, error) {
	playlist, err := c.FindPlaylist(ctx, name)
	if err != nil || playlist == nil {
		return "", err
	}
	return playlist.ID, nil
}

// GetPlaylistItemIDs returns the rating keys of a playlist's tracks in order
func (c *Client) GetPlaylistItemIDs(ctx context.Context, playlistID string) ([]string, error) {
	var itemsResp PlexResponse
	if err := c.getXML(ctx, "/playlists/"+playlistID+"/items", nil, &itemsResp); err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	ids := make([]string, 0, len(itemsResp.Tracks))
	for _, t := range itemsResp.Tracks {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// itemsURI builds the library URI Plex expects for a set of tracks
func (c *Client) itemsURI(trackIDs []string) string {
	return fmt.Sprintf("server://%s/com.plexapp.plugins.library/library/metadata/%s", c.serverID, strings.Join(trackIDs, ","))
}

// escapeDescription decodes HTML entities in playlist descriptions
func escapeDescription(description string) string {
	// This handles cases like &#x2F; -> /
	return html.UnescapeString(description)
}

// addSyncAttribution adds a sync attribution line to the description
func addSyncAttribution(description, spotifyPlaylistID string) string {
	if spotifyPlaylistID == "" {
		return description
	}

	syncLine := fmt.Sprintf("synced from Spotify: https://open.spotify.com/playlist/%s", spotifyPlaylistID)

	if description != "" {
		return description + "\n\n" + syncLine
	}
	return syncLine
}

// CreatePlaylist creates a playlist holding trackIDs in order and returns its
// ID. Plex needs at least one track to create a playlist.
func (c *Client) CreatePlaylist(ctx context.Context, title, description, spotifyPlaylistID string, trackIDs []string) (string, error) {
	if len(trackIDs) == 0 {
		return "", fmt.Errorf("cannot create playlist %q without tracks", title)
	}

	params := url.Values{}
	params.Set("type", "audio")
	params.Set("title", title)
	params.Set("smart", "0")
	params.Set("uri", c.itemsURI(trackIDs[:1]))
	if summary := addSyncAttribution(description, spotifyPlaylistID); summary != "" {
		params.Set("summary", escapeDescription(summary))
	}

	resp, err := c.do(ctx, http.MethodPost, "/playlists", params, "application/json", http.StatusOK, http.StatusCreated)
	if err != nil {
		return "", fmt.Errorf("failed to create playlist: %w", err)
	}
	defer resp.Body.Close()

	var playlistResp struct {
		MediaContainer struct {
			Metadata []PlexPlaylist `json:"Metadata"`
		} `json:"MediaContainer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&playlistResp); err != nil {
		return "", fmt.Errorf("failed to decode playlist creation response: %w", err)
	}
	if len(playlistResp.MediaContainer.Metadata) == 0 || playlistResp.MediaContainer.Metadata[0].ID == "" {
		return "", fmt.Errorf("no playlist returned from creation request")
	}

	created := playlistResp.MediaContainer.Metadata[0]
	c.logger.Info("created playlist", "title", created.Title, "id", created.ID)

	if err := c.AddTracksToPlaylist(ctx, created.ID, trackIDs[1:]); err != nil {
		return created.ID, err
	}
	return created.ID, nil
}

// UpdatePlaylistMetadata updates the title and description of a playlist
func (c *Client) UpdatePlaylistMetadata(ctx context.Context, playlistID, title, description, spotifyPlaylistID string) error {
	params := url.Values{}
	params.Set("type", "audio")
	if title != "" {
		params.Set("title", title)
	}
	if summary := addSyncAttribution(description, spotifyPlaylistID); summary != "" {
		params.Set("summary", escapeDescription(summary))
	}

	resp, err := c.do(ctx, http.MethodPut, "/playlists/"+playlistID, params, "application/json", http.StatusOK, http.StatusCreated, http.StatusNoContent)
	if err != nil {
		return fmt.Errorf("failed to update playlist metadata: %w", err)
	}
	resp.Body.Close()

	c.logger.Debug("updated playlist metadata", "title", title, "id", playlistID)
	return nil
}

// ClearPlaylist removes all tracks from an existing playlist
func (c *Client) ClearPlaylist(ctx context.Context, playlistID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/playlists/"+playlistID+"/items", nil, "application/xml", http.StatusOK, http.StatusNoContent)
	if err != nil {
		return fmt.Errorf("failed to clear playlist: %w", err)
	}
	resp.Body.Close()

	c.logger.Info("cleared playlist", "id", playlistID)
	return nil
}

// AddTracksToPlaylist appends tracks to a playlist in batches, keeping order
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	added := 0
	for start := 0; start < len(trackIDs); start += AddBatchSize {
		end := min(start+AddBatchSize, len(trackIDs))
		batch := trackIDs[start:end]

		params := url.Values{}
		params.Set("uri", c.itemsURI(batch))

		resp, err := c.do(ctx, http.MethodPut, "/playlists/"+playlistID+"/items", params, "application/xml", http.StatusOK)
		if err != nil {
			return fmt.Errorf("failed to add tracks %d-%d to playlist: %w", start+1, end, err)
		}

		var addResp PlexResponse
		err = xml.NewDecoder(resp.Body).Decode(&addResp)
		resp.Body.Close()
		if err == nil && addResp.LeafCountAdded != nil && *addResp.LeafCountAdded == 0 {
			c.logger.Warn("plex added no tracks", "playlist", playlistID, "batch", len(batch))
			continue
		}
		added += len(batch)
	}

	if len(trackIDs) > 0 && added == 0 {
		return fmt.Errorf("failed to add any tracks to playlist %s - check that your token has write permissions", playlistID)
	}

	c.logger.Debug("added tracks to playlist", "id", playlistID, "count", added)
	return nil
}

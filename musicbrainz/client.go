package musicbrainz

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the MusicBrainz web service root
	DefaultBaseURL = "https://musicbrainz.org/ws/2"

	userAgent = "PlexSync/1.0 (https://github.com/grrywlsn/plexsync)"
)

// Client wraps the MusicBrainz API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// Recording represents a MusicBrainz recording
type Recording struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title"`
}

// SearchResponse represents the response from the MusicBrainz recording search
type SearchResponse struct {
	RecordingList struct {
		Recordings []Recording `xml:"recording"`
	} `xml:"recording-list"`
}

// ISRCResponse represents the response from MusicBrainz ISRC API
type ISRCResponse struct {
	ISRC struct {
		RecordingList struct {
			Recordings []Recording `xml:"recording"`
		} `xml:"recording-list"`
	} `xml:"isrc"`
}

// NewClient creates a new MusicBrainz client. Requests are limited to one
// per second as MusicBrainz asks of anonymous clients.
func NewClient() *Client {
	return NewClientWithBaseURL(DefaultBaseURL, rate.Every(time.Second))
}

// NewClientWithBaseURL creates a client for another MusicBrainz server
func NewClientWithBaseURL(baseURL string, limit rate.Limit) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent: userAgent,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// get performs a rate limited GET and decodes the XML response into out
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("fmt", "xml")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set required headers for MusicBrainz API
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("MusicBrainz API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode XML response: %w", err)
	}
	return nil
}

// GetMusicBrainzIDByISRC searches for a track by ISRC and returns the MusicBrainz recording ID
func (c *Client) GetMusicBrainzIDByISRC(ctx context.Context, isrc string) (string, error) {
	if isrc == "" {
		return "", fmt.Errorf("ISRC cannot be empty")
	}

	var isrcResp ISRCResponse
	if err := c.get(ctx, "/isrc/"+url.PathEscape(isrc), url.Values{}, &isrcResp); err != nil {
		return "", err
	}

	if len(isrcResp.ISRC.RecordingList.Recordings) == 0 {
		return "", fmt.Errorf("no recordings found for ISRC: %s", isrc)
	}

	return isrcResp.ISRC.RecordingList.Recordings[0].ID, nil
}

// GetMusicBrainzIDByArtistAndTitle searches for a track by artist and title
func (c *Client) GetMusicBrainzIDByArtistAndTitle(ctx context.Context, artist, title string) (string, error) {
	if artist == "" || title == "" {
		return "", fmt.Errorf("artist and title cannot be empty")
	}

	params := url.Values{}
	params.Set("query", searchQuery(artist, title))
	params.Set("limit", "1")

	var searchResp SearchResponse
	if err := c.get(ctx, "/recording/", params, &searchResp); err != nil {
		return "", err
	}

	if len(searchResp.RecordingList.Recordings) == 0 {
		return "", fmt.Errorf("no recordings found for artist: %s, title: %s", artist, title)
	}

	return searchResp.RecordingList.Recordings[0].ID, nil
}

// Lookup returns the recording ID for a track, trying the ISRC first and
// falling back to an artist and title search
func (c *Client) Lookup(ctx context.Context, isrc, artist, title string) (string, error) {
	if isrc != "" {
		id, err := c.GetMusicBrainzIDByISRC(ctx, isrc)
		if err == nil {
			return id, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
	}
	return c.GetMusicBrainzIDByArtistAndTitle(ctx, artist, title)
}

func searchQuery(artist, title string) string {
	return fmt.Sprintf("artist:\"%s\" AND recording:\"%s\"",
		strings.ReplaceAll(artist, "\"", "\\\""),
		strings.ReplaceAll(title, "\"", "\\\""))
}

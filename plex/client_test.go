package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/grrywlsn/plexsync/config"
	"github.com/grrywlsn/plexsync/track"
)

// fakeServer records requests made against a minimal Plex API
type fakeServer struct {
	mu       sync.Mutex
	requests []*http.Request
	mux      *http.ServeMux
}

func newFakeServer(t *testing.T) (*fakeServer, *Client) {
	t.Helper()

	fs := &fakeServer{mux: http.NewServeMux()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.requests = append(fs.requests, r)
		fs.mu.Unlock()

		if r.URL.Query().Get("X-Plex-Token") != "test_token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fs.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Plex: config.PlexConfig{
			URL:              srv.URL + "/",
			Token:            "test_token",
			LibrarySectionID: 3,
			ServerID:         "abc123",
		},
	}
	return fs, NewClient(cfg, nil)
}

func (fs *fakeServer) requestsFor(method, path string) []*http.Request {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var out []*http.Request
	for _, r := range fs.requests {
		if r.Method == method && r.URL.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func TestNewClient(t *testing.T) {
	cfg := &config.Config{
		Plex: config.PlexConfig{
			URL:              "http://test.plex.server:32400/",
			Token:            "test_token",
			LibrarySectionID: 1,
			ServerID:         "test_server_id",
			SkipTLSVerify:    true,
		},
	}

	client := NewClient(cfg, nil)
	if client == nil {
		t.Fatal("Expected client to be created, got nil")
	}

	if client.baseURL != "http://test.plex.server:32400" {
		t.Errorf("Expected baseURL without trailing slash, got %s", client.baseURL)
	}

	if client.token != cfg.Plex.Token {
		t.Errorf("Expected token to be %s, got %s", cfg.Plex.Token, client.token)
	}

	if client.sectionID != cfg.Plex.LibrarySectionID {
		t.Errorf("Expected sectionID to be %d, got %d", cfg.Plex.LibrarySectionID, client.sectionID)
	}

	transport, ok := client.httpClient.Transport.(*http.Transport)
	if !ok || !transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("Expected TLS verification to be disabled")
	}
}

func TestSetServerID(t *testing.T) {
	client := &Client{
		serverID: "old_server_id",
	}

	client.SetServerID("new_server_id")

	if client.ServerID() != "new_server_id" {
		t.Errorf("Expected server ID to be 'new_server_id', got '%s'", client.ServerID())
	}
}

func TestPlexTrackRaw(t *testing.T) {
	testCases := []struct {
		name     string
		input    PlexTrack
		expected track.Raw
	}{
		{
			name:  "album artist only",
			input: PlexTrack{ID: "101", Title: "Roar", Artist: "Katy Perry", Album: "PRISM"},
			expected: track.Raw{
				Title: "Roar", Artists: []string{"Katy Perry"}, Album: "PRISM", ExternalID: "101",
			},
		},
		{
			name:  "track artist credit wins and is split",
			input: PlexTrack{ID: "102", Title: "Run", Artist: "Various Artists", TrackArtist: "A & B", Album: "Hits"},
			expected: track.Raw{
				Title: "Run", Artists: []string{"A", "B"}, Album: "Hits", ExternalID: "102",
			},
		},
		{
			name:  "missing album is kept for validation to reject",
			input: PlexTrack{ID: "103", Title: "Loose", Artist: "C"},
			expected: track.Raw{
				Title: "Loose", Artists: []string{"C"}, ExternalID: "103",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.expected, tc.input.Raw()); diff != "" {
				t.Errorf("Raw() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetServerID(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MediaContainer friendlyName="home" machineIdentifier="srv-42" version="1.40"/>`)
	})

	id, err := client.GetServerID(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id != "srv-42" {
		t.Errorf("Expected server ID 'srv-42', got '%s'", id)
	}
}

func TestGetServerIDMissingIdentifier(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MediaContainer friendlyName="home"/>`)
	})

	if _, err := client.GetServerID(context.Background()); err == nil {
		t.Error("Expected error for missing machine identifier")
	}
}

func TestSearch(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/library/sections/3/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MediaContainer size="2">
  <Track ratingKey="11" title="Roar" grandparentTitle="Katy Perry" parentTitle="PRISM (Deluxe)" duration="223000"/>
  <Track ratingKey="12" title="Roar" grandparentTitle="Various Artists" originalTitle="Katy Perry" parentTitle="Now 86"/>
</MediaContainer>`)
	})

	got, err := client.Search(context.Background(), "Roar Katy Perry")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	expected := []track.Raw{
		{Title: "Roar", Artists: []string{"Katy Perry"}, Album: "PRISM (Deluxe)", ExternalID: "11"},
		{Title: "Roar", Artists: []string{"Katy Perry"}, Album: "Now 86", ExternalID: "12"},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}

	reqs := fs.requestsFor(http.MethodGet, "/library/sections/3/search")
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 search request, got %d", len(reqs))
	}
	q := reqs[0].URL.Query()
	if q.Get("query") != "Roar Katy Perry" {
		t.Errorf("Expected query 'Roar Katy Perry', got '%s'", q.Get("query"))
	}
	if q.Get("type") != PlexMusicTrackType {
		t.Errorf("Expected type %s, got '%s'", PlexMusicTrackType, q.Get("type"))
	}
}

func TestSearchWithSingleQuotes(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/library/sections/3/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MediaContainer size="0"/>`)
	})

	got, err := client.Search(context.Background(), "Don't Stop Me Now Queen")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no results, got %d", len(got))
	}

	reqs := fs.requestsFor(http.MethodGet, "/library/sections/3/search")
	if q := reqs[0].URL.Query().Get("query"); q != "Don't Stop Me Now Queen" {
		t.Errorf("Expected query to survive encoding, got '%s'", q)
	}
}

func TestSearchServerError(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/library/sections/3/search", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.Search(context.Background(), "anything")
	if err == nil {
		t.Fatal("Expected error for server failure")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected status code in error, got %v", err)
	}
}

func TestFindPlaylist(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/playlists", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MediaContainer>
  <Playlist ratingKey="1" title="Chill" smart="1" leafCount="50"/>
  <Playlist ratingKey="2" title="Chill" smart="0" leafCount="12"/>
  <Playlist ratingKey="3" title="chill" smart="0" leafCount="4"/>
</MediaContainer>`)
	})

	got, err := client.FindPlaylist(context.Background(), "Chill")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got == nil || got.ID != "2" {
		t.Fatalf("Expected regular playlist '2', got %+v", got)
	}
	if got.TrackCount != 12 {
		t.Errorf("Expected track count 12, got %d", got.TrackCount)
	}

	id, err := client.FindPlaylistID(context.Background(), "Chill")
	if err != nil || id != "2" {
		t.Errorf("Expected playlist ID '2', got '%s' (%v)", id, err)
	}

	id, err = client.FindPlaylistID(context.Background(), "Workout")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id != "" {
		t.Errorf("Expected no playlist, got '%s'", id)
	}
}

func TestGetPlaylistItemIDs(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/playlists/2/items", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MediaContainer>
  <Track ratingKey="30" title="B" playlistItemID="900"/>
  <Track ratingKey="10" title="A" playlistItemID="901"/>
</MediaContainer>`)
	})

	got, err := client.GetPlaylistItemIDs(context.Background(), "2")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if diff := cmp.Diff([]string{"30", "10"}, got); diff != "" {
		t.Errorf("GetPlaylistItemIDs() mismatch (-want +got):\n%s", diff)
	}
}

func TestCreatePlaylist(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/playlists", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"MediaContainer":{"Metadata":[{"ratingKey":"77","title":"Road Trip"}]}}`)
	})
	fs.mux.HandleFunc("/playlists/77/items", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MediaContainer leafCountAdded="2"/>`)
	})

	id, err := client.CreatePlaylist(context.Background(), "Road Trip", "Songs &amp; more", "37i9dQZF1DXcBWIGoYBM5M", []string{"5", "6", "7"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id != "77" {
		t.Errorf("Expected playlist ID '77', got '%s'", id)
	}

	posts := fs.requestsFor(http.MethodPost, "/playlists")
	if len(posts) != 1 {
		t.Fatalf("Expected 1 create request, got %d", len(posts))
	}
	q := posts[0].URL.Query()
	if q.Get("uri") != "server://abc123/com.plexapp.plugins.library/library/metadata/5" {
		t.Errorf("Unexpected create uri: %s", q.Get("uri"))
	}
	expectedSummary := "Songs & more\n\nsynced from Spotify: https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"
	if q.Get("summary") != expectedSummary {
		t.Errorf("Expected summary %q, got %q", expectedSummary, q.Get("summary"))
	}

	puts := fs.requestsFor(http.MethodPut, "/playlists/77/items")
	if len(puts) != 1 {
		t.Fatalf("Expected 1 add request, got %d", len(puts))
	}
	if uri := puts[0].URL.Query().Get("uri"); uri != "server://abc123/com.plexapp.plugins.library/library/metadata/6,7" {
		t.Errorf("Unexpected add uri: %s", uri)
	}
}

func TestCreatePlaylistWithoutTracks(t *testing.T) {
	_, client := newFakeServer(t)

	if _, err := client.CreatePlaylist(context.Background(), "Empty", "", "", nil); err == nil {
		t.Error("Expected error when creating a playlist without tracks")
	}
}

func TestAddTracksToPlaylistBatches(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/playlists/9/items", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MediaContainer leafCountAdded="1"/>`)
	})

	ids := make([]string, AddBatchSize+1)
	for i := range ids {
		ids[i] = fmt.Sprint(i)
	}

	if err := client.AddTracksToPlaylist(context.Background(), "9", ids); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	puts := fs.requestsFor(http.MethodPut, "/playlists/9/items")
	if len(puts) != 2 {
		t.Fatalf("Expected 2 batched requests, got %d", len(puts))
	}
	if uri := puts[1].URL.Query().Get("uri"); !strings.HasSuffix(uri, fmt.Sprintf("/metadata/%d", AddBatchSize)) {
		t.Errorf("Expected last batch to hold the final track, got %s", uri)
	}
}

func TestAddTracksToPlaylistNothingAdded(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/playlists/9/items", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MediaContainer leafCountAdded="0"/>`)
	})

	if err := client.AddTracksToPlaylist(context.Background(), "9", []string{"1"}); err == nil {
		t.Error("Expected error when Plex adds no tracks")
	}
}

func TestClearPlaylist(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/playlists/4/items", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.ClearPlaylist(context.Background(), "4"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := len(fs.requestsFor(http.MethodDelete, "/playlists/4/items")); got != 1 {
		t.Errorf("Expected 1 delete request, got %d", got)
	}
}

func TestUpdatePlaylistMetadata(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/playlists/4", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if err := client.UpdatePlaylistMetadata(context.Background(), "4", "Chill", "", "xyz"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	puts := fs.requestsFor(http.MethodPut, "/playlists/4")
	if len(puts) != 1 {
		t.Fatalf("Expected 1 update request, got %d", len(puts))
	}
	q := puts[0].URL.Query()
	if q.Get("title") != "Chill" {
		t.Errorf("Expected title 'Chill', got '%s'", q.Get("title"))
	}
	if q.Get("summary") != "synced from Spotify: https://open.spotify.com/playlist/xyz" {
		t.Errorf("Expected attribution-only summary, got '%s'", q.Get("summary"))
	}
}

func TestAddSyncAttribution(t *testing.T) {
	testCases := []struct {
		name        string
		description string
		playlistID  string
		expected    string
	}{
		{"empty description", "", "37i9dQZF1DXcBWIGoYBM5M", "synced from Spotify: https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"},
		{"existing description", "Original description", "37i9dQZF1DXcBWIGoYBM5M", "Original description\n\nsynced from Spotify: https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"},
		{"no playlist ID", "Original description", "", "Original description"},
		{"both empty", "", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := addSyncAttribution(tc.description, tc.playlistID); got != tc.expected {
				t.Errorf("Expected sync attribution to be '%s', got '%s'", tc.expected, got)
			}
		})
	}
}

func TestUnauthorizedToken(t *testing.T) {
	fs, client := newFakeServer(t)
	fs.mux.HandleFunc("/playlists", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<MediaContainer/>`)
	})
	client.token = "wrong"

	if _, err := client.GetPlaylists(context.Background()); err == nil {
		t.Error("Expected error for rejected token")
	}
}

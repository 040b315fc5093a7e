// Package playlistsync copies source playlists into the destination catalog.
// Each source track is normalized, searched for in the destination library and
// matched with a match.Selector; matched destination IDs are written to a
// playlist of the same name.
package playlistsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/grrywlsn/plexsync/match"
	"github.com/grrywlsn/plexsync/track"
)

// DefaultDescription is used for new playlists whose source has no description
const DefaultDescription = "Playlist synchronized from Spotify"

// MergeMode decides what happens to a destination playlist that already exists
type MergeMode string

const (
	// MergeUnion keeps existing items and appends matched tracks not yet present
	MergeUnion MergeMode = "union"
	// MergeReplace clears the playlist and adds all matched tracks. It refuses
	// to clear when any search failed or nothing matched.
	MergeReplace MergeMode = "replace"
	// MergeSkip leaves an existing playlist untouched
	MergeSkip MergeMode = "skip"
)

// ErrDuplicatePlaylist is returned by Run when two source playlists share a name
var ErrDuplicatePlaylist = errors.New("duplicate playlist name")

// Playlist identifies a source playlist
type Playlist struct {
	ID          string
	Name        string
	Description string
}

// Source reads the tracks of a source playlist in playlist order
type Source interface {
	PlaylistTracks(ctx context.Context, playlistID string) ([]track.Raw, error)
}

// Destination is the catalog playlists are written to. Playlists are looked up
// by exact name; FindPlaylistID returns "" when there is none.
type Destination interface {
	Search(ctx context.Context, query string) ([]track.Raw, error)
	FindPlaylistID(ctx context.Context, name string) (string, error)
	GetPlaylistItemIDs(ctx context.Context, playlistID string) ([]string, error)
	CreatePlaylist(ctx context.Context, name, description, sourceID string, trackIDs []string) (string, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
	ClearPlaylist(ctx context.Context, playlistID string) error
	UpdatePlaylistMetadata(ctx context.Context, playlistID, name, description, sourceID string) error
}

// Syncer runs playlist synchronization
type Syncer struct {
	source   Source
	dest     Destination
	selector *match.Selector
	mode     MergeMode
	logger   *slog.Logger
}

// New creates a Syncer. A nil logger uses slog.Default().
func New(source Source, dest Destination, selector *match.Selector, mode MergeMode, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = MergeUnion
	}
	return &Syncer{
		source:   source,
		dest:     dest,
		selector: selector,
		mode:     mode,
		logger:   logger,
	}
}

// Run syncs every playlist in order. Playlists sharing a name are rejected
// before anything is written. A playlist that fails is recorded in its result
// and the run moves on; only context cancellation stops it early.
func (s *Syncer) Run(ctx context.Context, playlists []Playlist) ([]PlaylistResult, error) {
	if err := checkDuplicateNames(playlists); err != nil {
		return nil, err
	}

	results := make([]PlaylistResult, 0, len(playlists))
	for _, p := range playlists {
		result, err := s.SyncPlaylist(ctx, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return results, ctxErr
			}
			s.logger.Error("playlist sync failed", "playlist", p.Name, "error", err)
			result.Err = err
		}
		results = append(results, result)
	}
	return results, nil
}

func checkDuplicateNames(playlists []Playlist) error {
	seen := make(map[string]string, len(playlists))
	for _, p := range playlists {
		if other, ok := seen[p.Name]; ok {
			return fmt.Errorf("%w: %q is used by playlists %s and %s", ErrDuplicatePlaylist, p.Name, other, p.ID)
		}
		seen[p.Name] = p.ID
	}
	return nil
}

// SyncPlaylist matches every track of one source playlist and writes the
// matched destination IDs, most recently added source track first
func (s *Syncer) SyncPlaylist(ctx context.Context, p Playlist) (PlaylistResult, error) {
	result := PlaylistResult{Playlist: p}

	raws, err := s.source.PlaylistTracks(ctx, p.ID)
	if err != nil {
		return result, fmt.Errorf("failed to get tracks for %q: %w", p.Name, err)
	}
	s.logger.Info("syncing playlist", "playlist", p.Name, "tracks", len(raws))

	result.Tracks = make([]TrackResult, 0, len(raws))
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		tr := s.MatchTrack(ctx, raw)
		result.Tracks = append(result.Tracks, tr)
		if tr.Status == StatusMatched {
			result.MatchedIDs = append(result.MatchedIDs, tr.Match.Track.ExternalID())
		}
	}
	slices.Reverse(result.MatchedIDs)

	if err := s.write(ctx, &result); err != nil {
		return result, err
	}
	return result, nil
}

// MatchTrack normalizes one source track and searches the destination for
// it, trying each query in turn until a candidate is accepted
func (s *Syncer) MatchTrack(ctx context.Context, raw track.Raw) TrackResult {
	result := TrackResult{Source: raw}

	t, err := track.New(raw)
	if err != nil {
		result.Status = StatusInvalid
		result.Err = err
		var verr *track.ValidationError
		if errors.As(err, &verr) {
			s.logger.Warn("skipping invalid source track", "field", verr.Field, "title", raw.Title)
		}
		return result
	}
	result.Track = t

	var searchErr error
	for _, q := range Queries(t) {
		candidates, err := s.dest.Search(ctx, q)
		if err != nil {
			s.logger.Warn("search failed", "query", q, "error", err)
			searchErr = err
			continue
		}

		if m, ok := s.selector.SelectRaw(t, candidates); ok {
			s.logger.Debug("matched track", "track", t.String(), "match", m.Track.String(), "score", m.Score, "query", q)
			result.Status = StatusMatched
			result.Match = m
			result.Query = q
			return result
		}
	}

	if searchErr != nil {
		result.Status = StatusError
		result.Err = searchErr
		return result
	}

	s.logger.Debug("no match", "track", t.String())
	result.Status = StatusNoMatch
	return result
}

// Queries returns the destination search queries for a track, most specific
// first: title with all artists, title alone, then title with the first artist
func Queries(t track.Track) []string {
	artists := t.Artists()
	candidates := []string{t.Query(), t.Title(), t.Title() + " " + artists[0]}

	queries := make([]string, 0, len(candidates))
	for _, q := range candidates {
		if !slices.Contains(queries, q) {
			queries = append(queries, q)
		}
	}
	return queries
}

// write creates or merges the destination playlist for a synced result
func (s *Syncer) write(ctx context.Context, result *PlaylistResult) error {
	p := result.Playlist

	id, err := s.dest.FindPlaylistID(ctx, p.Name)
	if err != nil {
		return fmt.Errorf("failed to look up playlist %q: %w", p.Name, err)
	}

	if id == "" {
		if len(result.MatchedIDs) == 0 {
			s.logger.Warn("no matched tracks, playlist not created", "playlist", p.Name)
			result.Action = ActionNone
			return nil
		}

		description := p.Description
		if description == "" {
			description = DefaultDescription
		}
		id, err = s.dest.CreatePlaylist(ctx, p.Name, description, p.ID, result.MatchedIDs)
		if err != nil {
			return fmt.Errorf("failed to create playlist %q: %w", p.Name, err)
		}
		result.DestinationID = id
		result.Action = ActionCreated
		result.Added = len(result.MatchedIDs)
		return nil
	}

	result.DestinationID = id

	switch s.mode {
	case MergeSkip:
		s.logger.Info("playlist exists, leaving it unchanged", "playlist", p.Name)
		result.Action = ActionSkipped
		return nil

	case MergeReplace:
		if n := result.Count(StatusError); n > 0 {
			return fmt.Errorf("not replacing playlist %q: %d tracks could not be searched", p.Name, n)
		}
		if len(result.MatchedIDs) == 0 {
			s.logger.Warn("no matched tracks, playlist not replaced", "playlist", p.Name)
			result.Action = ActionSkipped
			return nil
		}
		previous, err := s.dest.GetPlaylistItemIDs(ctx, id)
		if err != nil {
			return err
		}
		if err := s.dest.ClearPlaylist(ctx, id); err != nil {
			return err
		}
		if err := s.dest.AddTracksToPlaylist(ctx, id, result.MatchedIDs); err != nil {
			if len(previous) > 0 {
				if rerr := s.dest.AddTracksToPlaylist(ctx, id, previous); rerr != nil {
					s.logger.Error("failed to restore playlist", "playlist", p.Name, "tracks", len(previous), "error", rerr)
				}
			}
			return fmt.Errorf("failed to replace playlist %q: %w", p.Name, err)
		}
		result.Action = ActionReplaced
		result.Added = len(result.MatchedIDs)

	default:
		existing, err := s.dest.GetPlaylistItemIDs(ctx, id)
		if err != nil {
			return err
		}
		missing := union(existing, result.MatchedIDs)
		if len(missing) > 0 {
			if err := s.dest.AddTracksToPlaylist(ctx, id, missing); err != nil {
				return err
			}
		}
		result.Action = ActionMerged
		result.Added = len(missing)
	}

	if err := s.dest.UpdatePlaylistMetadata(ctx, id, p.Name, p.Description, p.ID); err != nil {
		s.logger.Warn("failed to update playlist metadata", "playlist", p.Name, "error", err)
	}
	return nil
}

// union returns the IDs of add that are not in existing, once each, in order
func union(existing, add []string) []string {
	present := make(map[string]bool, len(existing)+len(add))
	for _, id := range existing {
		present[id] = true
	}

	var missing []string
	for _, id := range add {
		if present[id] {
			continue
		}
		present[id] = true
		missing = append(missing, id)
	}
	return missing
}

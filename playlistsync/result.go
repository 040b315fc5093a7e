package playlistsync

import (
	"github.com/grrywlsn/plexsync/match"
	"github.com/grrywlsn/plexsync/track"
)

// Status is the outcome of matching one source track
type Status int

const (
	StatusMatched Status = iota
	StatusNoMatch
	StatusInvalid
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusMatched:
		return "matched"
	case StatusNoMatch:
		return "no match"
	case StatusInvalid:
		return "invalid"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Action is what was done to the destination playlist
type Action string

const (
	ActionNone     Action = "none"
	ActionCreated  Action = "created"
	ActionMerged   Action = "merged"
	ActionReplaced Action = "replaced"
	ActionSkipped  Action = "skipped"
)

// TrackResult records how one source track was matched
type TrackResult struct {
	Source track.Raw
	Track  track.Track // zero when Status is StatusInvalid
	Status Status
	Match  match.Match
	Query  string // the search query that produced the match
	Err    error
}

// PlaylistResult records the outcome of syncing one playlist
type PlaylistResult struct {
	Playlist      Playlist
	Tracks        []TrackResult
	MatchedIDs    []string // destination IDs, reverse of source order
	DestinationID string
	Action        Action
	Added         int
	Err           error
}

// Count returns the number of tracks with the given status
func (r PlaylistResult) Count(status Status) int {
	n := 0
	for _, t := range r.Tracks {
		if t.Status == status {
			n++
		}
	}
	return n
}

// MatchRate returns the percentage of source tracks that were matched
func (r PlaylistResult) MatchRate() float64 {
	if len(r.Tracks) == 0 {
		return 0
	}
	return float64(r.Count(StatusMatched)) / float64(len(r.Tracks)) * 100
}

// Unmatched returns the results of tracks that were not matched
func (r PlaylistResult) Unmatched() []TrackResult {
	var out []TrackResult
	for _, t := range r.Tracks {
		if t.Status != StatusMatched {
			out = append(out, t)
		}
	}
	return out
}

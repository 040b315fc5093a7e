package match

import (
	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"github.com/grrywlsn/plexsync/track"
)

// Sentinel is the score of a pair too dissimilar to compare. Every score is
// capped at Sentinel.
const Sentinel = 999

// Default weights and threshold, calibrated together
const (
	DefaultTitleWeight  = 2
	DefaultArtistWeight = 2
	DefaultAlbumWeight  = 1
	DefaultThreshold    = 50
)

// Weights multiplies the per-field edit distances. A zero weight ignores the
// field; album is commonly ignored because singles and their parent albums
// carry the same recording under different names.
type Weights struct {
	Title  int
	Artist int
	Album  int
}

// DefaultWeights returns the weight set DefaultThreshold is calibrated for
func DefaultWeights() Weights {
	return Weights{
		Title:  DefaultTitleWeight,
		Artist: DefaultArtistWeight,
		Album:  DefaultAlbumWeight,
	}
}

// DistanceFunc returns the edit distance between two strings
type DistanceFunc func(a, b string) int

// Levenshtein is the unit-cost edit distance over Unicode code points
func Levenshtein(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// WagnerFischer returns an edit distance with custom insert, delete and
// substitute costs. It compares bytes, not code points.
func WagnerFischer(insertCost, deleteCost, substituteCost int) DistanceFunc {
	if insertCost == 1 && deleteCost == 1 && substituteCost == 1 {
		return Levenshtein
	}
	return func(a, b string) int {
		return smetrics.WagnerFischer(a, b, insertCost, deleteCost, substituteCost)
	}
}

// Scorer computes a weighted dissimilarity score between two tracks. Zero
// means identical metadata; larger is worse.
type Scorer struct {
	weights  Weights
	distance DistanceFunc
}

// NewScorer creates a Scorer. A nil distance uses Levenshtein.
func NewScorer(weights Weights, distance DistanceFunc) *Scorer {
	if distance == nil {
		distance = Levenshtein
	}
	return &Scorer{weights: weights, distance: distance}
}

// Weights returns the scorer's weight set
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score returns the dissimilarity of a and b. Artist lists whose lengths differ
// by more than one score Sentinel regardless of the other fields.
func (s *Scorer) Score(a, b track.Track) int {
	artistCost, ok := s.artistCost(a.Artists(), b.Artists())
	if !ok {
		return Sentinel
	}

	score := s.distance(a.Title(), b.Title())*s.weights.Title +
		artistCost*s.weights.Artist
	if s.weights.Album != 0 {
		score += s.distance(a.Album(), b.Album()) * s.weights.Album
	}

	if score > Sentinel {
		return Sentinel
	}
	return score
}

// artistCost aligns the longer artist list against the shorter one. Each
// artist of the longer list costs its smallest distance to any artist of the
// other list. When one list has exactly one extra entry the worst cost is
// dropped, so a catalog omitting a minor collaborator is not penalized.
//
// This is a nested O(n*m) scan; artist lists rarely exceed a handful of names
// so no assignment algorithm is used.
func (s *Scorer) artistCost(a, b []string) (int, bool) {
	primary, other := a, b
	if len(b) > len(a) {
		primary, other = b, a
	}

	extra := len(primary) - len(other)
	if extra > 1 {
		return 0, false
	}

	total, worst := 0, 0
	for _, p := range primary {
		best := -1
		for _, o := range other {
			if d := s.distance(p, o); best < 0 || d < best {
				best = d
			}
		}
		if best < 0 {
			best = s.distance(p, "")
		}
		total += best
		if best > worst {
			worst = best
		}
	}

	if extra == 1 && len(primary) > 1 {
		total -= worst
	}
	return total, true
}

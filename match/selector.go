package match

import (
	"log/slog"

	"github.com/grrywlsn/plexsync/track"
)

// Match is an accepted candidate together with its score
type Match struct {
	Track track.Track
	Score int
}

// Selector picks the closest candidate for a source track
type Selector struct {
	scorer    *Scorer
	threshold int
	logger    *slog.Logger
}

// NewSelector creates a Selector accepting candidates that score strictly
// below threshold. A nil logger uses slog.Default().
func NewSelector(scorer *Scorer, threshold int, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		scorer:    scorer,
		threshold: threshold,
		logger:    logger,
	}
}

// Threshold returns the acceptance threshold
func (s *Selector) Threshold() int {
	return s.threshold
}

// Select scores every candidate against source and returns the lowest-scoring
// one if its score is below the threshold. Ties keep the earliest candidate.
// An empty candidate list yields no match.
func (s *Selector) Select(source track.Track, candidates []track.Track) (Match, bool) {
	var best Match
	found := false

	for _, candidate := range candidates {
		score := s.scorer.Score(candidate, source)
		s.logger.Debug("scored candidate",
			"source", source.String(),
			"candidate", candidate.String(),
			"album", candidate.Album(),
			"score", score)

		if !found || score < best.Score {
			best = Match{Track: candidate, Score: score}
			found = true
		}
	}

	if !found || best.Score >= s.threshold {
		return Match{}, false
	}
	return best, true
}

// SelectRaw normalizes raw search results and selects among them. Results that
// fail validation, such as entries without album metadata, are skipped since
// they are usually videos or podcasts rather than songs.
func (s *Selector) SelectRaw(source track.Track, raws []track.Raw) (Match, bool) {
	candidates := make([]track.Track, 0, len(raws))
	for _, raw := range raws {
		candidate, err := track.New(raw)
		if err != nil {
			s.logger.Debug("skipping candidate", "title", raw.Title, "error", err)
			continue
		}
		candidates = append(candidates, candidate)
	}
	return s.Select(source, candidates)
}

package match

import (
	"testing"

	"github.com/grrywlsn/plexsync/track"
)

func TestSelectThresholdBoundary(t *testing.T) {
	scorer := NewScorer(Weights{Title: 1, Artist: 0, Album: 0}, nil)
	source := mustTrack(t, "abc", []string{"Artist"}, "Album")
	candidate := mustTrack(t, "abd", []string{"Artist"}, "Album")

	// candidate scores exactly 1
	if _, ok := NewSelector(scorer, 1, nil).Select(source, []track.Track{candidate}); ok {
		t.Error("Expected no match when score equals the threshold")
	}

	m, ok := NewSelector(scorer, 2, nil).Select(source, []track.Track{candidate})
	if !ok {
		t.Fatal("Expected a match when score is one below the threshold")
	}
	if m.Score != 1 {
		t.Errorf("Expected score 1, got %d", m.Score)
	}
	if m.Track.Title() != "abd" {
		t.Errorf("Expected candidate 'abd', got %q", m.Track.Title())
	}
}

func TestSelectPicksLowestScore(t *testing.T) {
	selector := NewSelector(NewScorer(DefaultWeights(), nil), DefaultThreshold, nil)
	source := mustTrack(t, "Roar", []string{"Katy Perry"}, "PRISM")

	candidates := []track.Track{
		mustTrack(t, "Roar (Live)", []string{"Katy Perry"}, "Live Hits"),
		mustTrack(t, "Roar", []string{"Katy Perry"}, "PRISM (Deluxe)"),
		mustTrack(t, "Roar", []string{"Some Cover Band"}, "Covers"),
	}

	m, ok := selector.Select(source, candidates)
	if !ok {
		t.Fatal("Expected a match")
	}
	if m.Track.Album() != "PRISM (Deluxe)" {
		t.Errorf("Expected 'PRISM (Deluxe)' candidate, got %q", m.Track.Album())
	}
	if m.Score != 9 {
		t.Errorf("Expected score 9, got %d", m.Score)
	}
}

func TestSelectTiesKeepFirstCandidate(t *testing.T) {
	selector := NewSelector(NewScorer(DefaultWeights(), nil), DefaultThreshold, nil)
	source := mustTrack(t, "Song", []string{"Artist"}, "Album")

	first, err := track.New(track.Raw{Title: "Song", Artists: []string{"Artist"}, Album: "Album", ExternalID: "first"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := track.New(track.Raw{Title: "Song", Artists: []string{"Artist"}, Album: "Album", ExternalID: "second"})
	if err != nil {
		t.Fatal(err)
	}

	m, ok := selector.Select(source, []track.Track{first, second})
	if !ok {
		t.Fatal("Expected a match")
	}
	if m.Track.ExternalID() != "first" {
		t.Errorf("Expected first candidate, got %q", m.Track.ExternalID())
	}
}

func TestSelectNoCandidates(t *testing.T) {
	selector := NewSelector(NewScorer(DefaultWeights(), nil), DefaultThreshold, nil)
	source := mustTrack(t, "Song", []string{"Artist"}, "Album")

	if _, ok := selector.Select(source, nil); ok {
		t.Error("Expected no match for nil candidates")
	}
	if _, ok := selector.SelectRaw(source, []track.Raw{}); ok {
		t.Error("Expected no match for empty raw candidates")
	}
}

func TestSelectRejectsLineupMismatch(t *testing.T) {
	selector := NewSelector(NewScorer(DefaultWeights(), nil), DefaultThreshold, nil)
	source := mustTrack(t, "Song (feat. B & C)", []string{"A"}, "Album")
	candidate := mustTrack(t, "Song", []string{"A"}, "Album")

	if _, ok := selector.Select(source, []track.Track{candidate}); ok {
		t.Error("Expected no match when artist counts differ by more than one")
	}
}

func TestSelectRawSkipsInvalidCandidates(t *testing.T) {
	selector := NewSelector(NewScorer(DefaultWeights(), nil), DefaultThreshold, nil)
	source := mustTrack(t, "Blinding Lights", []string{"The Weeknd"}, "After Hours")

	raws := []track.Raw{
		// video result without album metadata scores perfectly but is not a song
		{Title: "Blinding Lights", Artists: []string{"The Weeknd"}, ExternalID: "video"},
		{Title: "Blinding Lights", ExternalID: "no-artists", Album: "After Hours"},
		{Title: "Blinding Lights", Artists: []string{"The Weeknd"}, Album: "Blinding Lights", ExternalID: "single"},
	}

	m, ok := selector.SelectRaw(source, raws)
	if !ok {
		t.Fatal("Expected a match")
	}
	if m.Track.ExternalID() != "single" {
		t.Errorf("Expected 'single', got %q", m.Track.ExternalID())
	}
}

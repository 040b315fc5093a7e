package track

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Raw is an unvalidated track as a catalog returns it
type Raw struct {
	Title      string
	Artists    []string
	Album      string
	ExternalID string // catalog-native identifier, empty for source tracks without one
	ISRC       string // optional, source catalog only
}

// Track is a normalized, validated track record. It is used uniformly for the
// source and destination catalogs and is never modified after construction.
type Track struct {
	title      string
	artists    []string
	album      string
	externalID string
}

// ValidationError reports a track that would be missing a required field
type ValidationError struct {
	Field string
	Track string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s cannot be empty in %q", e.Field, e.Track)
}

// New normalizes raw into a Track. Featured and remix artists embedded in the
// title are moved into the artist list. A *ValidationError is returned when the
// title, album or artist list ends up empty.
func New(raw Raw) (Track, error) {
	artists := make([]string, 0, len(raw.Artists))
	for _, a := range raw.Artists {
		artists = appendUnique(artists, canonical(a))
	}

	title, artists := Normalize(canonical(raw.Title), artists)

	t := Track{
		title:      title,
		artists:    artists,
		album:      canonical(raw.Album),
		externalID: strings.TrimSpace(raw.ExternalID),
	}
	if err := t.validate(); err != nil {
		return Track{}, err
	}
	return t, nil
}

func (t Track) validate() error {
	switch {
	case t.title == "":
		return &ValidationError{Field: "title", Track: t.String()}
	case t.album == "":
		return &ValidationError{Field: "album", Track: t.String()}
	case len(t.artists) == 0:
		return &ValidationError{Field: "artists", Track: t.String()}
	}
	return nil
}

// Title returns the cleaned title
func (t Track) Title() string { return t.title }

// Album returns the album name
func (t Track) Album() string { return t.album }

// ExternalID returns the catalog-native identifier, if any
func (t Track) ExternalID() string { return t.externalID }

// Artists returns a copy of the de-duplicated artist list. Original artists come
// first, followed by artists extracted from the title in discovery order.
func (t Track) Artists() []string {
	out := make([]string, len(t.artists))
	copy(out, t.artists)
	return out
}

// Query builds the search string used against the destination catalog
func (t Track) Query() string {
	if len(t.artists) == 0 {
		return t.title
	}
	return t.title + " " + strings.Join(t.artists, " ")
}

func (t Track) String() string {
	return fmt.Sprintf("%s - %s", strings.Join(t.artists, ", "), t.title)
}

// canonical trims s and converts it to Unicode NFC so that composed and
// decomposed spellings of the same name compare equal.
func canonical(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

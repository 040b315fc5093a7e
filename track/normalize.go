package track

import (
	"regexp"
	"strings"
)

// annotationRule describes one textual pattern that embeds artist names in a
// track title. The first capture group of pattern holds the artist text.
type annotationRule struct {
	name    string
	pattern *regexp.Regexp
	drop    string // token removed from the captured text
	cutset  string // characters trimmed from both ends of the captured text
	strip   bool   // remove the matched clause from the title
}

// annotationRules are applied in order, each on the title left by the previous
// one. Stripping rules repeat until the title stops matching so that nested
// clauses are removed in one call. Remix clauses stay in the title since they
// tell versions apart.
var annotationRules = []annotationRule{
	{
		name:    "feat parentheses",
		pattern: regexp.MustCompile(`\s*\(feat(?:uring)?(?:\.\s*|\s+)([^()]*)\)`),
		cutset:  " ",
		strip:   true,
	},
	{
		name:    "feat brackets",
		pattern: regexp.MustCompile(`\s*\[feat(?:uring)?(?:\.\s*|\s+)([^\[\]]*)\]`),
		cutset:  " ",
		strip:   true,
	},
	{
		name:    "dash remix",
		pattern: regexp.MustCompile(` - (.+?) Remix\b`),
		drop:    " Remix",
		cutset:  " -",
	},
	{
		name:    "parentheses remix",
		pattern: regexp.MustCompile(` \(([^()]+?) Remix\)`),
		drop:    " Remix",
		cutset:  " ()",
	},
	{
		name:    "brackets remix",
		pattern: regexp.MustCompile(` \[([^\[\]]+?) Remix\]`),
		drop:    " Remix",
		cutset:  " []",
	},
}

func (r annotationRule) extract(captured string) string {
	if r.drop != "" {
		captured = strings.ReplaceAll(captured, r.drop, "")
	}
	return strings.Trim(captured, r.cutset)
}

// Normalize moves featured and remix artists found in title into the artist
// list and returns the cleaned title with the enlarged list. The input slice is
// not modified. Artists are compared case-sensitively and never duplicated.
//
// Normalize is idempotent: feat. clauses, nested ones included, are removed
// from the title on the first pass and remix artists are already present on
// the second.
func Normalize(title string, artists []string) (string, []string) {
	out := make([]string, 0, len(artists))
	for _, a := range artists {
		out = appendUnique(out, a)
	}

	for _, rule := range annotationRules {
		for {
			matches := rule.pattern.FindAllStringSubmatch(title, -1)
			if len(matches) == 0 {
				break
			}
			for _, m := range matches {
				for _, a := range SplitArtists(rule.extract(m[1])) {
					out = appendUnique(out, a)
				}
			}
			if !rule.strip {
				break
			}
			title = rule.pattern.ReplaceAllString(title, "")
		}
	}

	return strings.TrimSpace(title), out
}

// SplitArtists splits an artist credit such as "A, B & C x D" into names.
//
// The text is split on ", " first. Tokens containing " & " keep their first
// segment in place and append the rest, then a second pass over the grown list
// does the same for " x ".
func SplitArtists(s string) []string {
	tokens := strings.Split(strings.TrimSpace(s), ", ")
	tokens = splitInPlace(tokens, " & ")
	tokens = splitInPlace(tokens, " x ")

	out := tokens[:0]
	for _, tok := range tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// splitInPlace scans only the tokens present when it starts; segments it
// appends are left for the next separator.
func splitInPlace(tokens []string, sep string) []string {
	n := len(tokens)
	for i := 0; i < n; i++ {
		if !strings.Contains(tokens[i], sep) {
			continue
		}
		parts := strings.Split(tokens[i], sep)
		tokens[i] = parts[0]
		tokens = append(tokens, parts[1:]...)
	}
	return tokens
}

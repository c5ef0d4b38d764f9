// Package book canonicalizes (title, authors) pairs so the same work reported
// with inconsistent case, diacritics, punctuation or author ordering matches
// across TBR exports and seller responses.
package book

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// \s alone is ASCII only; \p{Z} adds NBSP, U+2028 and friends.
	whitespace = regexp.MustCompile(`[\s\p{Z}\x{85}\v]+`)
	// Anything that is not a letter, digit or space after folding.
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	// Author lists arrive as "A, B", "A & B", "A and B" or "A; B".
	authorSeparators = regexp.MustCompile(`\s*(?:,|;|&|\band\b)\s*`)

	folder = cases.Fold()

	// Letters that do not decompose under NFKD. Applied after marks are
	// stripped so Ǿ and ǽ reach it as ø and æ.
	foldTable = strings.NewReplacer(
		"ø", "o", "æ", "ae", "œ", "oe", "ł", "l", "đ", "d", "ð", "d",
		"þ", "th", "ı", "i", "ß", "ss",
		"‘", "'", "’", "'", "‚", "'", "“", "\"", "”", "\"", "„", "\"",
		"–", "-", "—", "-", "‐", "-", "…", "...",
	)
)

// Identity is a normalized (title, authors) pair used as a matching key.
// Authors holds the normalized author names sorted and joined with ", ".
type Identity struct {
	Title   string `json:"title" yaml:"title"`
	Authors string `json:"authors" yaml:"authors"`
}

// IsZero reports whether the identity is empty. An empty identity never
// matches anything, including another empty identity.
func (id Identity) IsZero() bool {
	return id.Title == "" || id.Authors == ""
}

// String returns "title by authors".
func (id Identity) String() string {
	return id.Title + " by " + id.Authors
}

// Normalize builds the identity for a raw title and author list. It never
// fails: empty or unusable input yields the zero Identity.
func Normalize(title, authors string) Identity {
	t := NormalizeTitle(title)
	a := NormalizeAuthors(authors)
	if t == "" || a == "" {
		return Identity{}
	}
	return Identity{Title: t, Authors: a}
}

// NormalizeText folds case, transliterates diacritics to ASCII where a close
// form exists, unifies quotes and dashes, collapses whitespace and trims.
// NormalizeText(NormalizeText(s)) == NormalizeText(s).
func NormalizeText(s string) string {
	s = strings.Map(dropControl, s)
	s = folder.String(s)
	s = stripMarks(s)
	// NFKD can surface compatibility forms with upper case (e.g. ℌ -> H).
	s = folder.String(s)
	s = foldTable.Replace(s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeTitle is NormalizeText with punctuation removed. Apostrophes are
// dropped so "Sorcerer's" and "Sorcerers" agree.
func NormalizeTitle(title string) string {
	s := NormalizeText(title)
	s = strings.ReplaceAll(s, "'", "")
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeAuthors splits an author list, normalizes every name and returns
// the de-duplicated names sorted and joined with ", ".
func NormalizeAuthors(authors string) string {
	names := AuthorNames(authors)
	return strings.Join(names, ", ")
}

// AuthorNames returns the sorted, de-duplicated normalized author names.
func AuthorNames(authors string) []string {
	parts := authorSeparators.Split(NormalizeText(authors), -1)

	seen := make(map[string]struct{}, len(parts))
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := normalizeName(part)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalizeName removes punctuation from a single author name and joins
// runs of initials: "j. r. r. tolkien" and "j.r.r. tolkien" both become
// "jrr tolkien".
func normalizeName(name string) string {
	name = strings.ReplaceAll(name, ".", " ")
	name = strings.ReplaceAll(name, "'", "")
	name = punctuation.ReplaceAllString(name, " ")

	fields := strings.Fields(name)
	out := make([]string, 0, len(fields))
	initials := ""
	for _, f := range fields {
		if len([]rune(f)) == 1 {
			initials += f
			continue
		}
		if initials != "" {
			out = append(out, initials)
			initials = ""
		}
		out = append(out, f)
	}
	if initials != "" {
		out = append(out, initials)
	}
	return strings.Join(out, " ")
}

// ShortTitle returns the title without its subtitle ("Dune: Book One" ->
// "Dune"), or "" when the title has no subtitle.
func ShortTitle(title string) string {
	idx := strings.Index(title, ":")
	if idx <= 0 {
		return ""
	}
	return strings.TrimSpace(title[:idx])
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func dropControl(r rune) rune {
	if r == 0 || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
		return -1
	}
	return r
}

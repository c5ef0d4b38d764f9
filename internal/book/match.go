package book

// Seller search results rarely echo the exact TBR title ("The Hobbit" vs
// "The Hobbit, or There and Back Again"), so candidates are scored by
// Levenshtein similarity on normalized titles plus author overlap.

// DefaultTitleThreshold is the minimum TitleSimilarity for a search hit to
// be accepted as the same work.
const DefaultTitleThreshold = 0.8

// Matches reports whether two identities refer to the same work. Zero
// identities never match.
func Matches(a, b Identity) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return a == b
}

// TitleSimilarity returns a score in [0, 1] where 1 is an exact match of the
// normalized titles.
func TitleSimilarity(a, b string) float64 {
	na := []rune(NormalizeTitle(a))
	nb := []rune(NormalizeTitle(b))

	if len(na) == 0 || len(nb) == 0 {
		return 0
	}
	if string(na) == string(nb) {
		return 1
	}

	distance := levenshteinDistance(na, nb)
	maxLen := max(len(na), len(nb))
	return 1.0 - float64(distance)/float64(maxLen)
}

// AuthorsOverlap reports whether the two raw author lists share at least
// one normalized name.
func AuthorsOverlap(a, b string) bool {
	names := make(map[string]struct{})
	for _, n := range AuthorNames(a) {
		names[n] = struct{}{}
	}
	for _, n := range AuthorNames(b) {
		if _, ok := names[n]; ok {
			return true
		}
	}
	return false
}

// Candidate is a seller search hit reduced to what matching needs.
type Candidate struct {
	Title   string
	Authors string
}

// BestMatch returns the index of the candidate that best matches want, or -1.
// A candidate must share an author with want and reach threshold on title
// similarity. Earlier candidates win ties.
func BestMatch(want Identity, candidates []Candidate, threshold float64) int {
	if want.IsZero() {
		return -1
	}

	best := -1
	bestScore := 0.0
	for i, c := range candidates {
		if !AuthorsOverlap(want.Authors, c.Authors) {
			continue
		}
		score := TitleSimilarity(want.Title, c.Title)
		if score < threshold {
			continue
		}
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

// levenshteinDistance calculates the edit distance between two rune slices.
func levenshteinDistance(s1, s2 []rune) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	rows := len(s1) + 1
	cols := len(s2) + 1
	matrix := make([][]int, rows)
	for i := range matrix {
		matrix[i] = make([]int, cols)
		matrix[i][0] = i
	}
	for j := 0; j < cols; j++ {
		matrix[0][j] = j
	}

	for i := 1; i < rows; i++ {
		for j := 1; j < cols; j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}

			deletion := matrix[i-1][j] + 1
			insertion := matrix[i][j-1] + 1
			substitution := matrix[i-1][j-1] + cost

			matrix[i][j] = min(deletion, insertion, substitution)
		}
	}

	return matrix[rows-1][cols-1]
}

package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Fold applies NFKC, lower-cases and collapses whitespace.
func Fold(s string) string {
	return CollapseSpace(strings.ToLower(norm.NFKC.String(s)))
}

// CollapseSpace trims s and replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Tokens splits folded text into alphanumeric tokens.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// FindWord returns the byte span of the first occurrence of phrase in text
// that is not glued to a neighbouring letter or digit. Both arguments are
// expected to be lower-cased already.
func FindWord(text, phrase string) (int, int, bool) {
	if phrase == "" {
		return 0, 0, false
	}
	offset := 0
	for offset <= len(text)-len(phrase) {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return 0, 0, false
		}
		start := offset + i
		end := start + len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return start, end, true
		}
		offset = start + 1
	}
	return 0, 0, false
}

// ContainsWord reports whether FindWord succeeds.
func ContainsWord(text, phrase string) bool {
	_, _, ok := FindWord(text, phrase)
	return ok
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r := lastRune(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r := []rune(text[i:])[0]
	return !isWordRune(r)
}

func lastRune(s string) rune {
	runes := []rune(s)
	return runes[len(runes)-1]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Ratio is the normalized indel similarity of a and b in [0,1]:
// 2*LCS / (len(a)+len(b)), measured in runes. Two empty strings score 1.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return float64(2*lcs(ra, rb)) / float64(total)
}

// TokenSortRatio compares a and b after sorting their tokens.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	tokens := Tokens(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func lcs(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

package dedupe

import (
	"github.com/spigell/jobnorm/internal/normalize"
)

// DefaultShingleSize is the rune length of a shingle.
const DefaultShingleSize = 5

// Shingles returns the distinct k-rune shingles of the folded text in order
// of first appearance. Text shorter than k is a single shingle; empty text
// has none.
func Shingles(text string, k int) []string {
	if k <= 0 {
		k = DefaultShingleSize
	}
	runes := []rune(normalize.Fold(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) < k {
		return []string{string(runes)}
	}

	seen := make(map[string]struct{}, len(runes)-k+1)
	out := make([]string, 0, len(runes)-k+1)
	for i := 0; i+k <= len(runes); i++ {
		s := string(runes[i : i+k])
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Text picks the text used for duplicate detection: the description when it
// has content, otherwise the title.
func Text(description, title string) string {
	if d := normalize.Fold(description); d != "" {
		return d
	}
	return normalize.Fold(title)
}

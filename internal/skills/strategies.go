package skills

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/spigell/jobnorm/internal/normalize"
	"github.com/spigell/jobnorm/internal/utils"
)

const (
	confidenceExact    = 0.9
	confidenceFuzzyMin = 0.6
	confidenceFuzzyMul = 0.35
	fuzzyThreshold     = 0.85
	confidencePattern  = 0.7
	confidenceCustom   = 0.75
	confidenceSection  = 0.65

	minFragment = 3
	maxFragment = 40
	maxGram     = 3
)

// matchNER finds dictionary names and aliases on word boundaries, then tries
// fuzzy n-gram matches for the names that were not found exactly.
func matchNER(text string, idx *index) []Match {
	folded := normalize.Fold(text)
	exact := make(map[string]bool)

	var out []Match
	for _, p := range idx.dict {
		if exact[p.skill] {
			continue
		}
		start, end, ok := normalize.FindWord(folded, p.text)
		if !ok {
			continue
		}
		exact[p.skill] = true
		out = append(out, Match{
			Skill:      p.skill,
			Confidence: confidenceExact,
			Evidence:   utils.Snippet(folded, start, end, evidenceLimit),
			Source:     StrategyNER,
		})
	}

	return append(out, matchFuzzy(folded, idx.names, exact)...)
}

func matchFuzzy(folded string, names []string, exact map[string]bool) []Match {
	tokens := normalize.Tokens(folded)
	best := make(map[string]Match)
	var order []string

	for n := 1; n <= maxGram; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			gram := strings.Join(tokens[i:i+n], " ")
			gramLen := utf8.RuneCountInString(gram)
			if gramLen < 4 {
				continue
			}
			for _, name := range names {
				if exact[name] || !comparableLength(gramLen, utf8.RuneCountInString(name)) {
					continue
				}
				score := normalize.Ratio(gram, name)
				if score < fuzzyThreshold || score >= 1 {
					continue
				}
				m := Match{
					Skill:      name,
					Confidence: confidenceFuzzyMin + confidenceFuzzyMul*score,
					Evidence:   gram,
					Source:     StrategyNER,
				}
				current, ok := best[name]
				if !ok {
					order = append(order, name)
				}
				if !ok || m.Confidence > current.Confidence {
					best[name] = m
				}
			}
		}
	}

	out := make([]Match, 0, len(order))
	for _, name := range order {
		out = append(out, best[name])
	}
	return out
}

// comparableLength discards pairs whose length difference alone keeps the
// ratio below the fuzzy threshold.
func comparableLength(a, b int) bool {
	shorter, longer := a, b
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	return float64(2*shorter)/float64(shorter+longer) >= fuzzyThreshold
}

func matchPatterns(text string, idx *index) []Match {
	folded := normalize.Fold(text)
	var out []Match
	for _, p := range idx.patterns {
		loc := p.re.FindStringSubmatchIndex(folded)
		if loc == nil {
			continue
		}
		out = append(out, Match{
			Skill:      p.skill,
			Confidence: confidencePattern,
			Evidence:   utils.Snippet(folded, loc[2], loc[3], evidenceLimit),
			Source:     StrategyPatterns,
		})
	}
	return out
}

func matchCustom(text string, idx *index) []Match {
	folded := normalize.Fold(text)
	seen := make(map[string]bool)
	var out []Match
	for _, p := range idx.custom {
		if seen[p.skill] {
			continue
		}
		start, end, ok := normalize.FindWord(folded, p.text)
		if !ok {
			continue
		}
		seen[p.skill] = true
		out = append(out, Match{
			Skill:      p.skill,
			Confidence: confidenceCustom,
			Evidence:   utils.Snippet(folded, start, end, evidenceLimit),
			Source:     StrategyCustom,
		})
	}
	return out
}

var (
	sectionHeaderRe = regexp.MustCompile(`^(?:[a-z&/]+\s+){0,3}?(skills|requirements|qualifications|competencies)\b[^:]{0,30}?(?::\s*(.*))?$`)
	headerLikeRe    = regexp.MustCompile(`^[^:]{1,50}:$`)
	fragmentSplitRe = regexp.MustCompile(`[,;\n•·|]`)
)

const bulletChars = "-*•·–—>#\t\r "

// matchSections reads the lines under skills or requirements style headers
// and keeps short fragments as skills.
func matchSections(text string) []Match {
	lines := strings.Split(strings.ToLower(norm.NFKC.String(text)), "\n")

	var out []Match
	seen := make(map[string]bool)
	for i := 0; i < len(lines); i++ {
		header := strings.Trim(lines[i], bulletChars)
		m := sectionHeaderRe.FindStringSubmatch(header)
		if m == nil || len(header) > 60 {
			continue
		}

		body := []string{m[2]}
		j := i + 1
		for ; j < len(lines); j++ {
			line := strings.Trim(lines[j], bulletChars)
			if headerLikeRe.MatchString(line) {
				break
			}
			body = append(body, line)
		}
		i = j - 1

		for _, fragment := range fragmentSplitRe.Split(strings.Join(body, "\n"), -1) {
			fragment = normalize.CollapseSpace(strings.TrimRight(strings.Trim(fragment, bulletChars), "."))
			n := utf8.RuneCountInString(fragment)
			if n < minFragment || n > maxFragment || seen[fragment] {
				continue
			}
			seen[fragment] = true
			out = append(out, Match{
				Skill:      fragment,
				Confidence: confidenceSection,
				Evidence:   utils.TruncateForLog(fragment, evidenceLimit),
				Source:     StrategySection,
			})
		}
	}
	return out
}

package normalize

import (
	"regexp"

	"github.com/spigell/jobnorm/internal/utils"
)

type educationLevel struct {
	name string
	re   *regexp.Regexp
}

// Highest first.
var educationLevels = []educationLevel{
	{"phd", regexp.MustCompile(`(?i)\b(ph\.?\s?d|doctorate|doctoral)\b`)},
	{"masters", regexp.MustCompile(`(?i)\b(master'?s?|msc|m\.sc|mba|postgraduate|post-graduate)\b`)},
	{"bachelors", regexp.MustCompile(`(?i)\b(bachelor'?s?|bsc|b\.sc|bcom|b\.com|undergraduate|university degree|degree)\b`)},
	{"diploma", regexp.MustCompile(`(?i)\b(higher national diploma|diploma|hnd)\b`)},
	{"certificate", regexp.MustCompile(`(?i)\b(certificate|certification|cpa|acca|cisa)\b`)},
	{"high_school", regexp.MustCompile(`(?i)\b(high school|secondary school|kcse|o-level|a-level)\b`)},
}

// Education returns the highest education level mentioned in any of texts.
func Education(texts ...string) Field {
	for _, level := range educationLevels {
		for _, text := range texts {
			loc := level.re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			return Field{
				Value:      level.name,
				Confidence: 0.8,
				Evidence:   utils.Snippet(text, loc[0], loc[1], evidenceLimit),
				Source:     SourceRegex,
			}
		}
	}
	return Field{}
}

package normalize

import (
	"regexp"
	"strconv"

	"github.com/spigell/jobnorm/internal/utils"
)

var experienceRe = regexp.MustCompile(`(?i)(\d+)\s*(\+|-|–|to)?\s*(\d+)?\s*(?:years?|yrs?)\b`)

const maxExperienceYears = 50

// Experience is a years-of-experience range. Max is zero when the range is
// open ended ("5+ years").
type Experience struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ExperienceYears returns the first plausible years range found in texts,
// trying them in order.
func ExperienceYears(texts ...string) (Experience, Field) {
	for _, text := range texts {
		for _, m := range experienceRe.FindAllStringSubmatchIndex(text, -1) {
			minYears, err := strconv.Atoi(text[m[2]:m[3]])
			if err != nil || minYears > maxExperienceYears {
				continue
			}

			exp := Experience{Min: minYears, Max: minYears}
			sep := ""
			if m[4] >= 0 {
				sep = text[m[4]:m[5]]
			}
			switch {
			case m[6] >= 0:
				maxYears, err := strconv.Atoi(text[m[6]:m[7]])
				if err != nil || maxYears > maxExperienceYears {
					continue
				}
				exp.Max = maxYears
			case sep == "+":
				exp.Max = 0
			}
			if exp.Max != 0 && exp.Min > exp.Max {
				exp.Min, exp.Max = exp.Max, exp.Min
			}

			return exp, Field{
				Value:      exp,
				Confidence: 0.8,
				Evidence:   utils.Snippet(text, m[0], m[1], evidenceLimit),
				Source:     SourceRegex,
			}
		}
	}
	return Experience{}, Field{}
}

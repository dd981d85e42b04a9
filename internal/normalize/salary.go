package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/spigell/jobnorm/internal/utils"
)

// Salary is a parsed pay range.
type Salary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
	Period   string  `json:"period,omitempty"`
}

var (
	currencyRe = regexp.MustCompile(`(?i)(\b(?:kes|kshs?|usd|eur|gbp|ugx|tzs|ngn|zar)\b|[$€£])`)
	salaryRe   = regexp.MustCompile(`(?i)(\d+(?:,\d{3})*(?:\.\d+)?)\s*(k|m)?\b(?:\s*(?:-|–|—|to)\s*(?:[a-z]{3}\.?|[$€£])?\s*(\d+(?:,\d{3})*(?:\.\d+)?)\s*(k|m)?\b)?`)
	periodRe   = regexp.MustCompile(`(?i)\b(hourly|daily|weekly|monthly|annually|yearly|annual)\b|(?:per|/|a)\s*(hour|hr|day|week|month|mo|year|yr|annum)\b`)
)

var currencyCodes = map[string]string{
	"kes": "KES", "ksh": "KES", "kshs": "KES",
	"usd": "USD", "$": "USD",
	"eur": "EUR", "€": "EUR",
	"gbp": "GBP", "£": "GBP",
	"ugx": "UGX", "tzs": "TZS", "ngn": "NGN", "zar": "ZAR",
}

var periods = map[string]string{
	"hourly": "hour", "hour": "hour", "hr": "hour",
	"daily": "day", "day": "day",
	"weekly": "week", "week": "week",
	"monthly": "month", "month": "month", "mo": "month",
	"annually": "year", "yearly": "year", "annual": "year", "year": "year", "yr": "year", "annum": "year",
}

// ParseSalary extracts the first pay figure or range from text. It reports
// false when text has no number.
func ParseSalary(text string) (Salary, Field, bool) {
	m := salaryRe.FindStringSubmatchIndex(text)
	if m == nil {
		return Salary{}, Field{}, false
	}

	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return text[m[2*i]:m[2*i+1]]
	}

	low, ok := parseAmount(group(1))
	if !ok {
		return Salary{}, Field{}, false
	}
	high := low
	lowSuffix, highSuffix := strings.ToLower(group(2)), strings.ToLower(group(4))
	if group(3) != "" {
		if v, ok := parseAmount(group(3)); ok {
			high = v
		}
		// "80-100k" means both ends are in thousands.
		if lowSuffix == "" && highSuffix != "" && low < 1000 {
			lowSuffix = highSuffix
		}
		high *= multiplier(highSuffix)
	} else {
		high *= multiplier(lowSuffix)
	}
	low *= multiplier(lowSuffix)

	if low > high {
		low, high = high, low
	}

	sal := Salary{Min: low, Max: high}
	if c := currencyRe.FindString(text); c != "" {
		sal.Currency = currencyCodes[strings.ToLower(c)]
	}
	if p := periodRe.FindStringSubmatch(text); p != nil {
		word := p[1]
		if word == "" {
			word = p[2]
		}
		sal.Period = periods[strings.ToLower(word)]
	}

	return sal, Field{
		Value:      sal,
		Confidence: 0.85,
		Evidence:   utils.Snippet(text, m[0], m[1], evidenceLimit),
		Source:     SourceRegex,
	}, true
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func multiplier(suffix string) float64 {
	switch suffix {
	case "k":
		return 1_000
	case "m":
		return 1_000_000
	default:
		return 1
	}
}

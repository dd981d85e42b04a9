package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleSplitRe = regexp.MustCompile(`(?i)^(.+?)\s+(?:at|@|-|–|\|)\s+(.+)$`)

// SplitTitle separates "Role at Company" and "Role - Company" titles.
func SplitTitle(title string) (string, string, bool) {
	m := titleSplitRe.FindStringSubmatch(CollapseSpace(title))
	if m == nil {
		return "", "", false
	}
	role := strings.TrimSpace(m[1])
	company := strings.TrimSpace(m[2])
	if role == "" || company == "" {
		return "", "", false
	}
	return role, company, true
}

// Company canonicalizes the raw company name, falling back to the company
// part of the title when raw is empty.
func (n *Normalizer) Company(raw, title string) (string, Field) {
	source := SourceRaw
	evidence := CollapseSpace(raw)
	name := raw
	if strings.TrimSpace(name) == "" {
		_, company, ok := SplitTitle(title)
		if !ok {
			return "", Field{}
		}
		name = company
		source = SourceTitleSplit
		evidence = CollapseSpace(title)
	}

	data := n.tables()
	key := stripLegalSuffixes(companyKey(name), data.LegalSuffixes)
	if key == "" {
		return "", Field{}
	}

	for _, alias := range data.CompanyAliases {
		if alias.Alias == key {
			return alias.Canonical, Field{Value: alias.Canonical, Confidence: 0.9, Evidence: evidence, Source: SourceRegistry}
		}
	}

	canonical := cases.Title(language.Und).String(key)
	confidence := 0.7
	if source == SourceTitleSplit {
		confidence = 0.6
	}
	return canonical, Field{Value: canonical, Confidence: confidence, Evidence: evidence, Source: source}
}

// companyKey folds the name and drops punctuation except '&'.
func companyKey(name string) string {
	folded := Fold(name)
	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '&':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return CollapseSpace(b.String())
}

func stripLegalSuffixes(key string, suffixes []string) string {
	for {
		stripped := false
		for _, suffix := range suffixes {
			if key == suffix {
				continue
			}
			if strings.HasSuffix(key, " "+suffix) {
				key = strings.TrimSpace(strings.TrimSuffix(key, suffix))
				stripped = true
			}
		}
		if !stripped {
			return key
		}
	}
}

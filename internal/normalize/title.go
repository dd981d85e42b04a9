package normalize

import (
	"strings"
)

const (
	FamilyOther      = "other"
	SeniorityDefault = "mid"
)

// TitleResult is the outcome of title normalization.
type TitleResult struct {
	Family    string
	Canonical string
	// Aliases of the matched registry entry, empty when nothing matched.
	Aliases []string
	Matched bool
	// Evidence is the alias or canonical name found in the raw title.
	Evidence string
}

// Title maps a raw title onto the first registry entry whose canonical name
// or alias occurs in it. Unmatched titles keep their cleaned text and fall in
// the "other" family.
func (n *Normalizer) Title(raw string) TitleResult {
	cleaned := Fold(raw)
	if cleaned == "" {
		return TitleResult{Family: FamilyOther}
	}

	data := n.tables()
	for _, entry := range data.Titles {
		hit := ""
		if strings.Contains(cleaned, entry.Canonical) {
			hit = entry.Canonical
		} else {
			for _, alias := range entry.Aliases {
				if strings.Contains(cleaned, alias) {
					hit = alias
					break
				}
			}
		}
		if hit == "" {
			continue
		}

		family := FamilyOther
		for _, bucket := range data.Families {
			if containsAnyWord(entry.Canonical, bucket.Keywords) {
				family = bucket.Family
				break
			}
		}

		return TitleResult{
			Family:    family,
			Canonical: entry.Canonical,
			Aliases:   append([]string(nil), entry.Aliases...),
			Matched:   true,
			Evidence:  hit,
		}
	}

	return TitleResult{Family: FamilyOther, Canonical: cleaned, Evidence: cleaned}
}

// TitleField wraps Title as an entity field.
func (n *Normalizer) TitleField(raw string) (TitleResult, Field) {
	res := n.Title(raw)
	if res.Canonical == "" {
		return res, Field{}
	}
	field := Field{
		Value:      map[string]string{"canonical": res.Canonical, "family": res.Family},
		Confidence: 0.5,
		Evidence:   res.Evidence,
		Source:     SourceRaw,
	}
	if res.Matched {
		field.Confidence = 0.9
		field.Source = SourceRegistry
	}
	return res, field
}

// Seniority returns the level of the first tier with a keyword in the title,
// and the keyword itself. Titles without one are "mid".
func (n *Normalizer) Seniority(title string) (string, string) {
	cleaned := Fold(title)
	if cleaned == "" {
		return SeniorityDefault, ""
	}
	for _, tier := range n.tables().Seniority {
		for _, kw := range tier.Keywords {
			if ContainsWord(cleaned, kw) {
				return tier.Level, kw
			}
		}
	}
	return SeniorityDefault, ""
}

func (n *Normalizer) SeniorityField(title string) (string, Field) {
	level, evidence := n.Seniority(title)
	if evidence == "" {
		return level, Field{Value: level, Confidence: 0.5, Evidence: Fold(title), Source: SourceRule}
	}
	return level, Field{Value: level, Confidence: 0.8, Evidence: evidence, Source: SourceRegistry}
}

func containsAnyWord(text string, words []string) bool {
	for _, w := range words {
		if ContainsWord(text, w) {
			return true
		}
	}
	return false
}

package normalize

// LocationResult is a canonical location.
type LocationResult struct {
	Canonical string
	City      string
	Country   string
	Remote    bool
	Matched   bool
}

// Location resolves a raw location through the alias table. Remote keywords
// set Remote independently of the alias lookup. Unknown places keep their
// cleaned raw text and an empty country.
func (n *Normalizer) Location(raw string) (LocationResult, Field) {
	cleaned := CollapseSpace(raw)
	folded := Fold(raw)
	if folded == "" {
		return LocationResult{}, Field{}
	}

	data := n.tables()
	res := LocationResult{Canonical: cleaned}
	for _, kw := range data.RemoteKeywords {
		if ContainsWord(folded, kw) {
			res.Remote = true
			break
		}
	}

	for _, loc := range data.Locations {
		if !ContainsWord(folded, loc.Alias) {
			continue
		}
		res.City = loc.City
		res.Country = loc.Country
		res.Matched = true
		res.Canonical = loc.City
		if res.Canonical == "" {
			res.Canonical = loc.Country
		}
		return res, Field{
			Value:      map[string]any{"canonical": res.Canonical, "country": res.Country, "remote": res.Remote},
			Confidence: 0.9,
			Evidence:   cleaned,
			Source:     SourceRegistry,
		}
	}

	return res, Field{
		Value:      map[string]any{"canonical": res.Canonical, "country": "", "remote": res.Remote},
		Confidence: 0.5,
		Evidence:   cleaned,
		Source:     SourceRaw,
	}
}

package normalize

import "regexp"

type employmentKind struct {
	name string
	re   *regexp.Regexp
}

// Most specific first: "full-time internship" is an internship.
var employmentKinds = []employmentKind{
	{"internship", regexp.MustCompile(`(?i)\b(intern|internship|attachment)\b`)},
	{"volunteer", regexp.MustCompile(`(?i)\b(volunteer|volunteering|unpaid)\b`)},
	{"part_time", regexp.MustCompile(`(?i)\bpart[\s-]?time\b`)},
	{"temporary", regexp.MustCompile(`(?i)\b(temporary|temp|casual|seasonal)\b`)},
	{"contract", regexp.MustCompile(`(?i)\b(contract|contractor|fixed[\s-]term|freelance|consultancy)\b`)},
	{"full_time", regexp.MustCompile(`(?i)\b(full[\s-]?time|permanent)\b`)},
}

// EmploymentType classifies the raw employment type, falling back to the
// title.
func EmploymentType(raw, title string) Field {
	for _, text := range []string{raw, title} {
		if text == "" {
			continue
		}
		for _, kind := range employmentKinds {
			if loc := kind.re.FindStringIndex(text); loc != nil {
				return Field{
					Value:      kind.name,
					Confidence: 0.8,
					Evidence:   text[loc[0]:loc[1]],
					Source:     SourceRegex,
				}
			}
		}
	}
	return Field{}
}

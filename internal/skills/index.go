package skills

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spigell/jobnorm/internal/registry"
)

var errEmptyDictionary = errors.New("skill dictionary is empty")

type phrase struct {
	text  string
	skill string
}

type pattern struct {
	skill string
	re    *regexp.Regexp
}

// index is the matcher state derived from one registry version.
type index struct {
	version uint64

	// dictionary phrases (names first, then aliases) for the ner strategy
	dict  []phrase
	names []string
	// dictErr is set when the ner strategy cannot run.
	dictErr error

	patterns []pattern
	custom   []phrase
	aliases  map[string]string
	deny     map[string]struct{}
}

func buildIndex(data registry.Data, version uint64) (*index, []error) {
	idx := &index{
		version: version,
		aliases: make(map[string]string),
		deny:    make(map[string]struct{}, len(data.Denylist)),
	}
	var warnings []error

	for _, entry := range data.Skills {
		idx.dict = append(idx.dict, phrase{text: entry.Name, skill: entry.Name})
		idx.names = append(idx.names, entry.Name)
	}
	for _, entry := range data.Skills {
		for _, alias := range entry.Aliases {
			idx.dict = append(idx.dict, phrase{text: alias, skill: entry.Name})
			idx.addAlias(alias, entry.Name)
		}
	}
	if len(idx.dict) == 0 {
		idx.dictErr = errEmptyDictionary
	}

	for _, entry := range data.Custom {
		idx.custom = append(idx.custom, phrase{text: entry.Name, skill: entry.Name})
		for _, alias := range entry.Aliases {
			idx.custom = append(idx.custom, phrase{text: alias, skill: entry.Name})
			idx.addAlias(alias, entry.Name)
		}
	}

	// explicit alias rows win over dictionary aliases
	for _, a := range data.SkillAliases {
		idx.aliases[a.Alias] = a.Canonical
	}

	for _, p := range data.Patterns {
		re, err := compileKeywords(p.Keywords)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("pattern for %q: %w", p.Skill, err))
			continue
		}
		idx.patterns = append(idx.patterns, pattern{skill: p.Skill, re: re})
	}

	for _, d := range data.Denylist {
		idx.deny[d] = struct{}{}
	}

	return idx, warnings
}

// compileKeywords builds one case-insensitive alternation. Group 1 holds the
// keyword; the edges only require that no letter or digit is adjacent, so
// keywords such as "c++" or ".net" match too.
func compileKeywords(keywords []string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)(?:^|[^\pL\pN])(` + strings.Join(keywords, "|") + `)(?:$|[^\pL\pN])`)
}

func (idx *index) addAlias(alias, canonical string) {
	if _, ok := idx.aliases[alias]; !ok {
		idx.aliases[alias] = canonical
	}
}

func (idx *index) canonical(skill string) string {
	if c, ok := idx.aliases[skill]; ok {
		return c
	}
	return skill
}

func (idx *index) denied(skill string) bool {
	_, ok := idx.deny[skill]
	return ok
}

package registry

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// TitleEntry maps a canonical job title to the aliases that identify it.
type TitleEntry struct {
	Canonical string   `mapstructure:"canonical"`
	Aliases   []string `mapstructure:"aliases"`
}

// FamilyBucket assigns a title family to canonical titles containing any of
// its keywords.
type FamilyBucket struct {
	Family   string   `mapstructure:"family"`
	Keywords []string `mapstructure:"keywords"`
}

// SeniorityTier is one level of the seniority ladder.
type SeniorityTier struct {
	Level    string   `mapstructure:"level"`
	Keywords []string `mapstructure:"keywords"`
}

// SkillEntry is a dictionary skill with its abbreviations and aliases.
type SkillEntry struct {
	Name    string   `mapstructure:"name"`
	Aliases []string `mapstructure:"aliases"`
}

// SkillAlias rewrites a raw skill string to its canonical name.
type SkillAlias struct {
	Alias     string `mapstructure:"alias"`
	Canonical string `mapstructure:"canonical"`
}

// Pattern lists regular expression keywords that imply a skill.
type Pattern struct {
	Skill    string   `mapstructure:"skill"`
	Keywords []string `mapstructure:"keywords"`
}

type CompanyAlias struct {
	Alias     string `mapstructure:"alias"`
	Canonical string `mapstructure:"canonical"`
}

type LocationAlias struct {
	Alias   string `mapstructure:"alias"`
	City    string `mapstructure:"city"`
	Country string `mapstructure:"country"`
}

// Data is a complete set of lookup tables. All tables are ordered; lookups
// walk them front to back.
type Data struct {
	Titles         []TitleEntry    `mapstructure:"titles"`
	Families       []FamilyBucket  `mapstructure:"families"`
	Seniority      []SeniorityTier `mapstructure:"seniority"`
	Skills         []SkillEntry    `mapstructure:"skills"`
	SkillAliases   []SkillAlias    `mapstructure:"skill_aliases"`
	Patterns       []Pattern       `mapstructure:"patterns"`
	Custom         []SkillEntry    `mapstructure:"custom"`
	Denylist       []string        `mapstructure:"denylist"`
	CompanyAliases []CompanyAlias  `mapstructure:"company_aliases"`
	LegalSuffixes  []string        `mapstructure:"legal_suffixes"`
	Locations      []LocationAlias `mapstructure:"locations"`
	RemoteKeywords []string        `mapstructure:"remote_keywords"`
	SpamKeywords   []string        `mapstructure:"spam_keywords"`
	JobVocabulary  []string        `mapstructure:"job_vocabulary"`
}

// Update carries runtime additions to the skill alias, custom skill and
// title tables. Entries replace existing ones with the same key.
type Update struct {
	SkillAliases []SkillAlias
	CustomSkills []SkillEntry
	Titles       []TitleEntry
}

// Registry holds the canonical lookup tables shared by the extractors.
// Readers receive deep copies, so a returned Data is never mutated.
type Registry struct {
	mu      sync.RWMutex
	data    Data
	version uint64
}

// Load reads the embedded defaults and, when overrideFile is set, merges the
// tables found there on top. A table present in the override replaces the
// default table entirely.
func Load(overrideFile string) (*Registry, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultsYAML)); err != nil {
		return nil, fmt.Errorf("read default registry: %w", err)
	}

	if file := strings.TrimSpace(overrideFile); file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merge registry file %q: %w", file, err)
		}
	}

	data, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	return New(data)
}

// New validates data and wraps it in a Registry.
func New(data Data) (*Registry, error) {
	data = normalizeData(data)
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &Registry{data: data}, nil
}

func decode(settings map[string]any) (Data, error) {
	var data Data
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &data,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Data{}, fmt.Errorf("build registry decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return Data{}, fmt.Errorf("decode registry: %w", err)
	}
	return data, nil
}

// Validate reports tables with unusable entries.
func (d Data) Validate() error {
	var errs []error
	for i, t := range d.Titles {
		if t.Canonical == "" {
			errs = append(errs, fmt.Errorf("titles[%d]: canonical is empty", i))
		}
	}
	for i, f := range d.Families {
		if f.Family == "" || len(f.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("families[%d]: family and keywords are required", i))
		}
	}
	for i, s := range d.Seniority {
		if s.Level == "" || len(s.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("seniority[%d]: level and keywords are required", i))
		}
	}
	for i, s := range d.Skills {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("skills[%d]: name is empty", i))
		}
	}
	for i, s := range d.Custom {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("custom[%d]: name is empty", i))
		}
	}
	for i, a := range d.SkillAliases {
		if a.Alias == "" || a.Canonical == "" {
			errs = append(errs, fmt.Errorf("skill_aliases[%d]: alias and canonical are required", i))
		}
	}
	for i, c := range d.CompanyAliases {
		if c.Alias == "" || c.Canonical == "" {
			errs = append(errs, fmt.Errorf("company_aliases[%d]: alias and canonical are required", i))
		}
	}
	for i, p := range d.Patterns {
		if p.Skill == "" || len(p.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("patterns[%d]: skill and keywords are required", i))
		}
	}
	for i, l := range d.Locations {
		if l.Alias == "" {
			errs = append(errs, fmt.Errorf("locations[%d]: alias is empty", i))
		}
	}
	return errors.Join(errs...)
}

// Snapshot returns a deep copy of the current tables.
func (r *Registry) Snapshot() Data {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.clone()
}

// Version increases every time the tables change. Derived indexes compare it
// to decide whether to rebuild.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// UpdateMappings applies runtime additions under an exclusive lock.
func (r *Registry) UpdateMappings(u Update) error {
	next := normalizeData(Data{
		SkillAliases: u.SkillAliases,
		Custom:       u.CustomSkills,
		Titles:       u.Titles,
	})
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid registry update: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range next.SkillAliases {
		r.data.SkillAliases = upsert(r.data.SkillAliases, a, func(x SkillAlias) string { return x.Alias })
	}
	for _, s := range next.Custom {
		r.data.Custom = upsert(r.data.Custom, s, func(x SkillEntry) string { return x.Name })
	}
	for _, t := range next.Titles {
		r.data.Titles = upsert(r.data.Titles, t, func(x TitleEntry) string { return x.Canonical })
	}
	r.version++
	return nil
}

func upsert[T any](items []T, item T, key func(T) string) []T {
	k := key(item)
	for i := range items {
		if key(items[i]) == k {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

// normalizeData lower-cases and trims every lookup key. Display values such
// as canonical company and city names keep their case.
func normalizeData(d Data) Data {
	d = d.clone()
	for i := range d.Titles {
		d.Titles[i].Canonical = clean(d.Titles[i].Canonical)
		d.Titles[i].Aliases = cleanAll(d.Titles[i].Aliases)
	}
	for i := range d.Families {
		d.Families[i].Family = clean(d.Families[i].Family)
		d.Families[i].Keywords = cleanAll(d.Families[i].Keywords)
	}
	for i := range d.Seniority {
		d.Seniority[i].Level = clean(d.Seniority[i].Level)
		d.Seniority[i].Keywords = cleanAll(d.Seniority[i].Keywords)
	}
	for _, entries := range [][]SkillEntry{d.Skills, d.Custom} {
		for i := range entries {
			entries[i].Name = clean(entries[i].Name)
			entries[i].Aliases = cleanAll(entries[i].Aliases)
		}
	}
	for i := range d.SkillAliases {
		d.SkillAliases[i].Alias = clean(d.SkillAliases[i].Alias)
		d.SkillAliases[i].Canonical = clean(d.SkillAliases[i].Canonical)
	}
	for i := range d.Patterns {
		d.Patterns[i].Skill = clean(d.Patterns[i].Skill)
		d.Patterns[i].Keywords = cleanAll(d.Patterns[i].Keywords)
	}
	for i := range d.CompanyAliases {
		d.CompanyAliases[i].Alias = clean(d.CompanyAliases[i].Alias)
		d.CompanyAliases[i].Canonical = strings.TrimSpace(d.CompanyAliases[i].Canonical)
	}
	for i := range d.Locations {
		d.Locations[i].Alias = clean(d.Locations[i].Alias)
		d.Locations[i].City = strings.TrimSpace(d.Locations[i].City)
		d.Locations[i].Country = strings.TrimSpace(d.Locations[i].Country)
	}
	d.Denylist = cleanAll(d.Denylist)
	d.LegalSuffixes = cleanAll(d.LegalSuffixes)
	d.RemoteKeywords = cleanAll(d.RemoteKeywords)
	d.SpamKeywords = cleanAll(d.SpamKeywords)
	d.JobVocabulary = cleanAll(d.JobVocabulary)
	return d
}

func clean(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func cleanAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = clean(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (d Data) clone() Data {
	return Data{
		Titles:         cloneTitles(d.Titles),
		Families:       cloneFamilies(d.Families),
		Seniority:      cloneTiers(d.Seniority),
		Skills:         cloneSkills(d.Skills),
		SkillAliases:   append([]SkillAlias(nil), d.SkillAliases...),
		Patterns:       clonePatterns(d.Patterns),
		Custom:         cloneSkills(d.Custom),
		Denylist:       append([]string(nil), d.Denylist...),
		CompanyAliases: append([]CompanyAlias(nil), d.CompanyAliases...),
		LegalSuffixes:  append([]string(nil), d.LegalSuffixes...),
		Locations:      append([]LocationAlias(nil), d.Locations...),
		RemoteKeywords: append([]string(nil), d.RemoteKeywords...),
		SpamKeywords:   append([]string(nil), d.SpamKeywords...),
		JobVocabulary:  append([]string(nil), d.JobVocabulary...),
	}
}

func cloneTitles(in []TitleEntry) []TitleEntry {
	out := make([]TitleEntry, len(in))
	for i, t := range in {
		out[i] = TitleEntry{Canonical: t.Canonical, Aliases: append([]string(nil), t.Aliases...)}
	}
	return out
}

func cloneFamilies(in []FamilyBucket) []FamilyBucket {
	out := make([]FamilyBucket, len(in))
	for i, f := range in {
		out[i] = FamilyBucket{Family: f.Family, Keywords: append([]string(nil), f.Keywords...)}
	}
	return out
}

func cloneTiers(in []SeniorityTier) []SeniorityTier {
	out := make([]SeniorityTier, len(in))
	for i, s := range in {
		out[i] = SeniorityTier{Level: s.Level, Keywords: append([]string(nil), s.Keywords...)}
	}
	return out
}

func cloneSkills(in []SkillEntry) []SkillEntry {
	out := make([]SkillEntry, len(in))
	for i, s := range in {
		out[i] = SkillEntry{Name: s.Name, Aliases: append([]string(nil), s.Aliases...)}
	}
	return out
}

func clonePatterns(in []Pattern) []Pattern {
	out := make([]Pattern, len(in))
	for i, p := range in {
		out[i] = Pattern{Skill: p.Skill, Keywords: append([]string(nil), p.Keywords...)}
	}
	return out
}

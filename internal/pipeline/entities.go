package pipeline

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/spigell/jobnorm/internal/normalize"
	"github.com/spigell/jobnorm/internal/quality"
	"github.com/spigell/jobnorm/internal/skills"
	"github.com/spigell/jobnorm/internal/store"
)

type EntitiesRepository interface {
	CommitEntities(ctx context.Context, u store.EntitiesUpdate) error
}

// Entities normalizes the job fields, extracts skills and scores quality.
type Entities struct {
	toggle
	repo       EntitiesRepository
	normalizer *normalize.Normalizer
	skills     *skills.Extractor
}

func NewEntities(repo EntitiesRepository, n *normalize.Normalizer, x *skills.Extractor) *Entities {
	return &Entities{repo: repo, normalizer: n, skills: x}
}

func (s *Entities) Name() string { return string(store.ArtifactEntities) }

func (s *Entities) Artifact() store.Artifact { return store.ArtifactEntities }

func (s *Entities) Status() Status { return s.status(s.Name()) }

func (s *Entities) Validate(*Config) error { return nil }

func (s *Entities) Run(ctx context.Context, job store.JobPost) (int, error) {
	u, err := s.Extract(ctx, job)
	if err != nil {
		return 0, err
	}
	if err := s.repo.CommitEntities(ctx, u); err != nil {
		return 0, err
	}
	return len(u.Skills), nil
}

// Extract runs the field and skill extractors concurrently and assembles
// the update for one job. Nothing is written.
func (s *Entities) Extract(ctx context.Context, job store.JobPost) (store.EntitiesUpdate, error) {
	var (
		title          normalize.TitleResult
		ent            store.Entities
		seniority      string
		location       normalize.LocationResult
		company        string
		salary         normalize.Salary
		hasSalary      bool
		experience     normalize.Experience
		matches        []skills.Match
		requirementsOr = firstNonEmpty(job.RequirementsRaw, job.DescriptionRaw)
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		title, ent.Title = s.normalizer.TitleField(job.TitleRaw)
		seniority, ent.Seniority = s.normalizer.SeniorityField(job.TitleRaw)
		return nil
	})
	g.Go(func() error {
		location, ent.Location = s.normalizer.Location(job.LocationRaw)
		company, ent.Company = s.normalizer.Company(job.CompanyRaw, job.TitleRaw)
		return nil
	})
	g.Go(func() error {
		if strings.TrimSpace(job.SalaryText) != "" {
			salary, ent.Salary, hasSalary = normalize.ParseSalary(job.SalaryText)
		}
		ent.EmploymentType = normalize.EmploymentType(job.EmploymentTypeRaw, job.TitleRaw)
		return nil
	})
	g.Go(func() error {
		ent.Education = normalize.Education(requirementsOr, job.DescriptionRaw)
		experience, ent.Experience = normalize.ExperienceYears(requirementsOr, job.DescriptionRaw)
		return nil
	})
	g.Go(func() error {
		matches = s.skills.Extract(skillText(job))
		return nil
	})
	if err := g.Wait(); err != nil {
		return store.EntitiesUpdate{}, err
	}

	n := store.Normalized{
		TitleFamily:       title.Family,
		TitleCanonical:    title.Canonical,
		Seniority:         seniority,
		LocationCanonical: location.Canonical,
		Country:           location.Country,
		IsRemote:          location.Remote,
		CompanyCanonical:  company,
	}
	if v, ok := ent.Education.Value.(string); ok {
		n.Education = v
	}
	if v, ok := ent.EmploymentType.Value.(string); ok {
		n.EmploymentType = v
	}
	if ent.Experience.Found() {
		n.ExperienceMin = intPtr(experience.Min)
		if experience.Max > 0 {
			n.ExperienceMax = intPtr(experience.Max)
		}
	}
	if hasSalary {
		n.SalaryMin = floatPtr(salary.Min)
		n.SalaryMax = floatPtr(salary.Max)
		n.Currency = salary.Currency
		n.SalaryPeriod = salary.Period
	}

	scored := job
	scored.Normalized = n
	n.QualityScore = floatPtr(quality.Score(scored))

	u := store.EntitiesUpdate{JobID: job.ID, Entities: ent, Normalized: n}
	if title.Canonical != "" {
		u.TitleNorm = &store.TitleNorm{Family: title.Family, TitleCanonical: title.Canonical, Aliases: title.Aliases}
	}
	for _, m := range matches {
		ent.Skills = append(ent.Skills, normalize.Field{Value: m.Skill, Confidence: m.Confidence, Evidence: m.Evidence, Source: m.Source})
		u.Skills = append(u.Skills, store.JobSkill{JobID: job.ID, Skill: m.Skill, Confidence: m.Confidence, Source: m.Source, Evidence: m.Evidence})
	}
	u.Entities = ent
	return u, nil
}

// skillText is what skills are extracted from: the title and the posting
// body.
func skillText(job store.JobPost) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{job.TitleRaw, job.RequirementsRaw, job.DescriptionRaw} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

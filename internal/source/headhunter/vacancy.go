package headhunter

import (
	"fmt"
	"strings"

	"github.com/spigell/jobnorm/internal/source"
)

const SourceName = "hh.ru"

type Named struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type Salary struct {
	From     int    `json:"from,omitempty"`
	To       int    `json:"to,omitempty"`
	Currency string `json:"currency,omitempty"`
	Gross    bool   `json:"gross,omitempty"`
}

type Employer struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	Trusted      bool   `json:"trusted,omitempty"`
}

type Snippet struct {
	Requirement    string `json:"requirement,omitempty"`
	Responsibility string `json:"responsibility,omitempty"`
}

type Vacancy struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Area         Named    `json:"area,omitempty"`
	Salary       *Salary  `json:"salary,omitempty"`
	Experience   Named    `json:"experience,omitempty"`
	Schedule     Named    `json:"schedule,omitempty"`
	Employer     Employer `json:"employer,omitempty"`
	Employment   Named    `json:"employment,omitempty"`
	Description  string   `json:"description,omitempty"`
	KeySkills    []Named  `json:"key_skills,omitempty"`
	Archived     bool     `json:"archived,omitempty"`
	Snippet      Snippet  `json:"snippet,omitempty"`
	AlternateURL string   `json:"alternate_url,omitempty"`
	PublishedAt  string   `json:"published_at,omitempty"`
}

// SalaryText renders the salary fork the way postings write it, e.g.
// "RUR 80000 - 120000". It is empty when hh.ru has no salary.
func (v *Vacancy) SalaryText() string {
	s := v.Salary
	if s == nil || (s.From == 0 && s.To == 0) {
		return ""
	}
	switch {
	case s.From > 0 && s.To > 0:
		return fmt.Sprintf("%s %d - %d", s.Currency, s.From, s.To)
	case s.From > 0:
		return fmt.Sprintf("from %s %d", s.Currency, s.From)
	default:
		return fmt.Sprintf("up to %s %d", s.Currency, s.To)
	}
}

// Requirements joins the requirement snippet with the key skills list.
func (v *Vacancy) Requirements() string {
	var parts []string
	if r := strings.TrimSpace(v.Snippet.Requirement); r != "" {
		parts = append(parts, r)
	}
	if len(v.KeySkills) > 0 {
		names := make([]string, 0, len(v.KeySkills))
		for _, ks := range v.KeySkills {
			names = append(names, ks.Name)
		}
		parts = append(parts, "Skills: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "\n")
}

// Record converts the vacancy into a raw job record.
func (v *Vacancy) Record() source.Record {
	description := v.Description
	if description == "" {
		description = v.Snippet.Responsibility
	}
	employment := v.Employment.Name
	if employment == "" {
		employment = v.Schedule.Name
	}
	return source.Record{
		"url":             v.AlternateURL,
		"source":          SourceName,
		"title":           v.Name,
		"description":     description,
		"requirements":    v.Requirements(),
		"salary_text":     v.SalaryText(),
		"location":        v.Area.Name,
		"employment_type": employment,
		"posted_date":     v.PublishedAt,
		"company":         v.Employer.Name,
	}
}

// Package quality scores job completeness, quarantines junk postings and
// summarises corpus health.
package quality

import (
	"strings"
	"unicode/utf8"

	"github.com/spigell/jobnorm/internal/store"
)

const (
	weightTitle        = 0.20
	weightDescription  = 0.20
	weightRequirements = 0.15
	weightCompany      = 0.15
	weightLocation     = 0.15
	weightSalary       = 0.15

	totalWeight = weightTitle + weightDescription + weightRequirements + weightCompany + weightLocation + weightSalary
)

// Score rates how complete a job record is, in [0,1]. Normalized values win
// over raw ones when both are present.
func Score(job store.JobPost) float64 {
	var sum float64

	if present(job.TitleCanonical, job.TitleRaw) {
		sum += weightTitle
	}

	switch n := length(job.DescriptionRaw); {
	case n >= 200:
		sum += weightDescription
	case n >= 50:
		sum += weightDescription / 2
	}

	switch n := length(job.RequirementsRaw); {
	case n >= 100:
		sum += weightRequirements
	case n >= 20:
		sum += weightRequirements / 2
	}

	if present(job.CompanyCanonical, job.CompanyRaw) {
		sum += weightCompany
	}
	if present(job.LocationCanonical, job.LocationRaw) {
		sum += weightLocation
	}
	if job.SalaryMin != nil || job.SalaryMax != nil || present(job.SalaryText) {
		sum += weightSalary
	}

	return sum / totalWeight
}

func present(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func length(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

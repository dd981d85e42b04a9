package quality

import (
	"context"
	"fmt"
	"sort"

	"github.com/spigell/jobnorm/internal/store"
)

// Gates are the thresholds a snapshot is checked against.
type Gates struct {
	MinTitleCoverage float64 `mapstructure:"min_title_coverage"`
	MinSkillCoverage float64 `mapstructure:"min_skill_coverage"`
	MinAvgQuality    float64 `mapstructure:"min_avg_quality"`
	MaxDuplicateRate float64 `mapstructure:"max_duplicate_rate"`
}

func DefaultGates() Gates {
	return Gates{
		MinTitleCoverage: 0.9,
		MinSkillCoverage: 0.7,
		MinAvgQuality:    0.5,
		MaxDuplicateRate: 0.3,
	}
}

func (g Gates) Validate() error {
	for name, v := range map[string]float64{
		"min_title_coverage": g.MinTitleCoverage,
		"min_skill_coverage": g.MinSkillCoverage,
		"min_avg_quality":    g.MinAvgQuality,
		"max_duplicate_rate": g.MaxDuplicateRate,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("quality.gates.%s must be in [0,1], got %v", name, v)
		}
	}
	return nil
}

type Gate struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Pass      bool    `json:"pass"`
}

// Snapshot is a point-in-time summary of corpus quality. Coverage is the
// share of active processed jobs carrying each field.
type Snapshot struct {
	Total         int                `json:"total"`
	Active        int                `json:"active"`
	Processed     int                `json:"processed"`
	Coverage      map[string]float64 `json:"coverage"`
	AvgQuality    float64            `json:"avg_quality"`
	DuplicateRate float64            `json:"duplicate_rate"`
	Gates         []Gate             `json:"gates"`
}

// Passed reports whether every gate passed.
func (s Snapshot) Passed() bool {
	for _, g := range s.Gates {
		if !g.Pass {
			return false
		}
	}
	return true
}

type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

func TakeSnapshot(ctx context.Context, src StatsSource, gates Gates) (Snapshot, error) {
	st, err := src.Stats(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load stats: %w", err)
	}
	return BuildSnapshot(st, gates), nil
}

func BuildSnapshot(st store.Stats, gates Gates) Snapshot {
	snap := Snapshot{
		Total:      st.Total,
		Active:     st.Active,
		Processed:  st.Processed,
		Coverage:   make(map[string]float64, len(st.Coverage)),
		AvgQuality: st.AvgQuality,
	}
	for field, n := range st.Coverage {
		snap.Coverage[field] = ratio(n, st.Processed)
	}
	snap.DuplicateRate = ratio(st.Duplicates, st.DedupeRows)

	snap.Gates = []Gate{
		atLeast("title_coverage", snap.Coverage["title"], gates.MinTitleCoverage),
		atLeast("skill_coverage", snap.Coverage["skills"], gates.MinSkillCoverage),
		atLeast("avg_quality", snap.AvgQuality, gates.MinAvgQuality),
		{
			Name:      "duplicate_rate",
			Value:     snap.DuplicateRate,
			Threshold: gates.MaxDuplicateRate,
			Pass:      snap.DuplicateRate <= gates.MaxDuplicateRate,
		},
	}
	return snap
}

// CoverageFields returns the coverage keys in a stable order.
func (s Snapshot) CoverageFields() []string {
	fields := make([]string, 0, len(s.Coverage))
	for f := range s.Coverage {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func atLeast(name string, value, threshold float64) Gate {
	return Gate{Name: name, Value: value, Threshold: threshold, Pass: value >= threshold}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

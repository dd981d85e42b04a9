package skills

import (
	"fmt"
	"strings"
)

// Mode selects the strategies an Extractor runs.
type Mode string

const (
	ModeSkillNER   Mode = "skillner"
	ModePatterns   Mode = "patterns"
	ModeHybrid     Mode = "hybrid"
	ModeCustomOnly Mode = "custom-only"
)

// Strategy names double as the Source of a Match.
const (
	StrategyNER      = "ner"
	StrategyPatterns = "patterns"
	StrategyCustom   = "custom"
	StrategySection  = "section"
)

// ParseMode accepts the mode names case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if _, err := m.Strategies(); err != nil {
		return "", err
	}
	return m, nil
}

// Strategies returns the strategies of the mode in execution order.
func (m Mode) Strategies() ([]string, error) {
	switch m {
	case ModeSkillNER:
		return []string{StrategyNER, StrategyCustom, StrategySection}, nil
	case ModePatterns:
		return []string{StrategyPatterns, StrategyCustom, StrategySection}, nil
	case ModeHybrid:
		return []string{StrategyNER, StrategyPatterns, StrategyCustom, StrategySection}, nil
	case ModeCustomOnly:
		return []string{StrategyCustom}, nil
	default:
		return nil, fmt.Errorf("unknown skill extractor mode %q (want skillner, patterns, hybrid or custom-only)", string(m))
	}
}

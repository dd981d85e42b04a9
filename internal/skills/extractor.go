package skills

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/logger"
	"github.com/spigell/jobnorm/internal/registry"
)

const evidenceLimit = 120

// Match is one extracted skill.
type Match struct {
	Skill      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
	Source     string  `json:"source"`
}

// Extractor runs the strategies of a Mode and merges their matches. It is
// safe for concurrent use; the matcher index is built on first use and
// rebuilt when the registry changes.
type Extractor struct {
	reg        *registry.Registry
	mode       Mode
	strategies []string
	logger     *zap.Logger

	mu  sync.Mutex
	idx *index
}

func New(reg *registry.Registry, mode Mode, log *zap.Logger) (*Extractor, error) {
	strategies, err := mode.Strategies()
	if err != nil {
		return nil, err
	}
	return &Extractor{
		reg:        reg,
		mode:       mode,
		strategies: strategies,
		logger:     logger.OrNop(log),
	}, nil
}

func (e *Extractor) Mode() Mode {
	return e.mode
}

func (e *Extractor) index() *index {
	e.mu.Lock()
	defer e.mu.Unlock()

	version := e.reg.Version()
	if e.idx != nil && e.idx.version == version {
		return e.idx
	}

	idx, warnings := buildIndex(e.reg.Snapshot(), version)
	for _, w := range warnings {
		e.logger.Warn("skipping skill pattern", zap.Error(w))
	}
	if idx.dictErr != nil && e.usesNER() {
		e.logger.Warn("ner strategy disabled", zap.Error(idx.dictErr))
	}
	e.logger.Debug("skill index built",
		zap.Uint64("registry_version", version),
		zap.Int("dictionary_phrases", len(idx.dict)),
		zap.Int("patterns", len(idx.patterns)),
		zap.Int("custom_phrases", len(idx.custom)),
	)
	e.idx = idx
	return idx
}

func (e *Extractor) usesNER() bool {
	for _, s := range e.strategies {
		if s == StrategyNER {
			return true
		}
	}
	return false
}

// Extract returns the merged skills found in text, highest confidence first.
func (e *Extractor) Extract(text string) []Match {
	if text == "" {
		return nil
	}
	idx := e.index()

	var all []Match
	for _, strategy := range e.strategies {
		switch strategy {
		case StrategyNER:
			if idx.dictErr != nil {
				continue
			}
			all = append(all, matchNER(text, idx)...)
		case StrategyPatterns:
			all = append(all, matchPatterns(text, idx)...)
		case StrategyCustom:
			all = append(all, matchCustom(text, idx)...)
		case StrategySection:
			all = append(all, matchSections(text)...)
		}
	}

	return merge(all, idx)
}

// merge keeps the highest confidence match per canonical skill. Matches are
// visited in strategy order, so ties keep the earlier strategy.
func merge(matches []Match, idx *index) []Match {
	best := make(map[string]Match, len(matches))
	order := make([]string, 0, len(matches))
	for _, m := range matches {
		m.Skill = idx.canonical(m.Skill)
		if m.Skill == "" {
			continue
		}
		current, ok := best[m.Skill]
		if !ok {
			order = append(order, m.Skill)
			best[m.Skill] = m
			continue
		}
		if m.Confidence > current.Confidence {
			best[m.Skill] = m
		}
	}

	out := make([]Match, 0, len(order))
	for _, skill := range order {
		if idx.denied(skill) {
			continue
		}
		out = append(out, best[skill])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Skill < out[j].Skill
	})
	return out
}

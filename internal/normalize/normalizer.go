package normalize

import (
	"sync"

	"github.com/spigell/jobnorm/internal/registry"
)

// Field is one extracted value with its provenance.
type Field struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
	Source     string  `json:"source"`
}

// Found reports whether the field carries a value.
func (f Field) Found() bool {
	return f.Value != nil
}

const (
	SourceRegistry   = "registry"
	SourceRule       = "rule"
	SourceRegex      = "regex"
	SourceTitleSplit = "title-split"
	SourceRaw        = "raw"

	evidenceLimit = 120
)

// Normalizer runs the field extractors against the registry tables. It is
// safe for concurrent use.
type Normalizer struct {
	reg *registry.Registry

	mu      sync.Mutex
	version uint64
	data    *registry.Data
}

func New(reg *registry.Registry) *Normalizer {
	return &Normalizer{reg: reg}
}

// tables returns a snapshot of the registry, refreshed when it changes.
func (n *Normalizer) tables() registry.Data {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.reg == nil {
		return registry.Data{}
	}

	version := n.reg.Version()
	if n.data == nil || version != n.version {
		data := n.reg.Snapshot()
		n.data = &data
		n.version = version
	}
	return *n.data
}

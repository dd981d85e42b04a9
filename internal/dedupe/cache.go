package dedupe

import (
	"context"
	"fmt"
	"sync"
)

// Entry is one indexed signature.
type Entry struct {
	JobID     int64
	Signature Signature
}

// Loader returns the signatures an index is rebuilt from.
type Loader func(ctx context.Context) ([]Entry, error)

// IndexCache holds a lazily built LSH index. The lock is held only while the
// index is loaded; the returned index has its own lock.
type IndexCache struct {
	mu  sync.Mutex
	idx *LSH
}

var shared = &IndexCache{}

// Shared returns the process-wide index cache.
func Shared() *IndexCache {
	return shared
}

// Get returns the cached index, loading it on first use or when cfg asks for
// different LSH parameters. Load failures are not cached.
func (c *IndexCache) Get(ctx context.Context, cfg Config, load Loader) (*LSH, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.idx != nil && c.idx.matches(cfg.Threshold, cfg.NumPerm) {
		return c.idx, nil
	}

	idx, err := NewLSH(cfg.Threshold, cfg.NumPerm)
	if err != nil {
		return nil, err
	}
	entries, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index signatures: %w", err)
	}
	for _, e := range entries {
		if err := idx.Insert(e.JobID, e.Signature); err != nil {
			return nil, fmt.Errorf("index job %d: %w", e.JobID, err)
		}
	}
	c.idx = idx
	return idx, nil
}

// Reset drops the cached index so the next Get reloads it.
func (c *IndexCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idx = nil
}

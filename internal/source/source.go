// Package source reads raw job records from external feeds.
package source

import (
	"context"
	"errors"
)

// ErrMalformed marks a single unreadable record. Readers may continue past it.
var ErrMalformed = errors.New("malformed record")

// Record is one raw job as decoded JSON.
type Record = map[string]any

// Source yields raw job records. Next returns io.EOF when the feed is
// exhausted.
type Source interface {
	Name() string
	Next(ctx context.Context) (Record, error)
	Close() error
}

package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrAlreadyClaimed means another invocation already wrote the artifact
	// row for the job.
	ErrAlreadyClaimed = errors.New("job already claimed")
	ErrDuplicateURL   = errors.New("job url already ingested")
)

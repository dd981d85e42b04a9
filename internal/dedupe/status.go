package dedupe

import (
	"errors"
	"fmt"
)

// Status is the review state of a dedupe map row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusMerged    Status = "merged"
	StatusDismissed Status = "dismissed"
)

var (
	// ErrTerminalStatus is returned for transitions out of merged or dismissed.
	ErrTerminalStatus = errors.New("dedupe status is terminal")
	// ErrInvalidTransition is returned for transitions the state machine lacks.
	ErrInvalidTransition = errors.New("invalid dedupe status transition")
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusMerged, StatusDismissed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown dedupe status %q", s)
	}
}

func (s Status) Terminal() bool {
	return s == StatusMerged || s == StatusDismissed
}

// Transition checks that from may move to to. Only pending rows move, and
// only to merged or dismissed.
func Transition(from, to Status) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalStatus, from, to)
	}
	if from != StatusPending {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	switch to {
	case StatusMerged, StatusDismissed:
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
}

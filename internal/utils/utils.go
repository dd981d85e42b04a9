package utils

import (
	"context"
	"strings"
	"time"
)

var sleep = time.Sleep

func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sleep(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Retry calls fn up to attempts times, waiting backoff*attempt between tries.
// The last error is returned when every attempt fails.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if waitErr := WaitFor(ctx, backoff*time.Duration(attempt)); waitErr != nil {
			return waitErr
		}
	}
	return err
}

// TruncateForLog shortens the provided string to the specified limit, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// Snippet returns at most limit runes of text centred on the byte range
// [start, end). Offsets outside text are clamped.
func Snippet(text string, start, end, limit int) string {
	if limit <= 0 || text == "" {
		return ""
	}
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	if start > end {
		start = end
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return strings.TrimSpace(text)
	}

	// convert byte offsets to rune offsets
	rs := len([]rune(text[:start]))
	re := len([]rune(text[:end]))

	width := re - rs
	if width >= limit {
		return strings.TrimSpace(string(runes[rs : rs+limit]))
	}

	pad := (limit - width) / 2
	from := rs - pad
	if from < 0 {
		from = 0
	}
	to := from + limit
	if to > len(runes) {
		to = len(runes)
		from = to - limit
	}
	return strings.TrimSpace(string(runes[from:to]))
}

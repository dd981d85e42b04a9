package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWaitForReturnsOnContextCancel(t *testing.T) {
	orig := sleep
	block := make(chan struct{})
	sleep = func(time.Duration) { <-block }
	t.Cleanup(func() {
		close(block)
		sleep = orig
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetry(t *testing.T) {
	orig := sleep
	var waited []time.Duration
	sleep = func(d time.Duration) { waited = append(waited, d) }
	t.Cleanup(func() { sleep = orig })

	calls := 0
	err := Retry(context.Background(), 3, time.Second, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(waited) != 2 || waited[0] != time.Second || waited[1] != 2*time.Second {
		t.Fatalf("unexpected backoff sequence: %v", waited)
	}

	calls = 0
	err = Retry(context.Background(), 2, 0, func(context.Context) error {
		calls++
		return errors.New("always")
	})
	if err == nil || err.Error() != "always" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	text := "we are looking for an engineer with strong python and sql skills"
	start := len("we are looking for an engineer with strong ")
	end := start + len("python")

	got := Snippet(text, start, end, 20)
	if len([]rune(got)) > 20 {
		t.Fatalf("snippet longer than limit: %q", got)
	}
	if want := "python"; !strings.Contains(got, want) {
		t.Fatalf("expected snippet to contain %q, got %q", want, got)
	}

	if got := Snippet("short", 0, 5, 120); got != "short" {
		t.Fatalf("expected whole text, got %q", got)
	}
	if got := Snippet("", 0, 0, 10); got != "" {
		t.Fatalf("expected empty snippet, got %q", got)
	}
}

func TestTruncateForLogCountsRunes(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in    string
		limit int
		want  string
	}{
		"negative limit":   {in: "analyst", limit: -1, want: ""},
		"exact length":     {in: "analyst", limit: 7, want: "analyst"},
		"cyrillic":         {in: "аналитик данных", limit: 8, want: "аналитик..."},
		"blank after trim": {in: " \t\n", limit: 3, want: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tc.in, tc.limit); got != tc.want {
				t.Fatalf("TruncateForLog(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
			}
		})
	}
}

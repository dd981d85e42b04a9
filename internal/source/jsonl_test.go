package source

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestJSONL(t *testing.T) {
	t.Parallel()

	input := `{"url":"https://a","title":"Data Analyst"}

not json
{"url":"https://b","title":"Nurse","salary":1000}
`
	src := NewJSONL("feed.jsonl", strings.NewReader(input))
	ctx := context.Background()

	rec, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if rec["url"] != "https://a" {
		t.Fatalf("unexpected record %v", rec)
	}

	_, err = src.Next(ctx)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected line number in %q", err)
	}

	rec, err = src.Next(ctx)
	if err != nil {
		t.Fatalf("third record: %v", err)
	}
	if rec["salary"] != float64(1000) {
		t.Fatalf("unexpected salary %v", rec["salary"])
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestJSONLStopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewJSONL("feed", strings.NewReader(`{"url":"x"}`))
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

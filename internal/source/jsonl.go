package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const maxLineSize = 4 << 20

// JSONL reads one JSON object per line. Blank lines are skipped.
type JSONL struct {
	name    string
	closer  io.Closer
	scanner *bufio.Scanner
	line    int
}

func OpenJSONL(path string) (*JSONL, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	src := NewJSONL(path, file)
	src.closer = file
	return src, nil
}

func NewJSONL(name string, r io.Reader) *JSONL {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &JSONL{name: name, scanner: scanner}
}

func (j *JSONL) Name() string {
	return j.name
}

func (j *JSONL) Next(ctx context.Context) (Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return nil, fmt.Errorf("read %s: %w", j.name, err)
			}
			return nil, io.EOF
		}
		j.line++

		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, j.name, j.line, err)
		}
		return rec, nil
	}
}

func (j *JSONL) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

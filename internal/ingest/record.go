// Package ingest validates raw job records and stores them as job posts.
package ingest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/cespare/xxhash/v2"
	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/spigell/jobnorm/internal/store"
)

//go:embed schema.json
var schemaJSON []byte

// ErrInvalid marks a record rejected by the schema or by decoding.
var ErrInvalid = errors.New("invalid job record")

// Record is a raw job record after schema validation.
type Record struct {
	URL            string `mapstructure:"url"`
	Source         string `mapstructure:"source"`
	Title          string `mapstructure:"title"`
	Description    string `mapstructure:"description"`
	Requirements   any    `mapstructure:"requirements"`
	SalaryText     string `mapstructure:"salary_text"`
	Location       string `mapstructure:"location"`
	EmploymentType string `mapstructure:"employment_type"`
	PostedDate     string `mapstructure:"posted_date"`
	Company        string `mapstructure:"company"`
}

// Validator checks records against the embedded JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Decode validates a decoded JSON object and maps it onto Record. Unknown
// keys are allowed and ignored.
func (v *Validator) Decode(raw map[string]any) (Record, error) {
	if err := v.schema.Validate(raw); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var rec Record
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rec,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Record{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return rec, nil
}

// RawJob cleans the record into the shape stored on job_posts.
func (r Record) RawJob() store.RawJob {
	url := strings.TrimSpace(r.URL)
	return store.RawJob{
		Source:            strings.TrimSpace(r.Source),
		URL:               url,
		URLHash:           URLHash(url),
		TitleRaw:          CleanText(r.Title),
		DescriptionRaw:    CleanText(r.Description),
		RequirementsRaw:   CleanText(requirementsText(r.Requirements)),
		SalaryText:        strings.TrimSpace(r.SalaryText),
		LocationRaw:       strings.TrimSpace(r.Location),
		CompanyRaw:        strings.TrimSpace(r.Company),
		EmploymentTypeRaw: strings.TrimSpace(r.EmploymentType),
		PostedAt:          ParseDate(r.PostedDate),
	}
}

func requirementsText(v any) string {
	switch req := v.(type) {
	case nil:
		return ""
	case string:
		return req
	case []any:
		lines := make([]string, 0, len(req))
		for _, item := range req {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				lines = append(lines, "- "+strings.TrimSpace(s))
			}
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprint(req)
	}
}

// URLHash is the hex xxhash of the trimmed, lower-cased URL.
func URLHash(url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.ToLower(strings.TrimSpace(url))))
}

var (
	htmlTagRe    = regexp.MustCompile(`(?i)<\s*/?\s*[a-z][a-z0-9]*[^>]*>`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// CleanText turns HTML into markdown and trims the result. Plain text is
// only trimmed.
func CleanText(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if s == "" || !htmlTagRe.MatchString(s) {
		return s
	}
	md, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return htmlTagRe.ReplaceAllString(s, " ")
	}
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(md, "\n\n"))
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"January 2, 2006",
	"2 January 2006",
}

// ParseDate accepts the date formats seen in feeds. Unknown formats give nil.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

package embedding

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	encodingName = "cl100k_base"
	// runesPerToken is the budget used when no tokenizer is available.
	runesPerToken = 4
)

type tokenizer interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

var (
	sharedOnce sync.Once
	sharedEnc  tokenizer
)

// sharedTokenizer loads the encoding once per process. A nil result means
// the encoding could not be loaded.
func sharedTokenizer() tokenizer {
	sharedOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			sharedEnc = enc
		}
	})
	return sharedEnc
}

// Truncator cuts text to a token budget.
type Truncator struct {
	maxTokens int
	enc       func() tokenizer
}

func NewTruncator(maxTokens int) *Truncator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Truncator{maxTokens: maxTokens, enc: sharedTokenizer}
}

// Truncate returns text limited to the budget and whether it was cut.
// Without a tokenizer the budget is counted in runes.
func (t *Truncator) Truncate(text string) (string, bool) {
	if enc := t.enc(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= t.maxTokens {
			return text, false
		}
		return enc.Decode(tokens[:t.maxTokens]), true
	}

	limit := t.maxTokens * runesPerToken
	if utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	return string([]rune(text)[:limit]), true
}

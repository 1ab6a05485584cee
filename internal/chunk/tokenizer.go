// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunk

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is the BPE encoding used by the OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts and truncates text in model tokens. The same Tokenizer
// bounds chunk sizes and embedding inputs so both agree on what a token is.
type Tokenizer interface {
	Count(text string) int
	// Truncate returns the longest prefix of text holding at most n tokens.
	Truncate(text string, n int) string
}

var loaderOnce sync.Once

// TikToken is a Tokenizer backed by a tiktoken BPE encoding. The BPE ranks
// are embedded in the binary, so no network access is needed.
type TikToken struct {
	enc *tiktoken.Tiktoken
}

// NewTikToken loads the named encoding ("" means DefaultEncoding).
func NewTikToken(encoding string) (*TikToken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %s: %w", encoding, err)
	}
	return &TikToken{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *TikToken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate returns text cut to its first n tokens.
func (t *TikToken) Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	toks := t.enc.Encode(text, nil, nil)
	if len(toks) <= n {
		return text
	}
	return t.enc.Decode(toks[:n])
}

// WordTokenizer treats each whitespace-separated word as one token. It is
// deterministic and dependency-free, which makes chunk boundaries easy to
// reason about in tests.
type WordTokenizer struct{}

// Count returns the number of words in text.
func (WordTokenizer) Count(text string) int { return len(strings.Fields(text)) }

// Truncate returns the first n words of text joined by single spaces.
func (WordTokenizer) Truncate(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 {
		return ""
	}
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}

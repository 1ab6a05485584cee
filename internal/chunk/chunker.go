// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chunk splits paper text into overlapping, token-bounded passages.
//
// Text that fits the target size becomes one passage. Longer text is split
// on paragraphs, then sentences, then words, and the pieces are packed back
// together up to the target. Every passage after the first starts with the
// trailing tokens of its predecessor.
package chunk

import (
	"strings"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// Defaults, in tokens.
const (
	DefaultTargetTokens  = 500
	DefaultOverlapTokens = 50
	DefaultMinTokens     = 50
)

// tailMergeFactor bounds how far a trailing undersized piece may grow the
// previous passage.
const tailMergeFactor = 1.2

// Chunker splits text into passages. It is safe for concurrent use.
type Chunker struct {
	tok     Tokenizer
	target  int
	overlap int
	min     int
}

// New returns a Chunker. Zero parameters take the defaults. Overlap must be
// below target and min must not exceed target.
func New(tok Tokenizer, cfg types.ChunkConfig) (*Chunker, error) {
	c := &Chunker{
		tok:     tok,
		target:  cfg.TargetTokens,
		overlap: cfg.OverlapTokens,
		min:     cfg.MinTokens,
	}
	if c.target == 0 {
		c.target = DefaultTargetTokens
	}
	if c.overlap == 0 {
		c.overlap = DefaultOverlapTokens
	}
	if c.min == 0 {
		c.min = DefaultMinTokens
	}
	switch {
	case tok == nil:
		return nil, apperr.Validation("tokenizer", "required")
	case c.target < 1:
		return nil, apperr.Validation("target_tokens", "must be positive, got %d", c.target)
	case c.overlap < 0 || c.overlap >= c.target:
		return nil, apperr.Validation("overlap_tokens", "must be in [0, %d), got %d", c.target, c.overlap)
	case c.min < 0 || c.min > c.target:
		return nil, apperr.Validation("min_tokens", "must be in [0, %d], got %d", c.target, c.min)
	}
	return c, nil
}

// Tokenizer returns the tokenizer used for size accounting.
func (c *Chunker) Tokenizer() Tokenizer { return c.tok }

// ChunkPaper chunks a paper's title-prefixed abstract. Passages without a
// detected heading are labeled as abstract text.
func (c *Chunker) ChunkPaper(title, abstract string) []types.Chunk {
	if strings.TrimSpace(abstract) == "" {
		return nil
	}
	text := abstract
	if t := strings.TrimSpace(title); t != "" {
		text = t + "\n\n" + abstract
	}
	chunks := c.Chunk(text)
	for i := range chunks {
		if chunks[i].Section == "" {
			chunks[i].Section = SectionAbstract
		}
	}
	return chunks
}

// Chunk splits text into passages with dense indexes from 0. Joining the
// bodies (Chunk.Body) with single spaces yields the whitespace-normalized
// input. Every passage holds at most the target token count with two
// exceptions: a single word that alone exceeds it, and a final passage that
// absorbed an undersized tail, which holds at most tailMergeFactor times the
// target.
func (c *Chunker) Chunk(text string) []types.Chunk {
	whole := normalize(text)
	if whole == "" {
		return nil
	}
	if n := c.tok.Count(whole); n <= c.target {
		return []types.Chunk{c.build(0, whole, "", n)}
	}

	bodies, merged := c.mergeTail(c.pack(c.fragments(text)))
	texts, overlaps := c.assemble(bodies, merged)

	out := make([]types.Chunk, len(bodies))
	for i := range bodies {
		out[i] = c.build(i, texts[i], overlaps[i], c.tok.Count(texts[i]))
	}
	return out
}

// assemble prefixes every body after the first with the tail of the body
// before it. When mergedTail is set the last passage may grow to the tail
// limit instead of the target.
func (c *Chunker) assemble(bodies []string, mergedTail bool) (texts, overlaps []string) {
	texts = make([]string, len(bodies))
	overlaps = make([]string, len(bodies))
	for i, body := range bodies {
		if i > 0 {
			limit := c.target
			if mergedTail && i == len(bodies)-1 {
				limit = c.tailLimit()
			}
			overlaps[i] = c.overlapFor(bodies[i-1], body, limit)
		}
		texts[i] = join(overlaps[i], body)
	}
	return texts, overlaps
}

// fragments breaks text into pieces that each fit a non-first passage body.
func (c *Chunker) fragments(text string) []string {
	budget := c.target - c.overlap
	var out []string
	for _, para := range paragraphs(text) {
		if c.tok.Count(para) <= budget {
			out = append(out, para)
			continue
		}
		for _, s := range sentences(para) {
			if c.tok.Count(s) <= budget {
				out = append(out, s)
				continue
			}
			out = append(out, splitWords(c.tok, s, budget)...)
		}
	}
	return out
}

// pack merges fragments forward while they fit. The first body may use the
// full target; later bodies leave room for the overlap prefix.
func (c *Chunker) pack(frags []string) []string {
	var bodies []string
	cur := ""
	for _, f := range frags {
		if cur == "" {
			cur = f
			continue
		}
		limit := c.target - c.overlap
		if len(bodies) == 0 {
			limit = c.target
		}
		if merged := cur + " " + f; c.tok.Count(merged) <= limit {
			cur = merged
			continue
		}
		bodies = append(bodies, cur)
		cur = f
	}
	if cur != "" {
		bodies = append(bodies, cur)
	}
	return bodies
}

// mergeTail folds an undersized final body into its predecessor when the
// merged body stays within the tail limit. It reports whether it merged.
func (c *Chunker) mergeTail(bodies []string) ([]string, bool) {
	n := len(bodies)
	if n < 2 || c.tok.Count(bodies[n-1]) >= c.min {
		return bodies, false
	}
	merged := bodies[n-2] + " " + bodies[n-1]
	if c.tok.Count(merged) > c.tailLimit() {
		return bodies, false
	}
	return append(bodies[:n-2:n-2], merged), true
}

func (c *Chunker) tailLimit() int {
	return int(tailMergeFactor * float64(c.target))
}

// tail returns the trailing words of prev holding at most c.overlap tokens.
func (c *Chunker) tail(prev string) string {
	if c.overlap == 0 || prev == "" {
		return ""
	}
	words := strings.Fields(prev)
	start := len(words)
	for start > 0 && c.tok.Count(strings.Join(words[start-1:], " ")) <= c.overlap {
		start--
	}
	return strings.Join(words[start:], " ")
}

// overlapFor returns tail(prev), dropping leading words if needed so the
// overlapped passage holds at most limit tokens.
func (c *Chunker) overlapFor(prev, body string, limit int) string {
	words := strings.Fields(c.tail(prev))
	for len(words) > 0 && c.tok.Count(join(strings.Join(words, " "), body)) > limit {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func (c *Chunker) build(index int, text, overlap string, tokens int) types.Chunk {
	body := text
	if overlap != "" {
		body = text[len(overlap)+1:]
	}
	return types.Chunk{
		Text:         text,
		ChunkIndex:   index,
		Section:      DetectSection(body),
		TokenCount:   tokens,
		CharCount:    len([]rune(text)),
		OverlapChars: len(overlap),
	}
}

func join(overlap, body string) string {
	if overlap == "" {
		return body
	}
	return overlap + " " + body
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

func newWordChunker(t *testing.T, target, overlap, min int) *Chunker {
	t.Helper()
	c, err := New(WordTokenizer{}, types.ChunkConfig{TargetTokens: target, OverlapTokens: overlap, MinTokens: min})
	require.NoError(t, err)
	return c
}

// words returns n distinct words with the given prefix.
func words(prefix string, n int) string {
	ws := make([]string, n)
	for i := range ws {
		ws[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(ws, " ")
}

// sampleText builds several paragraphs of short sentences.
func sampleText() string {
	var paras []string
	for p := 0; p < 6; p++ {
		var sents []string
		for s := 0; s < 4; s++ {
			sents = append(sents, fmt.Sprintf("Sentence %d of paragraph %d covers %s.", s, p, words(fmt.Sprintf("w%d%d_", p, s), 5)))
		}
		paras = append(paras, strings.Join(sents, "  "))
	}
	return strings.Join(paras, "\n\n")
}

func bodies(chunks []types.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Body()
	}
	return strings.Join(parts, " ")
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  types.ChunkConfig
	}{
		{"overlap equals target", types.ChunkConfig{TargetTokens: 50, OverlapTokens: 50, MinTokens: 10}},
		{"overlap above target", types.ChunkConfig{TargetTokens: 50, OverlapTokens: 60, MinTokens: 10}},
		{"min above target", types.ChunkConfig{TargetTokens: 50, OverlapTokens: 5, MinTokens: 51}},
		{"negative target", types.ChunkConfig{TargetTokens: -1, OverlapTokens: 5, MinTokens: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WordTokenizer{}, tt.cfg)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	_, err := New(nil, types.ChunkConfig{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	c, err := New(WordTokenizer{}, types.ChunkConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTargetTokens, c.target)
	assert.Equal(t, DefaultOverlapTokens, c.overlap)
	assert.Equal(t, DefaultMinTokens, c.min)
}

func TestChunkEmpty(t *testing.T) {
	c := newWordChunker(t, 20, 5, 5)
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk(" \n\n\t "))
}

func TestChunkSingle(t *testing.T) {
	c := newWordChunker(t, 20, 5, 5)
	got := c.Chunk("  A short   abstract\n\nwith two paragraphs. ")
	require.Len(t, got, 1)
	assert.Equal(t, "A short abstract with two paragraphs.", got[0].Text)
	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.False(t, got[0].HasOverlap())
	assert.Equal(t, 6, got[0].TokenCount)
	assert.Equal(t, len(got[0].Text), got[0].CharCount)
}

func TestChunkExactlyTarget(t *testing.T) {
	c := newWordChunker(t, 20, 5, 5)
	got := c.Chunk(words("x", 20))
	require.Len(t, got, 1)
	assert.Equal(t, 20, got[0].TokenCount)
}

func TestChunkSizeBoundAndOverlap(t *testing.T) {
	c := newWordChunker(t, 30, 5, 5)
	text := sampleText()
	got := c.Chunk(text)
	require.Greater(t, len(got), 2)

	for i, ch := range got {
		assert.Equal(t, i, ch.ChunkIndex, "indexes are dense")
		bound := 30
		if i == len(got)-1 {
			// A final passage that absorbed an undersized tail may reach 1.2x.
			bound = 36
		}
		assert.LessOrEqual(t, ch.TokenCount, bound, "chunk %d exceeds target", i)
		assert.Equal(t, WordTokenizer{}.Count(ch.Text), ch.TokenCount)
		if i == 0 {
			assert.False(t, ch.HasOverlap())
			continue
		}
		require.True(t, ch.HasOverlap(), "chunk %d lacks overlap", i)
		overlap := ch.Text[:ch.OverlapChars]
		assert.LessOrEqual(t, WordTokenizer{}.Count(overlap), 5)
		assert.True(t, strings.HasSuffix(got[i-1].Body(), overlap),
			"overlap of chunk %d is the tail of chunk %d's body", i, i-1)
	}

	assert.Equal(t, normalize(text), bodies(got), "bodies reconstruct the normalized input")
}

func TestChunkSplitsLongSentenceOnWords(t *testing.T) {
	c := newWordChunker(t, 20, 5, 3)
	text := words("tok", 73)
	got := c.Chunk(text)
	require.Greater(t, len(got), 1)
	for _, ch := range got {
		assert.LessOrEqual(t, ch.TokenCount, 20)
	}
	assert.Equal(t, text, bodies(got))
}

func TestChunkMergesUndersizedTail(t *testing.T) {
	c := newWordChunker(t, 10, 2, 3)
	text := words("a", 10) + "\n\n" + "tail"
	got := c.Chunk(text)
	require.Len(t, got, 1, "the tail joins the previous passage within 1.2x the target")
	assert.Equal(t, words("a", 10)+" tail", got[0].Text)
	assert.Equal(t, 11, got[0].TokenCount)
	assert.False(t, got[0].HasOverlap())
}

func TestChunkMergedTailKeepsOverlap(t *testing.T) {
	c := newWordChunker(t, 10, 2, 3)
	text := words("a", 10) + "\n\n" + words("b", 8) + "\n\n" + "tail"
	got := c.Chunk(text)
	require.Len(t, got, 2)
	assert.Equal(t, words("a", 10), got[0].Text)
	assert.Equal(t, "a8 a9 "+words("b", 8)+" tail", got[1].Text)
	assert.Equal(t, 11, got[1].TokenCount, "the merged passage is bounded by 1.2x the target")
	assert.Equal(t, normalize(text), bodies(got))
}

func TestChunkKeepsTailTooLargeToMerge(t *testing.T) {
	c := newWordChunker(t, 10, 2, 5)
	text := words("a", 10) + "\n\n" + words("t", 3)
	got := c.Chunk(text)
	require.Len(t, got, 2, "merging would pass 1.2x the target")
	assert.Equal(t, words("a", 10), got[0].Text)
	assert.Equal(t, "a8 a9 t0 t1 t2", got[1].Text)
	assert.Equal(t, words("t", 3), got[1].Body())
}

func TestChunkOverlapComesFromPreviousBody(t *testing.T) {
	c := newWordChunker(t, 10, 4, 1)
	text := words("a", 10) + "\n\n" + "b0 b1" + "\n\n" + words("c", 6)
	got := c.Chunk(text)
	require.Len(t, got, 3)
	assert.Equal(t, "a6 a7 a8 a9 b0 b1", got[1].Text)
	assert.Equal(t, "b0 b1", got[1].Body())
	assert.Equal(t, "b0 b1 "+words("c", 6), got[2].Text,
		"a body shorter than the overlap lends only itself, not its own overlap")
}

func TestChunkPaper(t *testing.T) {
	c := newWordChunker(t, 30, 5, 5)

	assert.Empty(t, c.ChunkPaper("Title only", "  "))

	got := c.ChunkPaper("Base editing in T cells", "We report efficient editing.")
	require.Len(t, got, 1)
	assert.Equal(t, "Base editing in T cells We report efficient editing.", got[0].Text)
	assert.Equal(t, SectionAbstract, got[0].Section)

	long := c.ChunkPaper("A title", sampleText())
	require.Greater(t, len(long), 1)
	assert.True(t, strings.HasPrefix(long[0].Text, "A title Sentence 0"))
	for _, ch := range long {
		assert.NotEmpty(t, ch.Section)
	}
}

func TestChunkDetectsSections(t *testing.T) {
	c := newWordChunker(t, 12, 2, 1)
	text := "Background: " + words("b", 9) + "\n\n" + "Methods. " + words("m", 8) + "\n\n" + "Results " + words("r", 8)
	got := c.Chunk(text)
	require.Len(t, got, 3)
	assert.Equal(t, SectionBackground, got[0].Section)
	assert.Equal(t, SectionMethods, got[1].Section)
	assert.Equal(t, SectionResults, got[2].Section)
}

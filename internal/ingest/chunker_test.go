package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "w%d", i)
	}
	return b.String()
}

func TestNormalizeContent(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeContent("  a\n\tb   c \r\n"))
	assert.Equal(t, "", NormalizeContent("   \n\t  "))
}

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	chunks := ChunkText(words(10))
	require.Len(t, chunks, 1)
	assert.Equal(t, 10, chunks[0].TokenCount)
	assert.Equal(t, words(10), chunks[0].Text)
}

func TestChunkTextEmpty(t *testing.T) {
	assert.Nil(t, ChunkText(""))
}

func TestChunkTextExactWindowSize(t *testing.T) {
	chunks := ChunkText(words(chunkSizeTokens))
	require.Len(t, chunks, 1)
	assert.Equal(t, chunkSizeTokens, chunks[0].TokenCount)
}

func TestChunkTextOverlap(t *testing.T) {
	chunks := ChunkText(words(2500))
	require.Len(t, chunks, 3)

	assert.Equal(t, chunkSizeTokens, chunks[0].TokenCount)
	assert.Equal(t, chunkSizeTokens, chunks[1].TokenCount)
	// 2500 tokens, step 880: last window starts at 1760.
	assert.Equal(t, 740, chunks[2].TokenCount)

	// Each chunk shares its trailing overlap with the next chunk's head.
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, first[len(first)-chunkOverlapTokens:], second[:chunkOverlapTokens])
}

func TestChunkTextDeterministic(t *testing.T) {
	input := words(3000)
	a := ChunkText(input)
	b := ChunkText(input)
	assert.Equal(t, a, b)
}

func TestChunkTextCoversAllTokens(t *testing.T) {
	input := words(1901)
	chunks := ChunkText(input)
	require.NotEmpty(t, chunks)

	last := strings.Fields(chunks[len(chunks)-1].Text)
	assert.Equal(t, "w1900", last[len(last)-1])
}

func TestDocumentIDStable(t *testing.T) {
	a := DocumentID("md", "https://example.com/a", "deadbeef")
	b := DocumentID("md", "https://example.com/a", "deadbeef")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, DocumentID("url", "https://example.com/a", "deadbeef"))
	assert.NotEqual(t, a, DocumentID("md", "https://example.com/b", "deadbeef"))
	assert.NotEqual(t, a, DocumentID("md", "https://example.com/a", "cafebabe"))
}

func TestChunkIDStable(t *testing.T) {
	docID := uuid.New()
	a := ChunkID(docID, 0, "hello world")
	assert.Equal(t, a, ChunkID(docID, 0, "hello world"))
	assert.NotEqual(t, a, ChunkID(docID, 1, "hello world"))
	assert.NotEqual(t, a, ChunkID(docID, 0, "other text"))
	assert.NotEqual(t, a, ChunkID(uuid.New(), 0, "hello world"))
}

func TestHashContentIgnoresFormattingAfterNormalize(t *testing.T) {
	a := HashContent(NormalizeContent("hello   world"))
	b := HashContent(NormalizeContent("hello\nworld"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

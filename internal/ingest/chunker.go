package ingest

import "strings"

const (
	// chunkSizeTokens is the target window size in whitespace tokens.
	chunkSizeTokens = 1000
	// chunkOverlapTokens is how many trailing tokens each chunk shares with
	// the next one, so sentences split at a boundary stay retrievable.
	chunkOverlapTokens = 120
)

// TextChunk is one window of normalized document content.
type TextChunk struct {
	Text       string
	TokenCount int
}

// NormalizeContent collapses all whitespace runs to single spaces and trims
// the ends. Normalization happens before hashing so that formatting-only
// edits do not produce a new document identity.
func NormalizeContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// ChunkText splits normalized content into overlapping fixed-size token
// windows. The split is fully deterministic: the same input always produces
// the same chunks in the same order. Content at or under the window size
// yields a single chunk.
func ChunkText(normalized string) []TextChunk {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= chunkSizeTokens {
		return []TextChunk{{Text: strings.Join(tokens, " "), TokenCount: len(tokens)}}
	}

	step := chunkSizeTokens - chunkOverlapTokens
	chunks := make([]TextChunk, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := start + chunkSizeTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		chunks = append(chunks, TextChunk{
			Text:       strings.Join(window, " "),
			TokenCount: len(window),
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

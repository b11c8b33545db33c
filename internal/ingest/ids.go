package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"
)

// Fixed namespaces for deterministic (version 5) UUID derivation. Changing
// either value would re-identify every stored document and chunk, so they
// are frozen.
var (
	nsDocument = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8") // uuid.NameSpaceDNS-adjacent, RFC 4122
	nsChunk    = uuid.MustParse("91d8a2c6-3f54-4bfb-9a70-52ad0a83d1cd")
)

// HashContent returns the hex sha256 of normalized content.
func HashContent(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// DocumentID derives the deterministic document UUID from the idempotency
// key. Identical (source_type, source_url, content_hash) always yields the
// same ID, which is what lets racing ingestions converge on one row.
func DocumentID(sourceType, sourceURL, contentHash string) uuid.UUID {
	name := sourceType + "\x00" + sourceURL + "\x00" + contentHash
	return uuid.NewSHA1(nsDocument, []byte(name))
}

// ChunkID derives the deterministic chunk UUID from (doc_id, chunk_index,
// text). Stable across process restarts and independent of call order.
func ChunkID(docID uuid.UUID, index int, text string) uuid.UUID {
	name := make([]byte, 0, len(docID)+len(text)+8)
	name = append(name, docID[:]...)
	name = append(name, 0)
	name = strconv.AppendInt(name, int64(index), 10)
	name = append(name, 0)
	name = append(name, text...)
	return uuid.NewSHA1(nsChunk, name)
}

package utils

import (
	"crypto/md5"
	"fmt"
)

// HashString returns the hex md5 of the input. Used for deterministic chunk
// keys and document content hashes; same text always maps to the same key.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// ChunkKey derives the stable id of a chunk from its parent document and its
// exact text, so re-ingestion of identical text is a no-op at the chunk level.
func ChunkKey(documentID, text string) string {
	return HashString(documentID + "|" + text)
}

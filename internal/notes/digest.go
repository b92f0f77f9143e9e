package notes

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize cleans a note body for comparison: line endings become \n and
// surrounding whitespace is trimmed.
func Normalize(content string) string {
	return strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
}

// Digest returns the SHA-256 of the normalized body as a hex string.
// Bodies that differ only in line endings or surrounding whitespace share a digest.
func Digest(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return fmt.Sprintf("%x", sum)
}

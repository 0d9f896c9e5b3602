package trust

import (
	"crypto/sha256"
	"fmt"
)

// ComputeChecksum returns the sha256 content hash of content in the
// "sha256:<hex>" form used throughout the core for content_hash fields.
func ComputeChecksum(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("sha256:%x", sum)
}

// VerifyChecksum reports whether content matches an expected
// "sha256:<hex>" checksum string.
func VerifyChecksum(content []byte, expected string) bool {
	return ComputeChecksum(content) == expected
}

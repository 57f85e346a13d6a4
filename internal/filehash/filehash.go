// Package filehash computes the short content fingerprints used throughout
// snapshots and checkpoints: the first 8 hex characters of a file's SHA-256
// digest. An unreadable or absent file hashes to the empty string, which
// the rest of the engine treats as "absent" per the error-handling design's
// local-recovery policy.
package filehash

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// Hash returns the 8-hex-char fingerprint of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:8]
}

// HashString is a convenience wrapper over Hash for string content.
func HashString(content string) string {
	return Hash([]byte(content))
}

// HashFile reads path and returns its fingerprint, or "" if the file cannot
// be read (missing, permission denied, or a directory).
func HashFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return Hash(data)
}

// Package fileid derives stable content identities for images and model artifacts.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const prefix = "img:"

// ContentID returns a stable identity for raw image bytes. Identical bytes
// always yield the same ID regardless of file name.
func ContentID(data []byte) string {
	hash := sha256.Sum256(data)
	return prefix + hex.EncodeToString(hash[:])
}

// FileChecksum returns the first 16 hex characters of the SHA-256 of the file
// at path. It identifies a model checkpoint for cache compatibility checks.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

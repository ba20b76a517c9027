// Package fileid identifies image files by path and by content, so the indexer can skip
// files whose bytes have not changed since they were last ingested.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const prefix = "sha256:"

// PathKey returns the normalized form of path used to track a file.
// Relative paths are made absolute against the working directory when possible.
func PathKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Digest returns the content digest of the file at path.
// Same bytes always yield the same digest, regardless of the file name.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return prefix + hex.EncodeToString(h.Sum(nil)), nil
}

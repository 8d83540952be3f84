// Package shard maps record keys to fan-out directory paths.
package shard

import (
	"crypto/md5" //nolint:gosec // G501: used for distribution, not security
	"encoding/hex"
	"path/filepath"
)

const (
	// DefaultHeight is the number of directory levels between a store root and a record.
	DefaultHeight = 3

	// DefaultWidth is the number of hex characters per directory level.
	// Each level fans out to at most 16^DefaultWidth subdirectories.
	DefaultWidth = 4

	// DigestLen is the length of the hex encoded key digest.
	DigestLen = md5.Size * 2
)

// Segments splits the hex MD5 digest of key into height consecutive
// substrings of width characters each.
// Out of range parameters are clamped so that the result always fits in the digest.
func Segments(key string, height, width int) []string {
	height, width = Clamp(height, width)
	sum := md5.Sum([]byte(key)) //nolint:gosec // G401
	digest := hex.EncodeToString(sum[:])

	segments := make([]string, height)
	for i := range segments {
		segments[i] = digest[i*width : (i+1)*width]
	}
	return segments
}

// Path joins root with the shard segments of key.
// It never touches the filesystem.
func Path(root, key string, height, width int) string {
	parts := append([]string{root}, Segments(key, height, width)...)
	return filepath.Join(parts...)
}

// Clamp bounds height and width to at least 1 and height*width to DigestLen.
// Width wins over height when both can't be honored.
func Clamp(height, width int) (int, int) {
	if width < 1 {
		width = 1
	}
	if width > DigestLen {
		width = DigestLen
	}
	if height < 1 {
		height = 1
	}
	if height*width > DigestLen {
		height = DigestLen / width
	}
	return height, width
}

package store

import (
	"log/slog"
	"os"

	"github.com/jacentio/fskv/internal/shard"
)

// DefaultMarker is the marker directory name used by DefaultConfig.
const DefaultMarker = ".fskv"

// Config holds configuration for the Store.
type Config struct {
	// Create allows New to create the root directory when it is absent.
	// When false, the root must already exist.
	// Default: true
	Create bool

	// Marker is the name of a subdirectory of the root that identifies it as a store.
	// An existing root without the marker is rejected with ErrNotAStore.
	// Empty disables the check; any existing directory is then accepted.
	// Default: ".fskv"
	Marker string

	// TreeHeight is the number of shard directory levels.
	// Default: 3
	TreeHeight int

	// SegmentWidth is the number of hex digest characters per shard directory name.
	// Each level holds at most 16^SegmentWidth directories.
	// TreeHeight*SegmentWidth can't exceed 32 (the MD5 hex digest length).
	// Default: 4
	//
	// Examples:
	//   - 3 x 4: 65,536 entries per level (reference layout)
	//   - 2 x 2: 256 entries per level, fine for small stores
	SegmentWidth int

	// DirPerm is the permission used for the root and shard directories.
	// Default: 0o750
	DirPerm os.FileMode

	// FilePerm is the permission used for record files.
	// Default: 0o640
	FilePerm os.FileMode

	// Logger receives debug logs for each operation.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns the reference layout: a marked root and a 3 level, 4 character tree.
func DefaultConfig() Config {
	return Config{
		Create:       true,
		Marker:       DefaultMarker,
		TreeHeight:   shard.DefaultHeight,
		SegmentWidth: shard.DefaultWidth,
		DirPerm:      0o750,
		FilePerm:     0o640,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TreeHeight == 0 {
		c.TreeHeight = shard.DefaultHeight
	}
	if c.SegmentWidth == 0 {
		c.SegmentWidth = shard.DefaultWidth
	}
	c.TreeHeight, c.SegmentWidth = shard.Clamp(c.TreeHeight, c.SegmentWidth)
	if c.DirPerm == 0 {
		c.DirPerm = 0o750
	}
	if c.FilePerm == 0 {
		c.FilePerm = 0o640
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

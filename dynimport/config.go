package dynimport

import "log/slog"

// Config holds configuration for an Importer.
type Config struct {
	// Table is the DynamoDB table to scan. Required.
	Table string

	// KeyAttr names the string attribute used as the record key.
	// Default: "pk"
	KeyAttr string

	// ValueAttr names the attribute used as the record value.
	// String (S) and binary (B) attributes are supported.
	// Default: "value"
	ValueAttr string

	// Overwrite replaces existing records with Update instead of skipping them.
	Overwrite bool

	// Workers is the number of concurrent record writes.
	// Default: 4
	// Max: 64
	Workers int

	// PageSize limits items per Scan request (0 = service default).
	PageSize int32

	// Logger receives progress and skipped item logs.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns defaults for a table keyed by "pk" holding "value".
func DefaultConfig() Config {
	return Config{
		KeyAttr:   "pk",
		ValueAttr: "value",
		Workers:   4,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.KeyAttr == "" {
		c.KeyAttr = "pk"
	}
	if c.ValueAttr == "" {
		c.ValueAttr = "value"
	}
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.Workers > 64 {
		c.Workers = 64
	}
	if c.PageSize < 0 {
		c.PageSize = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

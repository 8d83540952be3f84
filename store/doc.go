// Package store provides a key-value store that keeps one file per record
// in a hash-sharded directory tree.
//
// There is no index, cache or background goroutine: the filesystem is the
// only state, so any number of [Store] handles (in one or many processes)
// may share a root directory.
//
// # Layout
//
// A record for key k lives at
//
//	<root>/<d[0:4]>/<d[4:8]>/<d[8:12]>/<k>
//
// where d is the hex MD5 digest of k. The file content is the raw value.
// Tree height and segment width are configurable via [Config]. Shard
// directories are created on demand and never removed, even once empty.
//
// When [Config.Marker] is set (the default), the root also holds a marker
// directory. [New] refuses an existing root without it.
//
// # Atomicity
//
// Every guarantee comes from a single filesystem primitive:
//
//   - [Store.Put] uses exclusive create, so at most one concurrent Put per key succeeds.
//   - [Store.Update] writes a uniquely named temp file and renames it over the
//     record; readers see the old or the new value, never a mix.
//   - [Store.Delete] removes the file.
//
// A Put that fails mid-write leaves a truncated record behind. Callers that
// need read-modify-write semantics across calls must coordinate externally.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - record doesn't exist
//   - [ErrAlreadyExists] - Put on an existing record
//   - [ErrNotAStore] - root exists but is not a store
//   - [ErrInvalidKey] - key can't be used as a file name
//
// Filesystem errors are wrapped, so errors.Is works with both the sentinels
// above and io/fs errors such as fs.ErrPermission.
package store

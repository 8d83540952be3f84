package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jacentio/fskv/internal/shard"
)

// TempPrefix prefixes the temporary files written by Update.
// Keys can't start with it.
const TempPrefix = ".fskv-tmp-"

// Store provides record operations on a sharded directory tree.
type Store struct {
	root   string
	config Config
}

// New opens the store at root, creating it if allowed by config.Create.
func New(root string, config Config) (*Store, error) {
	config.validate()

	state, err := classifyRoot(root, config.Marker)
	if err != nil {
		return nil, fmt.Errorf("inspect root: %w", err)
	}

	switch state {
	case rootValid:
		config.Logger.Debug("store opened", "root", root)
	case rootNotAStore:
		return nil, fmt.Errorf("%w: %s", ErrNotAStore, root)
	case rootAbsent:
		if !config.Create {
			return nil, &fs.PathError{Op: "open", Path: root, Err: fs.ErrNotExist}
		}
		if err := initRoot(root, config); err != nil {
			return nil, err
		}
		config.Logger.Debug("store created", "root", root, "marker", config.Marker)
	}

	return &Store{
		root:   root,
		config: config,
	}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// KeyPath returns the shard directory holding key's record.
// It doesn't access the filesystem.
func (s *Store) KeyPath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return shard.Path(s.root, key, s.config.TreeHeight, s.config.SegmentWidth), nil
}

// RecordPath returns the path of key's record file.
func (s *Store) RecordPath(key string) (string, error) {
	dir, err := s.KeyPath(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, key), nil
}

// EnsureKeyPath is KeyPath that also creates the shard directories.
func (s *Store) EnsureKeyPath(key string) (string, error) {
	dir, err := s.KeyPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, s.config.DirPerm); err != nil {
		return "", fmt.Errorf("create shard directory: %w", err)
	}
	return dir, nil
}

// Put creates the record for key. It fails with ErrAlreadyExists if the
// record is present.
func (s *Store) Put(key string, value []byte) error {
	dir, err := s.EnsureKeyPath(key)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.config.FilePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
		}
		return fmt.Errorf("create record: %w", err)
	}
	// A failed write leaves the truncated record in place.
	if err := writeFile(f, value, false); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	s.config.Logger.Debug("record created", "key", key, "bytes", len(value))
	return nil
}

// Get returns the value stored for key.
func (s *Store) Get(key string) ([]byte, error) {
	path, err := s.RecordPath(key)
	if err != nil {
		return nil, err
	}
	value, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("read record: %w", err)
	}
	return value, nil
}

// Has reports whether a record exists for key.
func (s *Store) Has(key string) (bool, error) {
	path, err := s.RecordPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat record: %w", err)
	}
	return true, nil
}

// Update creates the record for key or atomically replaces its value.
//
// An absent record is created with Put. A present record is replaced by
// writing a temp file in the shard directory and renaming it over the
// record, so on failure the previous value is left untouched.
func (s *Store) Update(key string, value []byte) error {
	dir, err := s.KeyPath(key)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, key)

	if _, err := os.Lstat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat record: %w", err)
		}
		err := s.Put(key, value)
		if !errors.Is(err, ErrAlreadyExists) {
			return err
		}
		// A concurrent Put created the record first.
	}

	tmp := filepath.Join(dir, TempPrefix+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.config.FilePerm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := writeFile(f, value, true); err != nil {
		return errors.Join(fmt.Errorf("write temp file: %w", err), s.removeTemp(tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("replace record: %w", err), s.removeTemp(tmp))
	}

	s.config.Logger.Debug("record replaced", "key", key, "bytes", len(value))
	return nil
}

// Delete removes the record for key. Its shard directories are kept.
func (s *Store) Delete(key string) error {
	path, err := s.RecordPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return fmt.Errorf("delete record: %w", err)
	}

	s.config.Logger.Debug("record deleted", "key", key)
	return nil
}

// ValidateKey returns ErrInvalidKey if key can't be stored as a single file name.
func ValidateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(key, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidKey, key)
	case strings.HasPrefix(key, TempPrefix):
		return fmt.Errorf("%w: %q uses the reserved prefix %q", ErrInvalidKey, key, TempPrefix)
	}
	return nil
}

// removeTemp removes an abandoned temp file, ignoring one that is already gone.
func (s *Store) removeTemp(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.config.Logger.Warn("failed to remove temp file", "path", path, "error", err)
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

// writeFile writes data to f and closes it, syncing first if requested.
func writeFile(f *os.File, data []byte, sync bool) error {
	_, err := f.Write(data)
	if err == nil && sync {
		err = f.Sync()
	}
	return errors.Join(err, f.Close())
}

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// rootState is the outcome of inspecting a candidate store root.
type rootState int

const (
	rootAbsent rootState = iota
	rootValid
	rootNotAStore
)

// String implements fmt.Stringer.
func (r rootState) String() string {
	switch r {
	case rootAbsent:
		return "absent"
	case rootValid:
		return "valid"
	case rootNotAStore:
		return "not a store"
	default:
		return fmt.Sprintf("rootState(%d)", int(r))
	}
}

// classifyRoot inspects root without modifying it.
//
// With an empty marker any existing directory is valid.
func classifyRoot(root, marker string) (rootState, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rootAbsent, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return rootNotAStore, nil
	}
	if marker == "" {
		return rootValid, nil
	}

	info, err = os.Stat(filepath.Join(root, marker))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rootNotAStore, nil
		}
		return 0, err
	}
	if !info.IsDir() {
		return rootNotAStore, nil
	}
	return rootValid, nil
}

// initRoot creates root, its missing parents and the marker directory.
// Racing creators of the same root all succeed.
//
// In marker mode the root is assembled under a temp name and renamed into
// place, so no other process can observe it without its marker.
func initRoot(root string, config Config) error {
	if config.Marker == "" {
		if err := os.MkdirAll(root, config.DirPerm); err != nil {
			return fmt.Errorf("create root: %w", err)
		}
		return nil
	}

	root = filepath.Clean(root)
	if err := os.MkdirAll(filepath.Dir(root), config.DirPerm); err != nil {
		return fmt.Errorf("create root: %w", err)
	}
	tmp := root + TempPrefix + uuid.NewString()
	if err := os.Mkdir(tmp, config.DirPerm); err != nil {
		return fmt.Errorf("create root: %w", err)
	}
	if err := os.Mkdir(filepath.Join(tmp, config.Marker), config.DirPerm); err != nil {
		return errors.Join(fmt.Errorf("create marker: %w", err), os.RemoveAll(tmp))
	}

	renameErr := os.Rename(tmp, root)
	if renameErr == nil {
		return nil
	}
	if err := os.RemoveAll(tmp); err != nil {
		config.Logger.Warn("failed to remove temp root", "path", tmp, "error", err)
	}

	// Someone else put a directory there first.
	state, err := classifyRoot(root, config.Marker)
	switch {
	case err != nil:
		return errors.Join(fmt.Errorf("create root: %w", renameErr), err)
	case state == rootValid:
		return nil
	case state == rootNotAStore:
		return fmt.Errorf("%w: %s", ErrNotAStore, root)
	default:
		return fmt.Errorf("create root: %w", renameErr)
	}
}

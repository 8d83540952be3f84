// Package watch reports changes to store records using filesystem notifications.
//
// A [Watcher] watches the shard directories of the keys it was given and
// translates events on their record files into [Event] values. Values are
// not delivered; consumers call store.Store.Get when notified.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jacentio/fskv/store"
)

// Op describes a change to a record.
type Op int

const (
	// OpWrite is reported when a record is created, written or replaced.
	// A single Put may produce more than one OpWrite.
	OpWrite Op = iota + 1

	// OpRemove is reported when a record is deleted.
	OpRemove
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Event is a change to a watched record.
type Event struct {
	Key string
	Op  Op
}

// Watcher delivers events for a set of keys.
type Watcher struct {
	store  *store.Store
	fsw    *fsnotify.Watcher
	logger *slog.Logger
	events chan Event

	closeOnce sync.Once
	closed    chan struct{}

	mu   sync.Mutex
	dirs map[string]map[string]struct{} // shard dir -> watched keys
}

// New creates a Watcher for records of s.
func New(s *store.Store, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		store:  s,
		fsw:    fsw,
		logger: logger,
		events: make(chan Event, 64),
		closed: make(chan struct{}),
		dirs:   make(map[string]map[string]struct{}),
	}, nil
}

// Add starts watching key. Its shard directory is created if missing.
func (w *Watcher) Add(key string) error {
	dir, err := w.store.EnsureKeyPath(key)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	keys, ok := w.dirs[dir]
	if !ok {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		keys = make(map[string]struct{})
		w.dirs[dir] = keys
	}
	keys[key] = struct{}{}
	return nil
}

// Remove stops watching key.
func (w *Watcher) Remove(key string) error {
	dir, err := w.store.KeyPath(key)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	keys, ok := w.dirs[dir]
	if !ok {
		return nil
	}
	delete(keys, key)
	if len(keys) > 0 {
		return nil
	}
	delete(w.dirs, dir)
	if err := w.fsw.Remove(dir); err != nil {
		return fmt.Errorf("unwatch %s: %w", dir, err)
	}
	return nil
}

// Events returns the event channel. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run delivers events until ctx is done or the Watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.closed:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			e, ok := w.translate(ev)
			if !ok {
				continue
			}
			w.logger.Debug("record changed", "key", e.Key, "op", e.Op)
			select {
			case w.events <- e:
			case <-ctx.Done():
				return ctx.Err()
			case <-w.closed:
				return nil
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Close stops the underlying watcher and ends Run, even while Run is
// blocked on a full event channel. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.closed) })
	return w.fsw.Close()
}

// translate maps a filesystem event on a watched record to an Event.
func (w *Watcher) translate(ev fsnotify.Event) (Event, bool) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, store.TempPrefix) {
		return Event{}, false
	}

	w.mu.Lock()
	_, watched := w.dirs[filepath.Dir(ev.Name)][name]
	w.mu.Unlock()
	if !watched {
		return Event{}, false
	}

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		return Event{Key: name, Op: OpWrite}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return Event{Key: name, Op: OpRemove}, true
	default:
		return Event{}, false
	}
}

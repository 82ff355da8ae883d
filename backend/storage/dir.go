package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DirBackend keeps one file per key in a directory. Several processes can
// share the directory; Watch turns their writes into Change notifications.
type DirBackend struct {
	dir string

	mu      sync.Mutex
	own     map[string]ownWrite // last write made through this handle, for echo suppression
	subs    map[int]func(Change)
	nextSub int

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

type ownWrite struct {
	value   string
	removed bool
}

var (
	_ Backend  = (*DirBackend)(nil)
	_ Notifier = (*DirBackend)(nil)
)

// OpenDir uses dir (created if missing) as a store.
func OpenDir(dir string) (*DirBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &DirBackend{
		dir:  dir,
		own:  make(map[string]ownWrite),
		subs: make(map[int]func(Change)),
	}, nil
}

// Dir returns the backing directory.
func (d *DirBackend) Dir() string { return d.dir }

func (d *DirBackend) path(key string) string {
	return filepath.Join(d.dir, url.PathEscape(key))
}

func (d *DirBackend) GetItem(key string) (string, bool, error) {
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading item: %w", err)
	}
	return string(data), true, nil
}

// SetItem writes through a temp file and rename so readers never see a partial value.
func (d *DirBackend) SetItem(key, value string) error {
	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing item: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	d.mu.Lock()
	d.own[key] = ownWrite{value: value}
	d.mu.Unlock()

	if err := os.Rename(tmpName, d.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing item: %w", err)
	}
	return nil
}

func (d *DirBackend) RemoveItem(key string) error {
	d.mu.Lock()
	d.own[key] = ownWrite{removed: true}
	d.mu.Unlock()

	err := os.Remove(d.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing item: %w", err)
	}
	return nil
}

// Keys implements Lister. Keys are sorted.
func (d *DirBackend) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("listing storage directory: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if key, ok := keyFromFile(e.Name()); ok && !e.IsDir() && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Subscribe implements Notifier. Changes are only delivered while Watch is running.
func (d *DirBackend) Subscribe(fn func(Change)) func() {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

// Watch starts delivering changes made by other processes. It returns once the
// watcher is installed; call Close to stop it.
func (d *DirBackend) Watch(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(d.dir); err != nil {
		watcher.Close()
		d.mu.Unlock()
		return fmt.Errorf("watching %s: %w", d.dir, err)
	}

	d.watcher = watcher
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.running = true
	d.mu.Unlock()

	go d.run(ctx, watcher, d.stopCh, d.doneCh)
	return nil
}

// Close stops the watcher, if any, and waits for it to exit.
func (d *DirBackend) Close() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	watcher, stopCh, doneCh := d.watcher, d.stopCh, d.doneCh
	d.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := watcher.Close(); err != nil {
		return fmt.Errorf("closing watcher: %w", err)
	}
	return nil
}

func (d *DirBackend) run(ctx context.Context, watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			d.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("storage watcher error", "dir", d.dir, "error", err)
		}
	}
}

func (d *DirBackend) handleEvent(event fsnotify.Event) {
	key, ok := keyFromFile(filepath.Base(event.Name))
	if !ok {
		return
	}

	var change Change
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		value, found, err := d.GetItem(key)
		if err != nil {
			slog.Warn("storage watcher read failed", "key", key, "error", err)
			return
		}
		if !found {
			return
		}
		change = Change{Key: key, NewValue: value}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if _, found, _ := d.GetItem(key); found {
			return
		}
		change = Change{Key: key, Removed: true}
	default:
		return
	}

	d.mu.Lock()
	if last, seen := d.own[key]; seen {
		if last.removed == change.Removed && last.value == change.NewValue {
			d.mu.Unlock()
			return
		}
		// someone else wrote since; an equal value later on is theirs, not an echo
		delete(d.own, key)
	}
	fns := make([]func(Change), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

func keyFromFile(name string) (string, bool) {
	if name == "" || strings.HasPrefix(name, ".") {
		return "", false
	}
	key, err := url.PathUnescape(name)
	if err != nil {
		return "", false
	}
	return key, true
}

// Package storage provides the dashboard's key-value persistence layer.
//
// Backends (memory, SQLite, directory) only move strings. Safe wraps a Backend
// so that no operation ever panics or blocks the caller on a failure: reads
// degrade to "not found", writes return an *OpError, and every failure is
// reported through slog. The JSON codec and the key constants live alongside.
package storage

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrUnavailable is returned when no backend is configured or the backend is disabled.
	ErrUnavailable = errors.New("storage: unavailable")
	// ErrQuotaExceeded is returned by size-limited backends.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
	// ErrNotListable is returned by Keys for backends that cannot enumerate keys.
	ErrNotListable = errors.New("storage: backend cannot list keys")
)

// probeKey is written and removed by IsAvailable.
const probeKey = "__storage_test__"

// Backend is a string key-value store.
type Backend interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Change describes a modification made by another handle or process.
type Change struct {
	Key      string
	NewValue string
	Removed  bool
}

// Notifier is implemented by backends that can report changes made elsewhere.
type Notifier interface {
	Subscribe(fn func(Change)) (cancel func())
}

// Lister is implemented by backends that can enumerate their keys.
type Lister interface {
	Keys(prefix string) ([]string, error)
}

// Keys returns every key of b, sorted.
func Keys(b Backend) ([]string, error) {
	l, ok := b.(Lister)
	if !ok {
		return nil, ErrNotListable
	}
	return l.Keys("")
}

// OpError records a failed storage operation.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("storage: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Safe is the fault-tolerant front of a Backend. A Safe with a nil backend
// behaves like storage in a context where none exists.
type Safe struct {
	backend Backend
}

// NewSafe wraps b. b may be nil.
func NewSafe(b Backend) *Safe {
	return &Safe{backend: b}
}

// Backend returns the wrapped backend.
func (s *Safe) Backend() Backend {
	return s.backend
}

// Get returns the stored value. Missing keys and failures both report ok=false.
func (s *Safe) Get(key string) (string, bool) {
	if s.backend == nil {
		return "", false
	}

	var (
		value string
		found bool
	)
	err := guard(func() error {
		var err error
		value, found, err = s.backend.GetItem(key)
		return err
	})
	if err != nil {
		s.report("get", key, err)
		return "", false
	}
	return value, found
}

// Set stores value under key.
func (s *Safe) Set(key, value string) error {
	if s.backend == nil {
		return &OpError{Op: "set", Key: key, Err: ErrUnavailable}
	}
	if err := guard(func() error { return s.backend.SetItem(key, value) }); err != nil {
		return s.report("set", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key succeeds.
func (s *Safe) Remove(key string) error {
	if s.backend == nil {
		return &OpError{Op: "remove", Key: key, Err: ErrUnavailable}
	}
	if err := guard(func() error { return s.backend.RemoveItem(key) }); err != nil {
		return s.report("remove", key, err)
	}
	return nil
}

// IsAvailable probes the backend with a throwaway write and delete.
func (s *Safe) IsAvailable() bool {
	if s.backend == nil {
		return false
	}
	err := guard(func() error {
		if err := s.backend.SetItem(probeKey, "test"); err != nil {
			return err
		}
		return s.backend.RemoveItem(probeKey)
	})
	return err == nil
}

// Subscribe registers fn for changes made outside this handle. ok is false
// when the backend cannot report changes; cancel is then a no-op.
func (s *Safe) Subscribe(fn func(Change)) (cancel func(), ok bool) {
	n, isNotifier := s.backend.(Notifier)
	if !isNotifier {
		return func() {}, false
	}
	return n.Subscribe(fn), true
}

func (s *Safe) report(op, key string, err error) error {
	opErr := &OpError{Op: op, Key: key, Err: err}
	slog.Warn("storage operation failed", "op", op, "key", key, "error", err)
	return opErr
}

// guard turns a backend panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return fn()
}

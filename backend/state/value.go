// Package state binds storage keys to in-memory values.
//
// A Value is loaded once when it is created and is never re-read from storage
// afterwards. Every write updates the cached value first and then persists it
// (write-through). Persistence failures are logged and returned to the caller;
// the cache keeps the intended value either way.
package state

import (
	"log/slog"
	"sync"

	"github.com/AnTengye/contractdash/backend/storage"
)

// Value is a typed, write-through view of one storage key.
type Value[T any] struct {
	safe *storage.Safe
	key  string
	def  T

	mu    sync.RWMutex // held across persistence so readers never see an unsaved value
	value T
}

// New loads key from s, using def when nothing usable is stored.
func New[T any](s *storage.Safe, key string, def T) *Value[T] {
	return &Value[T]{
		safe:  s,
		key:   key,
		def:   def,
		value: storage.GetJSON(s, key, def),
	}
}

// Key returns the bound storage key.
func (v *Value[T]) Key() string { return v.key }

// Get returns the cached value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set replaces the value.
func (v *Value[T]) Set(x T) error {
	return v.Update(func(T) T { return x })
}

// Update replaces the value with fn(previous). fn must not call back into v.
func (v *Value[T]) Update(fn func(prev T) T) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := fn(v.value)
	v.value = next
	if err := storage.SetJSON(v.safe, v.key, next); err != nil {
		slog.Error("failed to persist state", "key", v.key, "error", err)
		return err
	}
	return nil
}

// Reset restores the default and removes the key from storage.
func (v *Value[T]) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.value = v.def
	if err := v.safe.Remove(v.key); err != nil {
		slog.Error("failed to remove state", "key", v.key, "error", err)
		return err
	}
	return nil
}

// apply replaces the cached value without persisting it.
func (v *Value[T]) apply(x T) {
	v.mu.Lock()
	v.value = x
	v.mu.Unlock()
}

package state

import (
	"slices"

	"github.com/AnTengye/contractdash/backend/storage"
)

// List is a persisted slice. Every operation derives a new slice from the
// previous one and writes it through Value.Update.
type List[T any] struct {
	v     *Value[[]T]
	limit int
}

// ListOption configures a List.
type ListOption func(*listConfig)

type listConfig struct {
	limit int
}

// WithLimit keeps only the newest n items after Add. n <= 0 means unlimited.
func WithLimit(n int) ListOption {
	return func(c *listConfig) {
		c.limit = n
	}
}

// NewList binds key to a slice defaulting to def.
func NewList[T any](s *storage.Safe, key string, def []T, opts ...ListOption) *List[T] {
	var cfg listConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if def == nil {
		def = []T{}
	}
	return &List[T]{v: New(s, key, def), limit: cfg.limit}
}

// Items returns a copy of the current items.
func (l *List[T]) Items() []T {
	return slices.Clone(l.v.Get())
}

// Add appends item, dropping the oldest entries beyond the limit.
func (l *List[T]) Add(item T) error {
	_, err := l.Push(item)
	return err
}

// Push is Add that also returns the entries it dropped, oldest first. They
// are gone from the list even when the write fails.
func (l *List[T]) Push(item T) (dropped []T, err error) {
	err = l.v.Update(func(prev []T) []T {
		next := append(slices.Clone(prev), item)
		if l.limit > 0 && len(next) > l.limit {
			cut := len(next) - l.limit
			dropped = slices.Clone(next[:cut])
			next = next[cut:]
		}
		return next
	})
	return dropped, err
}

// RemoveAt drops the item at index. Out-of-range indexes leave the list unchanged.
func (l *List[T]) RemoveAt(index int) error {
	return l.v.Update(func(prev []T) []T {
		next := make([]T, 0, len(prev))
		for i, item := range prev {
			if i != index {
				next = append(next, item)
			}
		}
		return next
	})
}

// UpdateAt replaces the item at index.
func (l *List[T]) UpdateAt(index int, item T) error {
	return l.v.Update(func(prev []T) []T {
		next := slices.Clone(prev)
		if index >= 0 && index < len(next) {
			next[index] = item
		}
		return next
	})
}

// Clear stores an empty list.
func (l *List[T]) Clear() error {
	_, err := l.Drain()
	return err
}

// Drain is Clear that also returns the items it removed.
func (l *List[T]) Drain() (removed []T, err error) {
	err = l.v.Update(func(prev []T) []T {
		removed = prev
		return []T{}
	})
	return removed, err
}

// Replace stores a copy of items.
func (l *List[T]) Replace(items []T) error {
	return l.v.Update(func([]T) []T {
		if items == nil {
			return []T{}
		}
		return slices.Clone(items)
	})
}

// Reset restores the default and removes the key.
func (l *List[T]) Reset() error {
	return l.v.Reset()
}

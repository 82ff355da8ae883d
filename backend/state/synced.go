package state

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/AnTengye/contractdash/backend/storage"
)

// Synced is a Value that also follows changes made to its key by other
// handles or processes sharing the same store. Removals are ignored; any
// other change overwrites the cache without being written back.
type Synced[T any] struct {
	*Value[T]

	mu        sync.Mutex
	listeners []func(T)
	cancel    func()
	closeOnce sync.Once
}

// NewSynced creates the value and subscribes to external changes until Close.
func NewSynced[T any](s *storage.Safe, key string, def T) *Synced[T] {
	sv := &Synced[T]{Value: New(s, key, def)}

	cancel, ok := s.Subscribe(sv.handleChange)
	if !ok {
		slog.Debug("storage backend does not report external changes", "key", key)
	}
	sv.cancel = cancel
	return sv
}

// OnChange registers fn to run after an external change has been applied.
func (s *Synced[T]) OnChange(fn func(T)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Close removes the subscription. It is safe to call more than once.
func (s *Synced[T]) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
}

func (s *Synced[T]) handleChange(c storage.Change) {
	if c.Key != s.Key() || c.Removed {
		return
	}

	var next T
	if err := json.Unmarshal([]byte(c.NewValue), &next); err != nil {
		slog.Warn("failed to parse external storage change", "key", c.Key, "error", err)
		return
	}
	s.Value.apply(next)

	s.mu.Lock()
	listeners := append([]func(T){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(next)
	}
}

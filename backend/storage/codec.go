package storage

import (
	"encoding/json"
	"log/slog"
)

// GetJSON decodes the value stored under key. fallback is returned when the
// key is missing, empty, unreadable, or not valid JSON.
func GetJSON[T any](s *Safe, key string, fallback T) T {
	raw, ok := s.Get(key)
	if !ok || raw == "" {
		return fallback
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		slog.Warn("failed to parse stored JSON", "key", key, "error", err)
		return fallback
	}
	return v
}

// SetJSON encodes v and stores it under key.
func SetJSON[T any](s *Safe, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to encode JSON for storage", "key", key, "error", err)
		return &OpError{Op: "encode", Key: key, Err: err}
	}
	return s.Set(key, string(raw))
}

// Manager binds one key and its default.
type Manager[T any] struct {
	safe         *Safe
	key          string
	defaultValue T
}

// NewManager returns a Manager for key.
func NewManager[T any](s *Safe, key string, defaultValue T) *Manager[T] {
	return &Manager[T]{safe: s, key: key, defaultValue: defaultValue}
}

// Get returns the stored value or the default.
func (m *Manager[T]) Get() T {
	return GetJSON(m.safe, m.key, m.defaultValue)
}

// Set stores v.
func (m *Manager[T]) Set(v T) error {
	return SetJSON(m.safe, m.key, v)
}

// Remove deletes the key.
func (m *Manager[T]) Remove() error {
	return m.safe.Remove(m.key)
}

// Exists reports whether anything is stored under the key.
func (m *Manager[T]) Exists() bool {
	_, ok := m.safe.Get(m.key)
	return ok
}

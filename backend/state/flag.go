package state

import "github.com/AnTengye/contractdash/backend/storage"

// Flag is a persisted boolean.
type Flag struct {
	v *Value[bool]
}

// NewFlag binds key to a boolean defaulting to def.
func NewFlag(s *storage.Safe, key string, def bool) *Flag {
	return &Flag{v: New(s, key, def)}
}

// Value returns the cached boolean.
func (f *Flag) Value() bool { return f.v.Get() }

// Toggle flips the value.
func (f *Flag) Toggle() error {
	return f.v.Update(func(prev bool) bool { return !prev })
}

// SetTrue stores true.
func (f *Flag) SetTrue() error { return f.v.Set(true) }

// SetFalse stores false.
func (f *Flag) SetFalse() error { return f.v.Set(false) }

// Set stores b.
func (f *Flag) Set(b bool) error { return f.v.Set(b) }

// Reset restores the default and removes the key from storage.
func (f *Flag) Reset() error { return f.v.Reset() }

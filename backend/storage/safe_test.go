package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyBackend fails or panics on demand.
type faultyBackend struct {
	getErr    error
	setErr    error
	removeErr error
	panicMsg  string
	sets      []string
	removes   []string
}

func (f *faultyBackend) GetItem(key string) (string, bool, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return "", false, f.getErr
}

func (f *faultyBackend) SetItem(key, value string) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.sets = append(f.sets, key)
	return f.setErr
}

func (f *faultyBackend) RemoveItem(key string) error {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.removes = append(f.removes, key)
	return f.removeErr
}

func TestSafeRoundTrip(t *testing.T) {
	s := NewSafe(NewMemoryBackend())

	require.NoError(t, s.Set("k", "v"))
	got, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	require.NoError(t, s.Remove("k"))
	_, ok = s.Get("k")
	assert.False(t, ok)

	// removing twice is not an error
	assert.NoError(t, s.Remove("k"))
}

func TestSafeNilBackend(t *testing.T) {
	s := NewSafe(nil)

	_, ok := s.Get("k")
	assert.False(t, ok)
	assert.ErrorIs(t, s.Set("k", "v"), ErrUnavailable)
	assert.ErrorIs(t, s.Remove("k"), ErrUnavailable)
	assert.False(t, s.IsAvailable())

	cancel, supported := s.Subscribe(func(Change) {})
	assert.False(t, supported)
	cancel()
}

func TestSafeBackendErrors(t *testing.T) {
	boom := errors.New("disk full")
	s := NewSafe(&faultyBackend{getErr: boom, setErr: boom, removeErr: boom})

	_, ok := s.Get("k")
	assert.False(t, ok)

	err := s.Set("k", "v")
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "set", opErr.Op)
	assert.Equal(t, "k", opErr.Key)
	assert.ErrorIs(t, err, boom)

	err = s.Remove("k")
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "remove", opErr.Op)
}

func TestSafeRecoversBackendPanics(t *testing.T) {
	s := NewSafe(&faultyBackend{panicMsg: "security error"})

	assert.NotPanics(t, func() {
		_, ok := s.Get("k")
		assert.False(t, ok)
		assert.Error(t, s.Set("k", "v"))
		assert.Error(t, s.Remove("k"))
		assert.False(t, s.IsAvailable())
	})
}

func TestSafeIsAvailable(t *testing.T) {
	backend := &faultyBackend{}
	s := NewSafe(backend)

	assert.True(t, s.IsAvailable())
	assert.Equal(t, []string{probeKey}, backend.sets)
	assert.Equal(t, []string{probeKey}, backend.removes)

	backend.setErr = ErrQuotaExceeded
	assert.False(t, s.IsAvailable())

	backend.setErr = nil
	backend.removeErr = errors.New("locked")
	assert.False(t, s.IsAvailable())
}

func TestSafeIsAvailableLeavesNoKeys(t *testing.T) {
	mem := NewMemoryBackend()
	s := NewSafe(mem)

	require.True(t, s.IsAvailable())
	keys, err := Keys(mem)
	require.NoError(t, err)
	assert.Empty(t, keys)

	mem.SetDisabled(true)
	assert.False(t, s.IsAvailable())
}

func TestOpErrorMessage(t *testing.T) {
	err := &OpError{Op: "set", Key: "contract-data", Err: ErrQuotaExceeded}
	assert.Equal(t, `storage: set "contract-data": storage: quota exceeded`, err.Error())
}

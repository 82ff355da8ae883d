package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func TestJSONRoundTrip(t *testing.T) {
	s := NewSafe(NewMemoryBackend())

	t.Run("struct", func(t *testing.T) {
		want := sample{Name: "nda", Count: 3, Tags: []string{"a", "b"}}
		require.NoError(t, SetJSON(s, "struct", want))
		assert.Equal(t, want, GetJSON(s, "struct", sample{}))
	})

	t.Run("pointer", func(t *testing.T) {
		want := &sample{Name: "msa"}
		require.NoError(t, SetJSON(s, "ptr", want))
		assert.Equal(t, want, GetJSON[*sample](s, "ptr", nil))
	})

	t.Run("bool", func(t *testing.T) {
		require.NoError(t, SetJSON(s, "flag", true))
		assert.True(t, GetJSON(s, "flag", false))
	})

	t.Run("slice", func(t *testing.T) {
		want := []int{1, 2, 3}
		require.NoError(t, SetJSON(s, "list", want))
		assert.Equal(t, want, GetJSON[[]int](s, "list", nil))
	})

	t.Run("map", func(t *testing.T) {
		want := map[string]any{"a": "x", "b": float64(2)}
		require.NoError(t, SetJSON(s, "map", want))
		assert.Equal(t, want, GetJSON[map[string]any](s, "map", nil))
	})
}

func TestGetJSONFallback(t *testing.T) {
	fallback := sample{Name: "fallback"}

	t.Run("missing key", func(t *testing.T) {
		s := NewSafe(NewMemoryBackend())
		assert.Equal(t, fallback, GetJSON(s, "missing", fallback))
	})

	t.Run("empty value", func(t *testing.T) {
		s := NewSafe(NewMemoryBackend())
		require.NoError(t, s.Set("k", ""))
		assert.Equal(t, fallback, GetJSON(s, "k", fallback))
	})

	t.Run("malformed JSON", func(t *testing.T) {
		s := NewSafe(NewMemoryBackend())
		require.NoError(t, s.Set("k", "{not json"))
		assert.Equal(t, fallback, GetJSON(s, "k", fallback))
	})

	t.Run("storage unavailable", func(t *testing.T) {
		mem := NewMemoryBackend()
		s := NewSafe(mem)
		require.NoError(t, SetJSON(s, "k", sample{Name: "stored"}))
		mem.SetDisabled(true)
		assert.Equal(t, fallback, GetJSON(s, "k", fallback))
	})

	t.Run("no backend", func(t *testing.T) {
		assert.Equal(t, fallback, GetJSON(NewSafe(nil), "k", fallback))
	})
}

func TestSetJSONFailures(t *testing.T) {
	s := NewSafe(NewMemoryBackend())

	err := SetJSON(s, "k", make(chan int))
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "encode", opErr.Op)

	s = NewSafe(NewMemoryBackend(WithQuota(8)))
	assert.ErrorIs(t, SetJSON(s, "key", "a long value"), ErrQuotaExceeded)
}

func TestManager(t *testing.T) {
	s := NewSafe(NewMemoryBackend())
	m := NewManager(s, "recent", []string{})

	assert.False(t, m.Exists())
	assert.Equal(t, []string{}, m.Get())

	require.NoError(t, m.Set([]string{"a.pdf"}))
	assert.True(t, m.Exists())
	assert.Equal(t, []string{"a.pdf"}, m.Get())

	require.NoError(t, m.Remove())
	assert.False(t, m.Exists())
	assert.Equal(t, []string{}, m.Get())
}

func TestKeySets(t *testing.T) {
	assert.Equal(t, []string{
		"contract-data", "contract-active-tab", "api-config", "analysis-type", "custom-query",
	}, ContractKeys())

	for _, reserved := range ReservedKeys() {
		assert.NotContains(t, ContractKeys(), reserved)
	}
}

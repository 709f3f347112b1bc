package kvstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryGetPutRoundtrip(t *testing.T) {
	m := NewMemory()
	_, found, err := m.Get("k")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, m.Put("k", "v1"))
	v, found, err := m.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", v)
}

func TestMemorySelectTableIsolatesKeys(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Put("k", "default-value"))

	require.NoError(t, m.SelectTable("other"))
	_, found, err := m.Get("k")
	require.NoError(t, err)
	require.False(t, found, "a new table starts empty even if the key exists elsewhere")

	require.NoError(t, m.Put("k", "other-value"))
	require.NoError(t, m.SelectTable("default"))
	v, _, err := m.Get("k")
	require.NoError(t, err)
	require.Equal(t, "default-value", v)
}

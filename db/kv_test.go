// ABOUTME: Tests for the sqlite-backed key/value store
// ABOUTME: Verifies upsert, missing keys and removal
package db

import (
	"testing"

	"github.com/harperreed/leadsheet/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ store.KV = (*KVStore)(nil)

func TestKVStore(t *testing.T) {
	kv := NewKVStore(setupTestDB(t))

	_, ok, err := kv.Get("cache")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set("cache", "v1"))
	require.NoError(t, kv.Set("cache", "v2"))

	v, ok, err := kv.Get("cache")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	require.NoError(t, kv.Remove("cache"))
	require.NoError(t, kv.Remove("cache"))
	_, ok, err = kv.Get("cache")
	require.NoError(t, err)
	assert.False(t, ok)
}

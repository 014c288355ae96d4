package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	key := Key("tag", "path", "content")
	_, ok := Load(key)
	assert.False(t, ok)

	require.NoError(t, Store(key, []byte("payload")))
	got, ok := Load(key)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestKeyIsContentSensitive(t *testing.T) {
	assert.NotEqual(t, Key("tag", "a"), Key("tag", "b"))
	assert.Equal(t, Key("tag", "a"), Key("tag", "a"))
}

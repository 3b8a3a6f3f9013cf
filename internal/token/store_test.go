package token

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUpdateAndGet(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "nested", "session"))

	_, ok, err := store.Get("prod", "p11", "import")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Update("prod", "p11", "import", Pair{Access: "a1", Refresh: "r1"}))

	pair, ok, err := store.Get("prod", "p11", "import")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a1", pair.Access)
	assert.Equal(t, "r1", pair.Refresh)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestStoreReplacesPairInPlace(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "session"))

	require.NoError(t, store.Update("prod", "p11", "import", Pair{Access: "old"}))
	require.NoError(t, store.Update("prod", "p11", "import", Pair{Access: "new"}))

	pair, ok, err := store.Get("prod", "p11", "import")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", pair.Access)
}

func TestStoreClear(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "session"))

	require.NoError(t, store.Update("prod", "p11", "import", Pair{Access: "a1"}))
	require.NoError(t, store.Clear())

	_, ok, err := store.Get("prod", "p11", "import")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreIsolatesEnvironmentsAndTenants(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "session"))

	require.NoError(t, store.Update("prod", "p11", "import", Pair{Access: "prod-p11"}))
	require.NoError(t, store.Update("test", "p11", "import", Pair{Access: "test-p11"}))
	require.NoError(t, store.Update("prod", "p22", "import", Pair{Access: "prod-p22"}))

	pair, _, err := store.Get("prod", "p11", "import")
	require.NoError(t, err)
	assert.Equal(t, "prod-p11", pair.Access)

	pair, _, err = store.Get("test", "p11", "import")
	require.NoError(t, err)
	assert.Equal(t, "test-p11", pair.Access)

	pair, _, err = store.Get("prod", "p22", "import")
	require.NoError(t, err)
	assert.Equal(t, "prod-p22", pair.Access)
}

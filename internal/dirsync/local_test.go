package dirsync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEnumerateSkipsIgnoredSubtreeAndSuffix(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "config"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.tmp"), []byte("x"), 0o600))

	set, err := LocalEnumerate(root, []string{".git"}, []string{".tmp"}, false)
	require.NoError(t, err)

	_, hasKeep := set["keep.txt"]
	assert.True(t, hasKeep)
	assert.Len(t, set, 1)
	assert.Equal(t, "", set["keep.txt"])
}

func TestLocalEnumerateRecordsMtimeWhenRequested(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o600))

	set, err := LocalEnumerate(root, nil, nil, true)
	require.NoError(t, err)

	assert.NotEqual(t, "", set["a.txt"])
}

func TestLocalEnumerateUsesForwardSlashForNestedPaths(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "dir"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "dir", "b.txt"), []byte("x"), 0o600))

	set, err := LocalEnumerate(root, nil, nil, false)
	require.NoError(t, err)

	_, ok := set["sub/dir/b.txt"]
	assert.True(t, ok)
}

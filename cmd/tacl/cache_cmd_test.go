package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unioslo/tacl/internal/cache"
	"github.com/unioslo/tacl/internal/tacfg"
)

func newTestCLICmd(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()

	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cc := &CLIContext{Env: "dev", Logger: slog.Default()}

	cmd := &cobra.Command{}

	var out bytes.Buffer

	cmd.SetOut(&out)
	cmd.SetContext(context.WithValue(context.Background(), cliContextKey{}, cc))

	return cmd, &out
}

func TestRunCacheOverview_EmptyBundleReportsNothing(t *testing.T) {
	cmd, out := newTestCLICmd(t)

	require.NoError(t, runCacheOverview(cmd, nil))
	assert.Empty(t, out.String())
}

func TestRunCacheOverview_ListsTrackedDirectories(t *testing.T) {
	cmd, out := newTestCLICmd(t)

	bundle, err := cache.OpenBundle(context.Background(), tacfg.CacheDir(), slog.Default())
	require.NoError(t, err)
	require.NoError(t, bundle.Upload.Create(context.Background(), "/data/project-a"))
	require.NoError(t, bundle.Close())

	require.NoError(t, runCacheOverview(cmd, nil))
	assert.Contains(t, out.String(), "project-a")
}

func TestRunCacheClear_RemovesTrackedDirectories(t *testing.T) {
	cmd, out := newTestCLICmd(t)

	bundle, err := cache.OpenBundle(context.Background(), tacfg.CacheDir(), slog.Default())
	require.NoError(t, err)
	require.NoError(t, bundle.Download.Create(context.Background(), filepath.Join("data", "b")))
	require.NoError(t, bundle.Close())

	require.NoError(t, runCacheClear(cmd, nil))
	assert.Contains(t, out.String(), "cache cleared")

	var overviewOut bytes.Buffer

	cmd.SetOut(&overviewOut)
	require.NoError(t, runCacheOverview(cmd, nil))
	assert.Empty(t, overviewOut.String())
}

package dirsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unioslo/tacl/internal/cache"
)

// fakeTransporter records what Sync asks it to do and can be made to fail
// on a chosen resource, simulating an aborted run (testable property 7).
type fakeTransporter struct {
	transfers []cache.Row
	deletes   []string

	transferred []string
	deleted     []string

	failOnTransfer string
	failOnDelete   string
}

func (f *fakeTransporter) FindWork(_ context.Context) ([]cache.Row, []string, error) {
	return f.transfers, f.deletes, nil
}

func (f *fakeTransporter) Transfer(_ context.Context, item cache.Row) error {
	if item.ResourcePath == f.failOnTransfer {
		return assertErr
	}

	f.transferred = append(f.transferred, item.ResourcePath)

	return nil
}

func (f *fakeTransporter) Delete(_ context.Context, resource string) error {
	if resource == f.failOnDelete {
		return assertErr
	}

	f.deleted = append(f.deleted, resource)

	return nil
}

var assertErr = errTest("simulated transporter failure")

type errTest string

func (e errTest) Error() string { return string(e) }

func newTestContext(t *testing.T, dir string) *TransferContext {
	t.Helper()

	bundle, err := cache.OpenBundle(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = bundle.Close() })

	return &TransferContext{
		DirPath:       dir,
		CacheEnabled:  true,
		TransferCache: bundle.Upload,
		DeleteCache:   bundle.UploadDelete,
	}
}

func TestSyncCleansUpBothCachesOnSuccess(t *testing.T) {
	ctx := context.Background()
	tc := newTestContext(t, "/data/project")

	ft := &fakeTransporter{
		transfers: []cache.Row{{ResourcePath: "a.txt"}, {ResourcePath: "b.txt"}},
		deletes:   []string{"c.txt"},
	}

	require.NoError(t, Sync(ctx, ft, tc))

	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, ft.transferred)
	assert.Equal(t, []string{"c.txt"}, ft.deleted)

	key := cacheKey(tc)

	exists, err := tc.TransferCache.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = tc.DeleteCache.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSyncLeavesCachePendingOnAbort(t *testing.T) {
	ctx := context.Background()
	tc := newTestContext(t, "/data/project2")

	ft := &fakeTransporter{
		transfers:      []cache.Row{{ResourcePath: "a.txt"}, {ResourcePath: "b.txt"}},
		failOnTransfer: "b.txt",
	}

	err := Sync(ctx, ft, tc)
	require.Error(t, err)

	key := cacheKey(tc)

	rows, err := tc.TransferCache.Read(ctx, key)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b.txt", rows[0].ResourcePath)
}

// TestSyncRerunWithNoNewWorkTransfersNothing models testable property 8:
// once source and target agree (the condition a real Transporter's
// FindWork checks via the set algebra), a second sync() issues zero
// transfers and zero deletes.
func TestSyncRerunWithNoNewWorkTransfersNothing(t *testing.T) {
	ctx := context.Background()
	tc := newTestContext(t, "/data/project3")

	first := &fakeTransporter{transfers: []cache.Row{{ResourcePath: "a.txt"}}}
	require.NoError(t, Sync(ctx, first, tc))
	assert.Equal(t, []string{"a.txt"}, first.transferred)

	second := &fakeTransporter{}
	require.NoError(t, Sync(ctx, second, tc))

	assert.Empty(t, second.transferred)
	assert.Empty(t, second.deleted)
}

package dirsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/unioslo/tacl/internal/cache"
)

// DownloadSync makes the local directory match the remote export listing:
// source = remote files (authoritative), target = local files. Reuses
// DownloadOnly's Transfer and adds a local Delete for source-missing
// resources.
type DownloadSync struct {
	TC      *TransferContext
	Backend string

	download DownloadOnly
}

func NewDownloadSync(tc *TransferContext, backend string) *DownloadSync {
	return &DownloadSync{TC: tc, Backend: backend, download: DownloadOnly{TC: tc, Backend: backend}}
}

func (d *DownloadSync) FindWork(ctx context.Context) ([]cache.Row, []string, error) {
	source, err := RemoteEnumerate(ctx, d.TC, d.Backend)
	if err != nil {
		return nil, nil, err
	}

	target, err := LocalEnumerate(d.TC.TargetDir, d.TC.IgnorePrefixes, d.TC.IgnoreSuffixes, d.TC.SyncMtime)
	if err != nil {
		return nil, nil, err
	}

	transferNames := ComputeTransfers(source, target, d.TC.KeepUpdated)
	deletes := ComputeDeletes(source, target, d.TC.KeepMissing)

	rows := make([]cache.Row, 0, len(transferNames))
	for _, name := range transferNames {
		rows = append(rows, cache.Row{ResourcePath: name, IntegrityReference: source[name]})
	}

	return rows, deletes, nil
}

func (d *DownloadSync) Transfer(ctx context.Context, item cache.Row) error {
	return d.download.Transfer(ctx, item)
}

// Delete removes the local file (or directory, recursively) that no
// longer exists on the remote side.
func (d *DownloadSync) Delete(_ context.Context, resource string) error {
	localPath := filepath.Join(d.TC.TargetDir, filepath.FromSlash(resource))

	if err := os.RemoveAll(localPath); err != nil {
		return fmt.Errorf("dirsync: deleting %s: %w", localPath, err)
	}

	return nil
}

package dirsync

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/unioslo/tacl/internal/cache"
	"github.com/unioslo/tacl/internal/transfer"
)

// DownloadOnly downloads every remote file under RemotePath recursively;
// it never deletes anything locally.
type DownloadOnly struct {
	TC      *TransferContext
	Backend string
}

func (d *DownloadOnly) FindWork(ctx context.Context) ([]cache.Row, []string, error) {
	set, err := RemoteEnumerate(ctx, d.TC, d.Backend)
	if err != nil {
		return nil, nil, err
	}

	return rowsFromSet(set), nil, nil
}

func (d *DownloadOnly) Transfer(ctx context.Context, item cache.Row) error {
	envelope, err := d.TC.envelope()
	if err != nil {
		return err
	}

	localPath := filepath.Join(d.TC.TargetDir, filepath.FromSlash(item.ResourcePath))

	if err := os.MkdirAll(filepath.Dir(localPath), 0o700); err != nil {
		return fmt.Errorf("dirsync: creating %s: %w", filepath.Dir(localPath), err)
	}

	result, err := transfer.Download(ctx, transfer.DownloadParams{
		Env:        d.TC.Env,
		Pnum:       d.TC.Pnum,
		Backend:    d.Backend,
		Client:     d.TC.Client,
		Logger:     d.TC.Logger,
		Refresh:    d.TC.refresh(),
		RemotePath: path.Join(d.TC.RemotePath, item.ResourcePath),
		LocalPath:  localPath,
		SetMtime:   d.TC.SyncMtime,
		Envelope:   envelope,
	})
	if err != nil {
		return err
	}

	d.TC.Client = result.Client

	return nil
}

func (d *DownloadOnly) Delete(_ context.Context, _ string) error {
	return nil
}

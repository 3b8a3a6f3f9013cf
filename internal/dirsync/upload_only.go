package dirsync

import (
	"context"
	"path/filepath"

	"github.com/unioslo/tacl/internal/cache"
	"github.com/unioslo/tacl/internal/transfer"
)

// UploadOnly uploads every local file under DirPath; it never deletes
// anything remotely.
type UploadOnly struct {
	TC *TransferContext
}

func (u *UploadOnly) FindWork(_ context.Context) ([]cache.Row, []string, error) {
	set, err := LocalEnumerate(u.TC.DirPath, u.TC.IgnorePrefixes, u.TC.IgnoreSuffixes, u.TC.SyncMtime)
	if err != nil {
		return nil, nil, err
	}

	return rowsFromSet(set), nil, nil
}

func (u *UploadOnly) Transfer(ctx context.Context, item cache.Row) error {
	result, err := transfer.Upload(ctx, transfer.UploadParams{
		Env:                u.TC.Env,
		Pnum:               u.TC.Pnum,
		Client:             u.TC.Client,
		Logger:             u.TC.Logger,
		Refresh:            u.TC.refresh(),
		LocalPath:          filepath.Join(u.TC.DirPath, filepath.FromSlash(item.ResourcePath)),
		IsDir:              true,
		Group:              u.TC.Group,
		RemotePath:         u.TC.RemotePath,
		ChunkSize:          u.TC.ChunkSize,
		ResumableThreshold: u.TC.ResumableThreshold,
		PublicKey:          u.TC.PublicKey,
	})
	if err != nil {
		return err
	}

	u.TC.Client = result.Client

	return nil
}

func (u *UploadOnly) Delete(_ context.Context, _ string) error {
	return nil
}

func rowsFromSet(set ResourceSet) []cache.Row {
	rows := make([]cache.Row, 0, len(set))

	for name, ref := range set {
		rows = append(rows, cache.Row{ResourcePath: name, IntegrityReference: ref})
	}

	return rows
}

package dirsync

import (
	"context"
	"net/http"
	"net/url"

	"github.com/unioslo/tacl/internal/cache"
	"github.com/unioslo/tacl/internal/retry"
	"github.com/unioslo/tacl/internal/tacapi"
)

// UploadSync makes the remote import listing match the local directory:
// source = local files (authoritative), target = remote files. Reuses
// UploadOnly's Transfer (same PUT/PATCH protocol) and adds a Delete for
// remote-only resources.
type UploadSync struct {
	TC      *TransferContext
	Backend string

	upload UploadOnly
}

func NewUploadSync(tc *TransferContext, backend string) *UploadSync {
	return &UploadSync{TC: tc, Backend: backend, upload: UploadOnly{TC: tc}}
}

func (u *UploadSync) FindWork(ctx context.Context) ([]cache.Row, []string, error) {
	source, err := LocalEnumerate(u.TC.DirPath, u.TC.IgnorePrefixes, u.TC.IgnoreSuffixes, u.TC.SyncMtime)
	if err != nil {
		return nil, nil, err
	}

	target, err := RemoteEnumerate(ctx, u.TC, u.Backend)
	if err != nil {
		return nil, nil, err
	}

	transferNames := ComputeTransfers(source, target, u.TC.KeepUpdated)
	deletes := ComputeDeletes(source, target, u.TC.KeepMissing)

	rows := make([]cache.Row, 0, len(transferNames))
	for _, name := range transferNames {
		rows = append(rows, cache.Row{ResourcePath: name, IntegrityReference: source[name]})
	}

	return rows, deletes, nil
}

func (u *UploadSync) Transfer(ctx context.Context, item cache.Row) error {
	return u.upload.Transfer(ctx, item)
}

// Delete issues `DELETE /{service}/stream/{group}/{filename}` to remove
// a resource the source no longer has.
func (u *UploadSync) Delete(ctx context.Context, resource string) error {
	group := u.TC.Group
	if group == "" {
		group = u.TC.Pnum + "-member-group"
	}

	reqURL := tacapi.FileAPIURL(u.TC.Env, u.TC.Pnum, u.Backend, "stream/"+group+"/"+url.PathEscape(resource))

	access, err := u.TC.refresh()(ctx)
	if err != nil {
		return err
	}

	result, err := retry.Do(ctx, u.TC.Client, u.TC.Logger, func(ctx context.Context, c *http.Client) (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
		if reqErr != nil {
			return nil, reqErr
		}

		req.Header.Set("Authorization", "Bearer "+access)

		return c.Do(req)
	})
	if err != nil {
		return err
	}

	result.Response.Body.Close()
	u.TC.Client = result.Client

	return nil
}

// Package dirsync implements the directory transporter: four capability
// variants (upload-only, download-only, upload-sync, download-sync)
// sharing one driver (sync.go) and one mutable context.
package dirsync

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/unioslo/tacl/internal/cache"
	"github.com/unioslo/tacl/internal/crypto"
	"github.com/unioslo/tacl/internal/tacenv"
	"github.com/unioslo/tacl/internal/transfer"
)

// Transporter is the small common interface every capability variant
// implements, rather than a deep hierarchy per variant.
type Transporter interface {
	// FindWork computes the transfer list and delete list for one run.
	FindWork(ctx context.Context) (transfers []cache.Row, deletes []string, err error)

	// Transfer moves one resource (upload or download, depending on
	// variant).
	Transfer(ctx context.Context, item cache.Row) error

	// Delete removes one resource that exists at the target but not the
	// source (a no-op variant returns nil without ever being called,
	// since FindWork for non-sync variants always yields an empty
	// delete list).
	Delete(ctx context.Context, resource string) error
}

// TransferContext is the mutable state shared by every Transporter method
// for one directory operation: passed by pointer, its Access/Refresh/
// RefreshTarget/Client fields are updated in place as calls renew tokens
// or rebuild the connection pool, so later files in the same run benefit.
type TransferContext struct {
	Env  tacenv.Environment
	Pnum string

	DirPath string

	Access        string
	Refresh       string
	RefreshTarget string

	Group      string
	PublicKey  *[32]byte
	RemotePath string
	TargetDir  string

	CacheEnabled bool

	IgnorePrefixes []string
	IgnoreSuffixes []string

	SyncMtime   bool
	KeepMissing bool
	KeepUpdated bool

	ChunkSize          int
	ResumableThreshold int64

	TransferCache *cache.Cache
	DeleteCache   *cache.Cache

	Logger *slog.Logger
	Client *http.Client

	// RefreshFn is called by transfer.RefreshFunc-shaped callers before
	// each network attempt; it should read/refresh Access in place and
	// return the current value.
	RefreshFn func(ctx context.Context) (string, error)
}

// refresh adapts TransferContext into a transfer.RefreshFunc.
func (tc *TransferContext) refresh() transfer.RefreshFunc {
	return func(ctx context.Context) (string, error) {
		if tc.RefreshFn == nil {
			return tc.Access, nil
		}

		access, err := tc.RefreshFn(ctx)
		if err != nil {
			return "", err
		}

		tc.Access = access

		return access, nil
	}
}

// envelope builds a per-file encryption envelope when the context carries
// a server public key, or nil when the transfer is unencrypted.
func (tc *TransferContext) envelope() (*crypto.Envelope, error) {
	if tc.PublicKey == nil {
		return nil, nil
	}

	return crypto.NewEnvelope(tc.PublicKey)
}

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Bundle owns the four logical caches a tenant operation may touch (upload,
// download, upload-delete, download-delete) and runs whole-tenant
// operations (overview, destroy-all) across all four concurrently.
type Bundle struct {
	Upload         *Cache
	Download       *Cache
	UploadDelete   *Cache
	DownloadDelete *Cache
}

// OpenBundle opens all four caches under dir.
func OpenBundle(ctx context.Context, dir string, logger *slog.Logger) (*Bundle, error) {
	b := &Bundle{}

	kinds := []struct {
		kind Kind
		dst  **Cache
	}{
		{UploadQueue, &b.Upload},
		{DownloadQueue, &b.Download},
		{UploadDeleteQueue, &b.UploadDelete},
		{DownloadDeleteQueue, &b.DownloadDelete},
	}

	for _, k := range kinds {
		c, err := Open(ctx, dir, k.kind, logger)
		if err != nil {
			b.Close()
			return nil, err
		}

		*k.dst = c
	}

	return b, nil
}

// Close closes every opened cache, collecting all errors via multierr
// rather than stopping at the first.
func (b *Bundle) Close() error {
	var err error

	for _, c := range b.all() {
		if c == nil {
			continue
		}

		err = multierr.Append(err, c.Close())
	}

	return err
}

func (b *Bundle) all() []*Cache {
	return []*Cache{b.Upload, b.Download, b.UploadDelete, b.DownloadDelete}
}

// TenantOverview aggregates OverviewAll results across all four caches,
// keyed by cache kind, by fanning out with errgroup and aggregating
// per-database failures with multierr so one locked database does not
// hide results from the other three.
func (b *Bundle) TenantOverview(ctx context.Context) (map[Kind][]Overview, error) {
	results := make(map[Kind][]Overview, 4)

	var (
		mu   sync.Mutex
		errs error
	)

	group, gctx := errgroup.WithContext(ctx)

	for kind, c := range map[Kind]*Cache{
		UploadQueue:         b.Upload,
		DownloadQueue:       b.Download,
		UploadDeleteQueue:   b.UploadDelete,
		DownloadDeleteQueue: b.DownloadDelete,
	} {
		kind, c := kind, c

		group.Go(func() error {
			ov, err := c.OverviewAll(gctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("cache: overview %s: %w", kind, err))
				return nil
			}

			results[kind] = ov

			return nil
		})
	}

	_ = group.Wait()

	return results, errs
}

// DestroyAllTenant drops every tracked directory's work table across all
// four caches, continuing through the remaining caches even if one fails
// and returning every failure encountered.
func (b *Bundle) DestroyAllTenant(ctx context.Context) error {
	var errs error

	for _, c := range b.all() {
		if err := c.DestroyAll(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

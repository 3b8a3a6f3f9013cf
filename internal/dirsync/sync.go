package dirsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/unioslo/tacl/internal/cache"
)

// cacheKey identifies this directory's rows across both caches; the cache
// package hashes it internally so two roots sharing a basename never
// collide.
func cacheKey(tc *TransferContext) string {
	return tc.DirPath
}

// Sync drives one directory synchronization run:
//
//  1. If caching enabled, read uncompleted items from both caches.
//  2. If neither cache had work (or caching disabled), compute fresh work
//     and, if caching enabled, bulk-insert it.
//  3. Transfer each item, removing its row on success.
//  4. Drop the transfer-cache table.
//  5. Delete each resource, removing its row on success.
//  6. Drop the delete-cache table.
func Sync(ctx context.Context, t Transporter, tc *TransferContext) error {
	key := cacheKey(tc)

	transfers, deletes, err := loadOrComputeWork(ctx, t, tc, key)
	if err != nil {
		return err
	}

	if err := runTransfers(ctx, t, tc, key, transfers); err != nil {
		return err
	}

	if tc.CacheEnabled {
		if err := tc.TransferCache.Destroy(ctx, key); err != nil {
			return err
		}
	}

	if err := runDeletes(ctx, t, tc, key, deletes); err != nil {
		return err
	}

	if tc.CacheEnabled {
		if err := tc.DeleteCache.Destroy(ctx, key); err != nil {
			return err
		}
	}

	return nil
}

func loadOrComputeWork(ctx context.Context, t Transporter, tc *TransferContext, key string) ([]cache.Row, []string, error) {
	if tc.CacheEnabled {
		transferExists, err := tc.TransferCache.Exists(ctx, key)
		if err != nil {
			return nil, nil, err
		}

		deleteExists, err := tc.DeleteCache.Exists(ctx, key)
		if err != nil {
			return nil, nil, err
		}

		if transferExists || deleteExists {
			transfers, err := readCachedOrEmpty(ctx, tc.TransferCache, key, transferExists)
			if err != nil {
				return nil, nil, err
			}

			deleteRows, err := readCachedOrEmpty(ctx, tc.DeleteCache, key, deleteExists)
			if err != nil {
				return nil, nil, err
			}

			deletes := make([]string, len(deleteRows))
			for i, row := range deleteRows {
				deletes[i] = row.ResourcePath
			}

			return transfers, deletes, nil
		}
	}

	transfers, deletes, err := t.FindWork(ctx)
	if err != nil {
		return nil, nil, err
	}

	if tc.CacheEnabled {
		if err := tc.TransferCache.Create(ctx, key); err != nil {
			return nil, nil, err
		}

		if len(transfers) > 0 {
			if err := tc.TransferCache.AddMany(ctx, key, transfers); err != nil {
				return nil, nil, err
			}
		}

		if err := tc.DeleteCache.Create(ctx, key); err != nil {
			return nil, nil, err
		}

		if len(deletes) > 0 {
			deleteRows := make([]cache.Row, len(deletes))
			for i, name := range deletes {
				deleteRows[i] = cache.Row{ResourcePath: name}
			}

			if err := tc.DeleteCache.AddMany(ctx, key, deleteRows); err != nil {
				return nil, nil, err
			}
		}
	}

	return transfers, deletes, nil
}

func readCachedOrEmpty(ctx context.Context, c *cache.Cache, key string, exists bool) ([]cache.Row, error) {
	if !exists {
		return nil, nil
	}

	return c.Read(ctx, key)
}

func runTransfers(ctx context.Context, t Transporter, tc *TransferContext, key string, items []cache.Row) error {
	for _, item := range items {
		if err := t.Transfer(ctx, item); err != nil {
			// A local file that vanished after the work list was built is
			// skipped; every other failure stops the run.
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("dirsync: transferring %s: %w", item.ResourcePath, err)
			}

			if tc.Logger != nil {
				tc.Logger.Warn("skipping missing local file", slog.String("resource", item.ResourcePath))
			}
		}

		if tc.CacheEnabled {
			if err := tc.TransferCache.Remove(ctx, key, item.ResourcePath); err != nil {
				return err
			}
		}
	}

	return nil
}

func runDeletes(ctx context.Context, t Transporter, tc *TransferContext, key string, resources []string) error {
	for _, resource := range resources {
		if err := t.Delete(ctx, resource); err != nil {
			return fmt.Errorf("dirsync: deleting %s: %w", resource, err)
		}

		if tc.CacheEnabled {
			if err := tc.DeleteCache.Remove(ctx, key, resource); err != nil {
				return err
			}
		}
	}

	return nil
}

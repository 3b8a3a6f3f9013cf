package dirsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"github.com/unioslo/tacl/internal/retry"
	"github.com/unioslo/tacl/internal/tacapi"
)

// exportEntry is one row of an export/import listing page.
type exportEntry struct {
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	ETag         string `json:"etag"`
	ModifiedTime string `json:"modified_time"`
}

type exportListResponse struct {
	Files []exportEntry `json:"files"`
	Page  string        `json:"page"`
}

// RemoteEnumerate performs a paginated breadth-first walk over the
// remote directory tree rooted at tc.RemotePath. The reference recorded
// for each file is its mtime when tc.SyncMtime is set, else its etag.
func RemoteEnumerate(ctx context.Context, tc *TransferContext, backend string) (ResourceSet, error) {
	result := ResourceSet{}
	queue := []string{tc.RemotePath}

	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, subdirs, err := listDirectory(ctx, tc, backend, dir)
		if err != nil {
			return nil, err
		}

		for _, sub := range subdirs {
			rel := sub
			if dir != "" {
				rel = path.Join(dir, sub)
			}

			if hasAnyPrefix(relativeTo(tc.RemotePath, rel), tc.IgnorePrefixes) {
				continue
			}

			queue = append(queue, rel)
		}

		for name, ref := range entries {
			full := name
			if dir != "" {
				full = path.Join(dir, name)
			}

			if hasAnySuffix(name, tc.IgnoreSuffixes) {
				continue
			}

			result[NormalizeName(relativeTo(tc.RemotePath, full))] = ref
		}
	}

	return result, nil
}

// relativeTo strips root (and its trailing slash) from full, the way
// local enumeration reports paths relative to the sync root.
func relativeTo(root, full string) string {
	if root == "" {
		return full
	}

	rel := path.Clean(full)
	prefix := path.Clean(root) + "/"

	if len(rel) > len(prefix) && rel[:len(prefix)] == prefix {
		return rel[len(prefix):]
	}

	return rel
}

// listDirectory fetches every page of one directory's export listing,
// returning its file entries (name -> integrity reference) and immediate
// subdirectory names for the BFS queue.
func listDirectory(ctx context.Context, tc *TransferContext, backend, dir string) (ResourceSet, []string, error) {
	files := ResourceSet{}

	var subdirs []string

	page := ""

	for {
		resp, err := fetchExportPage(ctx, tc, backend, dir, page)
		if err != nil {
			return nil, nil, err
		}

		for _, entry := range resp.Files {
			if entry.IsDirectory {
				subdirs = append(subdirs, entry.Name)
				continue
			}

			ref := entry.ETag
			if tc.SyncMtime {
				ref = entry.ModifiedTime
			}

			files[entry.Name] = ref
		}

		if resp.Page == "" {
			break
		}

		page = resp.Page
	}

	return files, subdirs, nil
}

func fetchExportPage(ctx context.Context, tc *TransferContext, backend, dir, page string) (exportListResponse, error) {
	reqURL := tacapi.ExportListURL(tc.Env, tc.Pnum, backend, dir, page, 0)

	access, err := tc.refresh()(ctx)
	if err != nil {
		return exportListResponse{}, fmt.Errorf("dirsync: refreshing token: %w", err)
	}

	result, err := retry.Do(ctx, tc.Client, tc.Logger, func(ctx context.Context, c *http.Client) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+access)

		return c.Do(req)
	})
	if err != nil {
		return exportListResponse{}, err
	}

	defer result.Response.Body.Close()

	tc.Client = result.Client

	var data exportListResponse
	if decErr := json.NewDecoder(result.Response.Body).Decode(&data); decErr != nil {
		return exportListResponse{}, fmt.Errorf("dirsync: decoding export listing: %w", decErr)
	}

	return data, nil
}

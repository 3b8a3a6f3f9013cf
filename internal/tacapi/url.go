// Package tacapi builds the request URLs used throughout the file and
// auth APIs, parameterized by environment, tenant, and backend.
package tacapi

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/unioslo/tacl/internal/tacenv"
)

// DefaultBackend is the service name used for ordinary file transfers.
const DefaultBackend = "files"

// FileAPIURL builds `<base>/{pnum}/{backend}/{endpoint}`, trimming any
// leading slash off endpoint so callers can pass either form.
func FileAPIURL(env tacenv.Environment, pnum, backend, endpoint string) string {
	if backend == "" {
		backend = DefaultBackend
	}

	return fmt.Sprintf("%s/%s/%s/%s", env.BaseURL(), pnum, backend, strings.TrimPrefix(endpoint, "/"))
}

// AuthAPIURL builds `<base>/{pnum}/auth/{endpoint}`.
func AuthAPIURL(env tacenv.Environment, pnum, endpoint string) string {
	return fmt.Sprintf("%s/%s/auth/%s", env.BaseURL(), pnum, strings.TrimPrefix(endpoint, "/"))
}

// ExportListURL builds the paginated export-listing URL for a given
// (optional) remote sub-path, with optional page token and per_page size.
func ExportListURL(env tacenv.Environment, pnum, backend, path, page string, perPage int) string {
	endpoint := "export"
	if path != "" {
		endpoint = fmt.Sprintf("export/%s", strings.TrimPrefix(path, "/"))
	}

	u := FileAPIURL(env, pnum, backend, endpoint)

	q := url.Values{}
	if page != "" {
		q.Set("page", page)
	}

	if perPage > 0 {
		q.Set("per_page", fmt.Sprintf("%d", perPage))
	}

	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}

	return u
}

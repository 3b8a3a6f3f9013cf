package transfer

import (
	"net/url"
	"path"
	"strings"
)

// resourceName builds the path segment the file API uses to identify an
// upload: file mode uses the basename, directory mode uses localPath as
// given with any leading "/" removed (it is not made relative to the sync
// root); an optional remote-path prefix and group prefix are prepended in
// that order.
func resourceName(localPath string, isDir bool, group, remotePath string) string {
	var resource string

	if !isDir {
		resource = url.PathEscape(path.Base(localPath))
	} else {
		resource = strings.TrimPrefix(localPath, "/")
	}

	if remotePath != "" {
		resource = path.Join(url.PathEscape(remotePath), resource)
	}

	if group != "" {
		resource = path.Join(group, resource)
	}

	return resource
}

// defaultGroup derives "<tenant>-member-group" when the caller supplies
// no explicit group.
func defaultGroup(pnum string) string {
	return pnum + "-member-group"
}

// DefaultGroup exports defaultGroup for callers outside this package
// (internal/orchestrator resolves a group before the core ever sees a
// transfer) that need the same tie-break rule.
func DefaultGroup(pnum string) string {
	return defaultGroup(pnum)
}

// resumableKey identifies the per-directory resumable-discovery key for
// directory-mode uploads: the local path with its basename stripped,
// leading slash removed (mirrors original_source's _resumable_key).
func resumableKey(isDir bool, localPath string) string {
	if !isDir {
		return ""
	}

	dir := path.Dir(localPath)
	return strings.TrimPrefix(dir, "/")
}

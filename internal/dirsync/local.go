package dirsync

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
)

// LocalEnumerate walks root and returns every file's path relative to root
// (forward-slash separated, matching the remote naming convention), paired
// with its integrity reference.
//
// A directory is skipped entirely (subtree excluded) when its
// root-relative name starts with any ignorePrefix. A file is skipped when
// its name ends with any ignoreSuffix. integrity_reference is the file's
// mtime (float seconds, as a string) when syncMtime is set, else "".
func LocalEnumerate(root string, ignorePrefixes, ignoreSuffixes []string, syncMtime bool) (ResourceSet, error) {
	result := ResourceSet{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}

		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if hasAnyPrefix(rel, ignorePrefixes) {
				return filepath.SkipDir
			}

			return nil
		}

		if hasAnySuffix(d.Name(), ignoreSuffixes) {
			return nil
		}

		ref := ""

		if syncMtime {
			info, infoErr := d.Info()
			if infoErr != nil {
				return infoErr
			}

			ref = strconv.FormatFloat(float64(info.ModTime().UnixNano())/1e9, 'f', -1, 64)
		}

		result[NormalizeName(rel)] = ref

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dirsync: walking %s: %w", root, err)
	}

	return result, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}

	return false
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}

	return false
}

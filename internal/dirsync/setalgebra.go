package dirsync

import (
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// ResourceSet maps a resource name to its integrity reference ("" means
// no reference is tracked, which is the case whenever sync-by-mtime is
// off).
type ResourceSet map[string]string

// NormalizeName NFC-normalizes a resource name before it is used as a
// ResourceSet key, so a local filesystem and the remote API that represent
// the same Unicode path under different normalization forms compare equal
// instead of producing a spurious add+delete pair.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// ComputeDeletes returns everything the target has that the source no
// longer has, unless keepMissing suppresses deletion entirely. The
// result is sorted for deterministic iteration.
func ComputeDeletes(source, target ResourceSet, keepMissing bool) []string {
	if keepMissing {
		return nil
	}

	var deletes []string

	for name := range target {
		if _, ok := source[name]; !ok {
			deletes = append(deletes, name)
		}
	}

	sort.Strings(deletes)

	return deletes
}

// ComputeTransfers decides which source names need transferring.
//
// keepUpdated=false: pair-difference over (name, reference) — a name
// transfers if the target lacks it, or holds it under a different
// reference.
//
// keepUpdated=true: a name transfers if the target lacks it, or (when both
// references parse as numbers, e.g. mtimes) the source's reference is
// strictly greater; names whose references don't both parse as numbers
// are skipped under this mode.
func ComputeTransfers(source, target ResourceSet, keepUpdated bool) []string {
	var transfers []string

	for name, sourceRef := range source {
		targetRef, present := target[name]

		switch {
		case !present:
			transfers = append(transfers, name)
		case !keepUpdated:
			if sourceRef != targetRef {
				transfers = append(transfers, name)
			}
		default:
			sourceNum, sourceOK := strconv.ParseFloat(sourceRef, 64)
			targetNum, targetOK := strconv.ParseFloat(targetRef, 64)

			if sourceOK && targetOK && sourceNum > targetNum {
				transfers = append(transfers, name)
			}
		}
	}

	sort.Strings(transfers)

	return transfers
}

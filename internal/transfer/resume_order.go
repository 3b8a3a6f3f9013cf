package transfer

import "sort"

// ResumeCandidate is one entry in a listing of resumable uploads under a
// shared key. When several resumables exist for the same directory key,
// the one with the most committed bytes wins; ties break on ID so the
// choice is deterministic.
type ResumeCandidate struct {
	ID         string
	NextOffset int64
}

// SortResumeCandidates orders candidates by NextOffset descending, then by
// ID ascending, so the winner ends up at candidates[0]. Sorts the input
// slice in place and returns it; BestResumeCandidate picks the winner.
func SortResumeCandidates(candidates []ResumeCandidate) []ResumeCandidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].NextOffset != candidates[j].NextOffset {
			return candidates[i].NextOffset > candidates[j].NextOffset
		}

		return candidates[i].ID < candidates[j].ID
	})

	return candidates
}

// BestResumeCandidate returns the winning candidate, or the zero value and
// false when the list is empty.
func BestResumeCandidate(candidates []ResumeCandidate) (ResumeCandidate, bool) {
	if len(candidates) == 0 {
		return ResumeCandidate{}, false
	}

	sorted := SortResumeCandidates(candidates)

	return sorted[0], true
}

package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortResumeCandidatesOrdersByOffsetDescending(t *testing.T) {
	candidates := []ResumeCandidate{
		{ID: "a", NextOffset: 100},
		{ID: "b", NextOffset: 300},
		{ID: "c", NextOffset: 200},
	}

	sorted := SortResumeCandidates(candidates)

	assert.Equal(t, []ResumeCandidate{
		{ID: "b", NextOffset: 300},
		{ID: "c", NextOffset: 200},
		{ID: "a", NextOffset: 100},
	}, sorted)
}

func TestSortResumeCandidatesBreaksTiesByIDAscending(t *testing.T) {
	candidates := []ResumeCandidate{
		{ID: "zeta", NextOffset: 500},
		{ID: "alpha", NextOffset: 500},
		{ID: "mu", NextOffset: 500},
	}

	sorted := SortResumeCandidates(candidates)

	assert.Equal(t, []string{"alpha", "mu", "zeta"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
}

func TestBestResumeCandidateEmpty(t *testing.T) {
	_, ok := BestResumeCandidate(nil)
	assert.False(t, ok)
}

func TestBestResumeCandidatePicksHighestOffset(t *testing.T) {
	best, ok := BestResumeCandidate([]ResumeCandidate{
		{ID: "a", NextOffset: 10},
		{ID: "b", NextOffset: 90},
	})

	assert.True(t, ok)
	assert.Equal(t, "b", best.ID)
}

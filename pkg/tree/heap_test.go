package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectVictimPicksLowestConfidence(t *testing.T) {
	candidates := []eligibleElm{
		{idx: 0, confidence: 70, seq: 0},
		{idx: 1, confidence: 20, seq: 1},
		{idx: 2, confidence: 45, seq: 2},
	}

	idx, ok := selectVictim(candidates)
	require := assert.New(t)
	require.True(ok)
	require.Equal(1, idx)
}

func TestSelectVictimBreaksTiesByCreationOrder(t *testing.T) {
	candidates := []eligibleElm{
		{idx: 5, confidence: 30, seq: 9},
		{idx: 6, confidence: 30, seq: 2},
	}

	idx, ok := selectVictim(candidates)
	assert.True(t, ok)
	assert.Equal(t, 6, idx, "lower creation-sequence wins a confidence tie")
}

func TestSelectVictimEmptyCandidates(t *testing.T) {
	_, ok := selectVictim(nil)
	assert.False(t, ok)
}

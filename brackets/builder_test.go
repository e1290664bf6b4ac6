package brackets

import (
	"testing"

	"github.com/Dorofeev-A/movienight/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(ids ...int64) []models.Candidate {
	list := make([]models.Candidate, 0, len(ids))
	for _, id := range ids {
		list = append(list, models.Candidate{ID: id, Title: "movie"})
	}
	return list
}

func TestMergeCandidates(t *testing.T) {
	owner := candidates(1, 2, 3)
	guest := candidates(3, 4, 2)

	merged := MergeCandidates(10, owner, 20, guest)

	require.Len(t, merged, 4)
	// Порядок первого появления: сначала список владельца.
	assert.Equal(t, int64(1), merged[0].ID)
	assert.Equal(t, int64(2), merged[1].ID)
	assert.Equal(t, int64(3), merged[2].ID)
	assert.Equal(t, int64(4), merged[3].ID)

	assert.Equal(t, []int{10}, merged[0].AddedBy)
	assert.Equal(t, []int{10, 20}, merged[1].AddedBy)
	assert.Equal(t, []int{10, 20}, merged[2].AddedBy)
	assert.Equal(t, []int{20}, merged[3].AddedBy)

	assert.True(t, merged[2].FromBothLists())
	assert.False(t, merged[3].FromBothLists())
}

func TestMergeCandidatesIgnoresDuplicateContributor(t *testing.T) {
	owner := candidates(1, 1, 1)
	merged := MergeCandidates(10, owner, 20, nil)

	require.Len(t, merged, 1)
	assert.Equal(t, []int{10}, merged[0].AddedBy)
}

func TestBuildBracketPadsSmallPool(t *testing.T) {
	bracket, err := BuildBracket(candidates(1), 42)
	require.NoError(t, err)

	// Один кандидат добивается из резервного пула до MinViablePool.
	assert.Len(t, bracket.Pool, MinViablePool)
	assert.Equal(t, 2, bracket.TotalRounds)
	assert.Len(t, bracket.Matches, 2)

	found := false
	for _, c := range bracket.Pool {
		if c.ID == 1 {
			found = true
		}
	}
	assert.True(t, found, "user candidate must stay in the padded pool")
}

func TestBuildBracketTruncatesToPowerOfTwo(t *testing.T) {
	ids := make([]int64, 11)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	bracket, err := BuildBracket(candidates(ids...), 42)
	require.NoError(t, err)

	assert.Len(t, bracket.Pool, 8)
	assert.Equal(t, 3, bracket.TotalRounds)
	assert.Len(t, bracket.Matches, 4)

	// Усечение отбрасывает хвост объединённого порядка.
	for _, c := range bracket.Pool {
		assert.LessOrEqual(t, c.ID, int64(8))
	}
}

func TestBuildBracketCapsPoolSize(t *testing.T) {
	ids := make([]int64, 70)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	bracket, err := BuildBracket(candidates(ids...), 7)
	require.NoError(t, err)

	assert.Len(t, bracket.Pool, MaxPoolSize)
	assert.Equal(t, 5, bracket.TotalRounds)
}

func TestBuildBracketDeterministicForSeed(t *testing.T) {
	pool := candidates(1, 2, 3, 4, 5, 6, 7, 8)

	first, err := BuildBracket(pool, 1337)
	require.NoError(t, err)
	second, err := BuildBracket(pool, 1337)
	require.NoError(t, err)

	assert.Equal(t, first.Pool, second.Pool)
	assert.Equal(t, first.Matches, second.Matches)

	other, err := BuildBracket(pool, 7331)
	require.NoError(t, err)
	assert.NotEqual(t, first.Pool, other.Pool, "different seeds should shuffle differently")
}

func TestBuildBracketMatchLayout(t *testing.T) {
	bracket, err := BuildBracket(candidates(1, 2, 3, 4), 5)
	require.NoError(t, err)

	require.Len(t, bracket.Matches, 2)
	assert.Equal(t, "R1M1", bracket.Matches[0].UID)
	assert.Equal(t, "R1M2", bracket.Matches[1].UID)
	assert.Equal(t, 1, bracket.Matches[0].Round)
	assert.Equal(t, 1, bracket.Matches[0].Slot)
	assert.Equal(t, 2, bracket.Matches[1].Slot)

	// Каждый кандидат пула попадает ровно в один матч.
	seen := map[int64]int{}
	for _, m := range bracket.Matches {
		seen[m.A.ID]++
		seen[m.B.ID]++
	}
	for _, c := range bracket.Pool {
		assert.Equal(t, 1, seen[c.ID])
	}
}

func TestBuildBracketDoesNotMutateInput(t *testing.T) {
	pool := candidates(1, 2, 3, 4)
	original := append([]models.Candidate(nil), pool...)

	_, err := BuildBracket(pool, 99)
	require.NoError(t, err)
	assert.Equal(t, original, pool)
}

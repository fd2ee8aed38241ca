package brackets

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idOf(t *testing.T, n *Node) int {
	t.Helper()
	require.NotNil(t, n)
	require.NotNil(t, n.ParticipantID)
	return *n.ParticipantID
}

func TestBuild_PowerOfTwo(t *testing.T) {
	for k := 1; k <= 6; k++ {
		n := 1 << k
		ids := make([]int, n)
		for i := range ids {
			ids[i] = i + 1
		}

		root := Build(ids)
		assert.Equal(t, n, LeafCount(root), "leaf count for n=%d", n)
		assert.Equal(t, k, Depth(root), "depth for n=%d", n)
		assert.Equal(t, ids, Participants(root))
	}
}

func TestBuild_FourParticipants(t *testing.T) {
	root := Build([]int{5, 9, 2, 7})

	require.NotNil(t, root.Left)
	require.NotNil(t, root.Right)
	assert.Nil(t, root.ParticipantID)
	assert.Nil(t, root.Left.ParticipantID)
	assert.Nil(t, root.Right.ParticipantID)

	assert.Equal(t, 5, idOf(t, root.Left.Left))
	assert.Equal(t, 9, idOf(t, root.Left.Right))
	assert.Equal(t, 2, idOf(t, root.Right.Left))
	assert.Equal(t, 7, idOf(t, root.Right.Right))
}

func TestBuild_OddCountLeansRight(t *testing.T) {
	root := Build([]int{1, 2, 3})

	assert.Equal(t, 1, idOf(t, root.Left))
	require.NotNil(t, root.Right)
	assert.Equal(t, 2, idOf(t, root.Right.Left))
	assert.Equal(t, 3, idOf(t, root.Right.Right))
}

func TestBuild_EdgeCases(t *testing.T) {
	assert.Nil(t, Build(nil))

	single := Build([]int{42})
	assert.Equal(t, 42, idOf(t, single))
	assert.Equal(t, 0, Depth(single))
	_, ok := FindOpponent(single, 42)
	assert.False(t, ok)
}

func TestRecordOutcome(t *testing.T) {
	root := Build([]int{5, 9, 2, 7})

	require.True(t, RecordOutcome(root, 5, 9, 5))
	assert.Equal(t, 5, idOf(t, root.Left))
	assert.Nil(t, root.ParticipantID)

	assert.False(t, RecordOutcome(root, 5, 9, 5), "second call must not promote again")
	assert.False(t, RecordOutcome(root, 9, 5, 9))
	assert.Equal(t, 5, idOf(t, root.Left))
}

func TestRecordOutcome_Rejects(t *testing.T) {
	root := Build([]int{5, 9, 2, 7})

	assert.False(t, RecordOutcome(root, 5, 2, 5), "players from different halves have not met yet")
	assert.False(t, RecordOutcome(root, 5, 9, 2), "winner outside the pair")
	assert.False(t, RecordOutcome(root, 5, 5, 5))
	assert.False(t, RecordOutcome(nil, 1, 2, 1))

	require.True(t, RecordOutcome(root, 5, 9, 5))
	assert.False(t, RecordOutcome(root, 5, 2, 5), "right half still undecided")

	require.True(t, RecordOutcome(root, 7, 2, 7))
	require.True(t, RecordOutcome(root, 5, 7, 7))
	assert.Equal(t, 7, idOf(t, root))
	assert.False(t, RecordOutcome(root, 5, 7, 5))
}

func TestRecordOutcome_DoesNotTouchOtherSubtrees(t *testing.T) {
	root := Build([]int{1, 2, 3, 4, 5, 6, 7, 8})
	require.True(t, RecordOutcome(root, 1, 2, 1))
	before := Clone(root)

	assert.False(t, RecordOutcome(root, 1, 3, 1))
	assert.Equal(t, before, root)
}

func TestFindOpponent(t *testing.T) {
	root := Build([]int{5, 9, 2, 7})

	opp, ok := FindOpponent(root, 9)
	require.True(t, ok)
	assert.Equal(t, 5, opp)

	opp, ok = FindOpponent(root, 2)
	require.True(t, ok)
	assert.Equal(t, 7, opp)

	_, ok = FindOpponent(root, 100)
	assert.False(t, ok)

	require.True(t, RecordOutcome(root, 5, 9, 5))
	_, ok = FindOpponent(root, 5)
	assert.False(t, ok, "right half is still unresolved")
	_, ok = FindOpponent(root, 9)
	assert.False(t, ok, "eliminated players have no opponent")

	require.True(t, RecordOutcome(root, 2, 7, 7))
	opp, ok = FindOpponent(root, 5)
	require.True(t, ok)
	assert.Equal(t, 7, opp)

	require.True(t, RecordOutcome(root, 5, 7, 5))
	_, ok = FindOpponent(root, 5)
	assert.False(t, ok)
}

func TestFindOpponent_OnlyUnresolvedSiblings(t *testing.T) {
	ids := []int{11, 12, 13, 14, 15, 16, 17}
	root := Build(ids)

	for _, id := range ids {
		opp, ok := FindOpponent(root, id)
		if !ok {
			continue
		}
		back, ok := FindOpponent(root, opp)
		require.True(t, ok)
		assert.Equal(t, id, back)
		assert.False(t, RecordOutcome(Clone(root), id, opp, 999))
		assert.True(t, RecordOutcome(Clone(root), id, opp, id))
	}
}

func TestClone_IsDeep(t *testing.T) {
	root := Build([]int{1, 2})
	cp := Clone(root)
	require.True(t, RecordOutcome(cp, 1, 2, 2))

	assert.Nil(t, root.ParticipantID)
	assert.Equal(t, 2, idOf(t, cp))
}

func TestNode_JSONShape(t *testing.T) {
	root := Build([]int{3, 4})
	require.True(t, RecordOutcome(root, 3, 4, 4))

	raw, err := json.Marshal(root)
	require.NoError(t, err)
	assert.JSONEq(t, `{"participant_id":4,"left":{"participant_id":3},"right":{"participant_id":4}}`, string(raw))
}

func TestShuffle_IsPermutation(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	out := Shuffle(ids)

	assert.ElementsMatch(t, ids, out)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, ids)
}

func TestStandings(t *testing.T) {
	root := Build([]int{5, 9, 2, 7})

	_, err := Standings(root)
	assert.ErrorIs(t, err, ErrTournamentRunning)
	_, err = Standings(nil)
	assert.ErrorIs(t, err, ErrEmptyBracket)

	require.True(t, RecordOutcome(root, 5, 9, 5))
	require.True(t, RecordOutcome(root, 2, 7, 7))
	require.True(t, RecordOutcome(root, 5, 7, 7))

	placements, err := Standings(root)
	require.NoError(t, err)
	assert.Equal(t, []Placement{
		{ParticipantID: 7, Wins: 2, Position: 1},
		{ParticipantID: 5, Wins: 1, Position: 2},
		{ParticipantID: 2, Wins: 0, Position: 3},
		{ParticipantID: 9, Wins: 0, Position: 4},
	}, placements)
}

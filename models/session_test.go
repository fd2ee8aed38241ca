package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKey_IsOrderIndependent(t *testing.T) {
	assert.Equal(t, "3-7-100", PairKey(100, 3, 7))
	assert.Equal(t, "3-7-100", PairKey(100, 7, 3))
}

func TestMatchSession_State(t *testing.T) {
	s := &MatchSession{}
	assert.Equal(t, SessionWaiting, s.State())

	s.IsActive = true
	assert.Equal(t, SessionActive, s.State())

	s.IsActive = false
	s.IsFinished = true
	assert.Equal(t, SessionFinished, s.State())
}

func TestMatchSession_AllReady(t *testing.T) {
	s := &MatchSession{Users: []SessionUser{{UserID: 3, IsReady: true}}}
	assert.False(t, s.AllReady())

	s.Users = append(s.Users, SessionUser{UserID: 7})
	assert.False(t, s.AllReady())

	s.Users[1].IsReady = true
	assert.True(t, s.AllReady())
}

func TestMatchSession_CloneIsIndependent(t *testing.T) {
	handle := "tourist"
	rating := 800
	s := &MatchSession{
		PairKey:        "3-7-100",
		CurrentProblem: &Problem{ContestID: 1, Index: "A", Rating: &rating},
		IsActive:       true,
		Users:          []SessionUser{{UserID: 3, Handle: &handle, SolvedProblemKeys: []string{"1-A"}}},
	}

	cp := s.Clone()
	require.Equal(t, s, cp)

	*cp.Users[0].Handle = "petr"
	cp.Users[0].SolvedProblemKeys[0] = "2-B"
	*cp.CurrentProblem.Rating = 1200

	assert.Equal(t, "tourist", *s.Users[0].Handle)
	assert.Equal(t, "1-A", s.Users[0].SolvedProblemKeys[0])
	assert.Equal(t, 800, *s.CurrentProblem.Rating)
}

func TestMatchSession_UserAndOpponent(t *testing.T) {
	s := &MatchSession{Users: []SessionUser{{UserID: 3}, {UserID: 7}}}

	u, ok := s.User(7)
	require.True(t, ok)
	assert.Equal(t, 7, u.UserID)

	opp, ok := s.Opponent(7)
	require.True(t, ok)
	assert.Equal(t, 3, opp.UserID)

	_, ok = s.User(9)
	assert.False(t, ok)
}

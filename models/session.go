package models

import (
	"fmt"
	"time"
)

type SessionState string

const (
	SessionWaiting  SessionState = "WAITING"
	SessionActive   SessionState = "ACTIVE"
	SessionFinished SessionState = "FINISHED"
)

const MaxSessionUsers = 2

// MatchSession is the live state of one pairing inside a tournament.
type MatchSession struct {
	PairKey        string        `json:"pair_key" storm:"id"`
	TournamentID   int           `json:"tournament_id" storm:"index"`
	CurrentProblem *Problem      `json:"current_problem,omitempty"`
	IsActive       bool          `json:"is_active"`
	IsFinished     bool          `json:"is_finished"`
	Users          []SessionUser `json:"users"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type SessionUser struct {
	UserID            int      `json:"user_id"`
	Handle            *string  `json:"handle,omitempty"`
	IsReady           bool     `json:"is_ready"`
	SolvedProblemKeys []string `json:"solved_problem_keys,omitempty"`
}

// PairKey builds the session key shared by both players of a match.
func PairKey(tournamentID, userA, userB int) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d-%d-%d", userA, userB, tournamentID)
}

func (s *MatchSession) State() SessionState {
	switch {
	case s.IsFinished:
		return SessionFinished
	case s.IsActive:
		return SessionActive
	default:
		return SessionWaiting
	}
}

func (s *MatchSession) User(userID int) (*SessionUser, bool) {
	for i := range s.Users {
		if s.Users[i].UserID == userID {
			return &s.Users[i], true
		}
	}
	return nil, false
}

func (s *MatchSession) Opponent(userID int) (*SessionUser, bool) {
	for i := range s.Users {
		if s.Users[i].UserID != userID {
			return &s.Users[i], true
		}
	}
	return nil, false
}

func (s *MatchSession) AllReady() bool {
	if len(s.Users) != MaxSessionUsers {
		return false
	}
	for _, u := range s.Users {
		if !u.IsReady {
			return false
		}
	}
	return true
}

func (s *MatchSession) Clone() *MatchSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.CurrentProblem != nil {
		p := *s.CurrentProblem
		if p.Rating != nil {
			r := *p.Rating
			p.Rating = &r
		}
		out.CurrentProblem = &p
	}
	out.Users = make([]SessionUser, len(s.Users))
	for i, u := range s.Users {
		cp := u
		if u.Handle != nil {
			h := *u.Handle
			cp.Handle = &h
		}
		if u.SolvedProblemKeys != nil {
			cp.SolvedProblemKeys = append([]string(nil), u.SolvedProblemKeys...)
		}
		out.Users[i] = cp
	}
	return &out
}

func (u SessionUser) HandleValue() string {
	if u.Handle == nil {
		return ""
	}
	return *u.Handle
}

// SolvedSet returns the solved problem keys as a lookup set.
func (u SessionUser) SolvedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(u.SolvedProblemKeys))
	for _, k := range u.SolvedProblemKeys {
		set[k] = struct{}{}
	}
	return set
}

package services

import (
	"errors"

	"github.com/Dosada05/duel-arena/brackets"
	"github.com/Dosada05/duel-arena/repositories"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrSelfMatch        = errors.New("a participant cannot play against themselves")
	ErrWinnerNotPlayer  = errors.New("winner must be one of the two players")
	ErrInvalidPairing   = errors.New("players are not paired in the current bracket")

	// Brackets
	ErrBracketNotFound        = repositories.ErrBracketNotFound
	ErrBracketExists          = repositories.ErrBracketExists
	ErrNoParticipants         = errors.New("tournament has no checked-in participants")
	ErrNotEnoughParticipants  = errors.New("tournament needs at least two checked-in participants")
	ErrNoOpponent             = errors.New("participant has no pending opponent")
	ErrMatchNotPending        = errors.New("invalid match or already resolved")
	ErrTournamentStillRunning = brackets.ErrTournamentRunning

	// Sessions
	ErrSessionNotFound = repositories.ErrSessionNotFound
	ErrSessionFull     = errors.New("match session already has two players")
	ErrUserNotInMatch  = errors.New("user is not part of this match")

	// Results
	ErrResultRollbackFailed = errors.New("result compensation failed, orphaned result row left behind")
)

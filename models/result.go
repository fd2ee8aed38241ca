package models

import "time"

type MatchResult struct {
	ID           int64     `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	LocalID      int       `json:"local_id" db:"local_id"`
	VisitantID   int       `json:"visitant_id" db:"visitant_id"`
	WinnerID     int       `json:"winner_id" db:"winner_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type Participation struct {
	TournamentID  int       `json:"tournament_id" db:"tournament_id"`
	ParticipantID int       `json:"participant_id" db:"participant_id"`
	CheckIn       bool      `json:"checkin" db:"checkin"`
	Position      *int      `json:"position,omitempty" db:"position"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

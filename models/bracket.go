package models

import (
	"time"

	"github.com/Dosada05/duel-arena/brackets"
)

// BracketRecord is the stored envelope of a tournament bracket.
type BracketRecord struct {
	TournamentID int            `json:"tournament_id" storm:"id"`
	Tree         *brackets.Node `json:"tree"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

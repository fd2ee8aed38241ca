package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/Dosada05/duel-arena/brackets"
	"github.com/Dosada05/duel-arena/models"
	"github.com/jmoiron/sqlx"
)

type ParticipationRepository interface {
	ListCheckedIn(ctx context.Context, tournamentID int) ([]int, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participation, error)
	UpsertPositions(ctx context.Context, exec SQLExecutor, tournamentID int, placements []brackets.Placement) error
}

type sqlParticipationRepository struct {
	db *sqlx.DB
}

func NewParticipationRepository(db *sqlx.DB) ParticipationRepository {
	return &sqlParticipationRepository{db: db}
}

func (r *sqlParticipationRepository) ListCheckedIn(ctx context.Context, tournamentID int) ([]int, error) {
	query := r.db.Rebind(`
		SELECT participant_id
		FROM participations
		WHERE tournament_id = ? AND checkin = ?
		ORDER BY participant_id`)

	ids := []int{}
	if err := r.db.SelectContext(ctx, &ids, query, tournamentID, true); err != nil {
		return nil, fmt.Errorf("failed to list checked-in participants for tournament %d: %w", tournamentID, err)
	}
	return ids, nil
}

func (r *sqlParticipationRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participation, error) {
	query := r.db.Rebind(`
		SELECT tournament_id, participant_id, checkin, position, updated_at
		FROM participations
		WHERE tournament_id = ?
		ORDER BY position IS NULL, position, participant_id`)

	list := []*models.Participation{}
	if err := r.db.SelectContext(ctx, &list, query, tournamentID); err != nil {
		return nil, fmt.Errorf("failed to list participations for tournament %d: %w", tournamentID, err)
	}
	return list, nil
}

// UpsertPositions writes final positions with a single prepared statement.
// Callers pass a transaction to make the batch atomic.
func (r *sqlParticipationRepository) UpsertPositions(ctx context.Context, exec SQLExecutor, tournamentID int, placements []brackets.Placement) error {
	if len(placements) == 0 {
		return nil
	}
	executor := exec
	if executor == nil {
		executor = r.db
	}

	query := executor.Rebind(`
		INSERT INTO participations (tournament_id, participant_id, checkin, position, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tournament_id, participant_id)
		DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`)

	stmt, err := sqlx.PreparexContext(ctx, executor, query)
	if err != nil {
		return fmt.Errorf("failed to prepare position upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range placements {
		if _, err := stmt.ExecContext(ctx, tournamentID, p.ParticipantID, true, p.Position, now); err != nil {
			return fmt.Errorf("failed to upsert position for participant %d: %w", p.ParticipantID, err)
		}
	}
	return nil
}

package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/duel-arena/models"
	"github.com/jmoiron/sqlx"
)

var (
	ErrResultNotFound = errors.New("match result not found")
	ErrResultInvalid  = errors.New("match result violates a constraint")
)

type ResultRepository interface {
	Create(ctx context.Context, exec SQLExecutor, result *models.MatchResult) error
	Delete(ctx context.Context, exec SQLExecutor, id int64) error
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.MatchResult, error)
}

type sqlResultRepository struct {
	db *sqlx.DB
}

func NewResultRepository(db *sqlx.DB) ResultRepository {
	return &sqlResultRepository{db: db}
}

func (r *sqlResultRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *sqlResultRepository) Create(ctx context.Context, exec SQLExecutor, result *models.MatchResult) error {
	executor := r.getExecutor(exec)
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	query := executor.Rebind(`
		INSERT INTO results (tournament_id, local_id, visitant_id, winner_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`)

	err := executor.QueryRowxContext(ctx, query,
		result.TournamentID,
		result.LocalID,
		result.VisitantID,
		result.WinnerID,
		result.CreatedAt,
	).Scan(&result.ID)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %v", ErrResultInvalid, err)
		}
		return fmt.Errorf("failed to insert match result: %w", err)
	}
	return nil
}

func (r *sqlResultRepository) Delete(ctx context.Context, exec SQLExecutor, id int64) error {
	executor := r.getExecutor(exec)
	res, err := executor.ExecContext(ctx, executor.Rebind(`DELETE FROM results WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete match result %d: %w", id, err)
	}
	return checkAffectedRows(res, ErrResultNotFound)
}

func (r *sqlResultRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.MatchResult, error) {
	query := r.db.Rebind(`
		SELECT id, tournament_id, local_id, visitant_id, winner_id, created_at
		FROM results
		WHERE tournament_id = ?
		ORDER BY created_at, id`)

	results := []*models.MatchResult{}
	if err := r.db.SelectContext(ctx, &results, query, tournamentID); err != nil {
		return nil, fmt.Errorf("failed to list results for tournament %d: %w", tournamentID, err)
	}
	return results, nil
}

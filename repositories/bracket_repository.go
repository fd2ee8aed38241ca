package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/duel-arena/brackets"
	"github.com/Dosada05/duel-arena/models"
	"github.com/asdine/storm"
)

var (
	ErrBracketNotFound = errors.New("bracket not found")
	ErrBracketExists   = errors.New("bracket already exists")
)

type BracketRepository interface {
	Create(ctx context.Context, record *models.BracketRecord) error
	GetByTournament(ctx context.Context, tournamentID int) (*models.BracketRecord, error)
	UpdateTree(ctx context.Context, tournamentID int, tree *brackets.Node) error
	Delete(ctx context.Context, tournamentID int) error
}

type stormBracketRepository struct {
	node storm.Node
}

func NewBracketRepository(db *storm.DB) BracketRepository {
	return &stormBracketRepository{node: db.From("brackets")}
}

func (r *stormBracketRepository) Create(ctx context.Context, record *models.BracketRecord) error {
	tx, err := r.node.Begin(true)
	if err != nil {
		return fmt.Errorf("failed to begin bracket transaction: %w", err)
	}
	defer tx.Rollback()

	var existing models.BracketRecord
	err = tx.One("TournamentID", record.TournamentID, &existing)
	switch {
	case err == nil:
		return ErrBracketExists
	case !errors.Is(err, storm.ErrNotFound):
		return fmt.Errorf("failed to check bracket for tournament %d: %w", record.TournamentID, err)
	}

	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if err := tx.Save(record); err != nil {
		return fmt.Errorf("failed to save bracket for tournament %d: %w", record.TournamentID, err)
	}
	return tx.Commit()
}

func (r *stormBracketRepository) GetByTournament(ctx context.Context, tournamentID int) (*models.BracketRecord, error) {
	var record models.BracketRecord
	if err := r.node.One("TournamentID", tournamentID, &record); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, ErrBracketNotFound
		}
		return nil, fmt.Errorf("failed to load bracket for tournament %d: %w", tournamentID, err)
	}
	return &record, nil
}

// UpdateTree replaces the tree of an existing record.
func (r *stormBracketRepository) UpdateTree(ctx context.Context, tournamentID int, tree *brackets.Node) error {
	tx, err := r.node.Begin(true)
	if err != nil {
		return fmt.Errorf("failed to begin bracket transaction: %w", err)
	}
	defer tx.Rollback()

	var record models.BracketRecord
	if err := tx.One("TournamentID", tournamentID, &record); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return ErrBracketNotFound
		}
		return fmt.Errorf("failed to load bracket for tournament %d: %w", tournamentID, err)
	}

	record.Tree = tree
	record.UpdatedAt = time.Now().UTC()
	if err := tx.Save(&record); err != nil {
		return fmt.Errorf("failed to update bracket for tournament %d: %w", tournamentID, err)
	}
	return tx.Commit()
}

// Delete is a no-op when the record does not exist.
func (r *stormBracketRepository) Delete(ctx context.Context, tournamentID int) error {
	err := r.node.DeleteStruct(&models.BracketRecord{TournamentID: tournamentID})
	if err != nil && !errors.Is(err, storm.ErrNotFound) {
		return fmt.Errorf("failed to delete bracket for tournament %d: %w", tournamentID, err)
	}
	return nil
}

package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dosada05/duel-arena/models"
	"github.com/asdine/storm"
	"github.com/asdine/storm/q"
)

var (
	ErrSessionNotFound = errors.New("match session not found")
	ErrSessionExists   = errors.New("match session already exists")
)

type SessionRepository interface {
	Create(ctx context.Context, session *models.MatchSession) error
	GetByPairKey(ctx context.Context, pairKey string) (*models.MatchSession, error)
	Save(ctx context.Context, session *models.MatchSession) error
	Delete(ctx context.Context, pairKey string) error
	ListUnfinished(ctx context.Context) ([]*models.MatchSession, error)
}

type stormSessionRepository struct {
	node storm.Node
}

func NewSessionRepository(db *storm.DB) SessionRepository {
	return &stormSessionRepository{node: db.From("sessions")}
}

func (r *stormSessionRepository) Create(ctx context.Context, session *models.MatchSession) error {
	tx, err := r.node.Begin(true)
	if err != nil {
		return fmt.Errorf("failed to begin session transaction: %w", err)
	}
	defer tx.Rollback()

	var existing models.MatchSession
	err = tx.One("PairKey", session.PairKey, &existing)
	switch {
	case err == nil:
		return ErrSessionExists
	case !errors.Is(err, storm.ErrNotFound):
		return fmt.Errorf("failed to check session %s: %w", session.PairKey, err)
	}

	if err := tx.Save(session); err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.PairKey, err)
	}
	return tx.Commit()
}

func (r *stormSessionRepository) GetByPairKey(ctx context.Context, pairKey string) (*models.MatchSession, error) {
	var session models.MatchSession
	if err := r.node.One("PairKey", pairKey, &session); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", pairKey, err)
	}
	return &session, nil
}

// Save overwrites the whole document.
func (r *stormSessionRepository) Save(ctx context.Context, session *models.MatchSession) error {
	if err := r.node.Save(session); err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.PairKey, err)
	}
	return nil
}

func (r *stormSessionRepository) Delete(ctx context.Context, pairKey string) error {
	err := r.node.DeleteStruct(&models.MatchSession{PairKey: pairKey})
	if err != nil && !errors.Is(err, storm.ErrNotFound) {
		return fmt.Errorf("failed to delete session %s: %w", pairKey, err)
	}
	return nil
}

func (r *stormSessionRepository) ListUnfinished(ctx context.Context) ([]*models.MatchSession, error) {
	var sessions []*models.MatchSession
	err := r.node.Select(q.Eq("IsFinished", false)).Find(&sessions)
	if err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list unfinished sessions: %w", err)
	}
	return sessions, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/duel-arena/brackets"
	"github.com/Dosada05/duel-arena/models"
	"github.com/Dosada05/duel-arena/repositories"
	"github.com/Dosada05/duel-arena/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

type BracketService interface {
	CreateBracket(ctx context.Context, tournamentID int) (*brackets.Node, error)
	GetByTournament(ctx context.Context, tournamentID int) (*brackets.Node, error)
	Persist(ctx context.Context, tournamentID int, tree *brackets.Node) error
	DeleteByTournament(ctx context.Context, tournamentID int) error
	GetOpponent(ctx context.Context, tournamentID, participantID int) (int, error)
}

type bracketService struct {
	brackets       repositories.BracketRepository
	participations repositories.ParticipationRepository
	archiver       storage.BracketArchiver
	cache          *lru.Cache[int, *brackets.Node]
	logger         *slog.Logger
}

// NewBracketService fronts the bracket repository with an LRU of cacheSize trees.
// archiver may be nil.
func NewBracketService(
	bracketRepo repositories.BracketRepository,
	participationRepo repositories.ParticipationRepository,
	archiver storage.BracketArchiver,
	cacheSize int,
	logger *slog.Logger,
) (BracketService, error) {
	cache, err := lru.New[int, *brackets.Node](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create bracket cache: %w", err)
	}
	return &bracketService{
		brackets:       bracketRepo,
		participations: participationRepo,
		archiver:       archiver,
		cache:          cache,
		logger:         logger,
	}, nil
}

func (s *bracketService) CreateBracket(ctx context.Context, tournamentID int) (*brackets.Node, error) {
	if tournamentID <= 0 {
		return nil, fmt.Errorf("%w: tournament id must be positive", ErrValidationFailed)
	}

	if _, err := s.GetByTournament(ctx, tournamentID); err == nil {
		return nil, ErrBracketExists
	} else if !errors.Is(err, ErrBracketNotFound) {
		return nil, err
	}

	ids, err := s.participations.ListCheckedIn(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	switch len(ids) {
	case 0:
		return nil, ErrNoParticipants
	case 1:
		return nil, ErrNotEnoughParticipants
	}

	tree := brackets.Build(brackets.Shuffle(ids))
	if err := s.brackets.Create(ctx, &models.BracketRecord{TournamentID: tournamentID, Tree: tree}); err != nil {
		return nil, err
	}
	s.cache.Add(tournamentID, brackets.Clone(tree))

	s.logger.Info("bracket created",
		slog.Int("tournament_id", tournamentID),
		slog.Int("participants", len(ids)),
		slog.Int("depth", brackets.Depth(tree)))
	return tree, nil
}

// GetByTournament returns a copy of the tree; cached trees are never handed out.
func (s *bracketService) GetByTournament(ctx context.Context, tournamentID int) (*brackets.Node, error) {
	if tree, ok := s.cache.Get(tournamentID); ok {
		return brackets.Clone(tree), nil
	}

	record, err := s.brackets.GetByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	s.cache.Add(tournamentID, brackets.Clone(record.Tree))
	return record.Tree, nil
}

func (s *bracketService) Persist(ctx context.Context, tournamentID int, tree *brackets.Node) error {
	if err := s.brackets.UpdateTree(ctx, tournamentID, tree); err != nil {
		return err
	}
	s.cache.Add(tournamentID, brackets.Clone(tree))
	return nil
}

func (s *bracketService) DeleteByTournament(ctx context.Context, tournamentID int) error {
	s.cache.Remove(tournamentID)
	if err := s.brackets.Delete(ctx, tournamentID); err != nil {
		return err
	}
	s.logger.Info("bracket deleted", slog.Int("tournament_id", tournamentID))

	if s.archiver != nil {
		if err := s.archiver.Remove(ctx, tournamentID); err != nil {
			s.logger.Warn("failed to remove archived bracket",
				slog.Int("tournament_id", tournamentID),
				slog.Any("error", err))
		}
	}
	return nil
}

func (s *bracketService) GetOpponent(ctx context.Context, tournamentID, participantID int) (int, error) {
	tree, err := s.GetByTournament(ctx, tournamentID)
	if err != nil {
		return 0, err
	}
	opponent, ok := brackets.FindOpponent(tree, participantID)
	if !ok {
		return 0, fmt.Errorf("%w: participant %d", ErrNoOpponent, participantID)
	}
	return opponent, nil
}

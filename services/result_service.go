package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Dosada05/duel-arena/brackets"
	"github.com/Dosada05/duel-arena/models"
	"github.com/Dosada05/duel-arena/realtime"
	"github.com/Dosada05/duel-arena/repositories"
	"github.com/Dosada05/duel-arena/storage"
	"github.com/Dosada05/duel-arena/utils"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

const compensationTimeout = 10 * time.Second

type RecordResultInput struct {
	TournamentID int `json:"tournament_id"`
	LocalID      int `json:"local_id"`
	VisitantID   int `json:"visitant_id"`
	WinnerID     int `json:"winner_id"`
}

// TournamentOverview is everything a bracket page needs in one response.
type TournamentOverview struct {
	TournamentID   int                     `json:"tournament_id"`
	Tree           *brackets.Node          `json:"tree"`
	WinnerID       *int                    `json:"winner_id,omitempty"`
	Standings      []brackets.Placement    `json:"standings,omitempty"`
	Results        []*models.MatchResult   `json:"results"`
	Participations []*models.Participation `json:"participations"`
	ArchiveURL     string                  `json:"archive_url,omitempty"`
}

type ResultService interface {
	RecordResult(ctx context.Context, input RecordResultInput) (*models.MatchResult, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.MatchResult, error)
	GetStandings(ctx context.Context, tournamentID int) ([]brackets.Placement, error)
	GetOverview(ctx context.Context, tournamentID int) (*TournamentOverview, error)
}

// RoomBroadcaster fans a message out to everyone in a room.
type RoomBroadcaster interface {
	BroadcastToRoom(roomID string, msg realtime.Message) int
}

type resultService struct {
	db             *sqlx.DB
	bracketService BracketService
	results        repositories.ResultRepository
	participations repositories.ParticipationRepository
	broadcaster    RoomBroadcaster
	archiver       storage.BracketArchiver
	locks          *utils.KeyLock
	logger         *slog.Logger
}

// NewResultService wires the result recorder. broadcaster and archiver are optional.
func NewResultService(
	db *sqlx.DB,
	bracketService BracketService,
	resultRepo repositories.ResultRepository,
	participationRepo repositories.ParticipationRepository,
	broadcaster RoomBroadcaster,
	archiver storage.BracketArchiver,
	logger *slog.Logger,
) ResultService {
	return &resultService{
		db:             db,
		bracketService: bracketService,
		results:        resultRepo,
		participations: participationRepo,
		broadcaster:    broadcaster,
		archiver:       archiver,
		locks:          utils.NewKeyLock(64),
		logger:         logger,
	}
}

func validateResultInput(input RecordResultInput) error {
	if input.TournamentID <= 0 || input.LocalID <= 0 || input.VisitantID <= 0 {
		return fmt.Errorf("%w: tournament and participant ids must be positive", ErrValidationFailed)
	}
	if input.LocalID == input.VisitantID {
		return ErrSelfMatch
	}
	if input.WinnerID != input.LocalID && input.WinnerID != input.VisitantID {
		return ErrWinnerNotPlayer
	}
	return nil
}

// RecordResult inserts the result row and advances the bracket. The row is
// written first; if the tree cannot be persisted afterwards the row is
// deleted again so both stores agree.
func (s *resultService) RecordResult(ctx context.Context, input RecordResultInput) (*models.MatchResult, error) {
	if err := validateResultInput(input); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(strconv.Itoa(input.TournamentID))
	defer unlock()

	// GetByTournament отдает копию: кэш не меняется, пока Persist не прошел.
	tree, err := s.bracketService.GetByTournament(ctx, input.TournamentID)
	if err != nil {
		if errors.Is(err, ErrBracketNotFound) {
			return nil, fmt.Errorf("%w: tournament %d", brackets.ErrEmptyBracket, input.TournamentID)
		}
		return nil, err
	}

	if !brackets.RecordOutcome(tree, input.LocalID, input.VisitantID, input.WinnerID) {
		return nil, ErrMatchNotPending
	}

	result := &models.MatchResult{
		TournamentID: input.TournamentID,
		LocalID:      input.LocalID,
		VisitantID:   input.VisitantID,
		WinnerID:     input.WinnerID,
	}
	if err := s.results.Create(ctx, nil, result); err != nil {
		return nil, fmt.Errorf("failed to store result for tournament %d: %w", input.TournamentID, err)
	}

	if err := s.bracketService.Persist(ctx, input.TournamentID, tree); err != nil {
		s.compensate(ctx, result)
		return nil, fmt.Errorf("failed to advance bracket for tournament %d: %w", input.TournamentID, err)
	}

	s.logger.InfoContext(ctx, "match result recorded",
		slog.Int("tournament_id", input.TournamentID),
		slog.Int64("result_id", result.ID),
		slog.Int("winner_id", input.WinnerID),
		slog.Int("loser_id", loserOf(input)))

	standings, err := s.updateStandings(ctx, input.TournamentID, tree)
	switch {
	case errors.Is(err, ErrTournamentStillRunning):
		s.logger.DebugContext(ctx, "tournament still running, standings not final", slog.Int("tournament_id", input.TournamentID))
	case err != nil:
		s.logger.ErrorContext(ctx, "failed to update standings",
			slog.Int("tournament_id", input.TournamentID),
			slog.Any("error", err))
	}

	s.announce(input.TournamentID, tree)
	if standings != nil {
		s.archive(ctx, input.TournamentID, tree, standings)
	}
	return result, nil
}

func loserOf(input RecordResultInput) int {
	if input.WinnerID == input.LocalID {
		return input.VisitantID
	}
	return input.LocalID
}

func (s *resultService) compensate(ctx context.Context, result *models.MatchResult) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.results.Delete(cctx, nil, result.ID); err != nil {
		s.logger.ErrorContext(ctx, ErrResultRollbackFailed.Error(),
			slog.Int("tournament_id", result.TournamentID),
			slog.Int64("result_id", result.ID),
			slog.Any("error", err))
		return
	}
	s.logger.WarnContext(ctx, "result row rolled back after bracket persist failure",
		slog.Int("tournament_id", result.TournamentID),
		slog.Int64("result_id", result.ID))
}

// updateStandings writes final positions once the root is resolved.
func (s *resultService) updateStandings(ctx context.Context, tournamentID int, tree *brackets.Node) (standings []brackets.Placement, err error) {
	standings, err = brackets.Standings(tree)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit standings: %w", cErr)
		}
		if err != nil {
			standings = nil
		}
	}()

	err = s.participations.UpsertPositions(ctx, tx, tournamentID, standings)
	return standings, err
}

func (s *resultService) announce(tournamentID int, tree *brackets.Node) {
	if s.broadcaster == nil {
		return
	}
	update := realtime.BracketUpdated{TournamentID: tournamentID, Tree: tree}
	if winner, ok := brackets.Winner(tree); ok {
		update.WinnerID = &winner
	}
	s.broadcaster.BroadcastToRoom(realtime.TournamentRoom(tournamentID), realtime.NewMessage(update))
}

func (s *resultService) archive(ctx context.Context, tournamentID int, tree *brackets.Node, standings []brackets.Placement) {
	if s.archiver == nil {
		return
	}
	res, err := s.archiver.Archive(ctx, storage.BracketSnapshot{
		TournamentID: tournamentID,
		Tree:         tree,
		Standings:    standings,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to archive final bracket",
			slog.Int("tournament_id", tournamentID),
			slog.Any("error", err))
		return
	}
	s.logger.InfoContext(ctx, "final bracket archived",
		slog.Int("tournament_id", tournamentID),
		slog.String("location", res.Location))
}

func (s *resultService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.MatchResult, error) {
	if tournamentID <= 0 {
		return nil, fmt.Errorf("%w: tournament id must be positive", ErrValidationFailed)
	}
	return s.results.ListByTournament(ctx, tournamentID)
}

func (s *resultService) GetStandings(ctx context.Context, tournamentID int) ([]brackets.Placement, error) {
	tree, err := s.bracketService.GetByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return brackets.Standings(tree)
}

func (s *resultService) GetOverview(ctx context.Context, tournamentID int) (*TournamentOverview, error) {
	if tournamentID <= 0 {
		return nil, fmt.Errorf("%w: tournament id must be positive", ErrValidationFailed)
	}

	overview := &TournamentOverview{TournamentID: tournamentID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tree, err := s.bracketService.GetByTournament(gctx, tournamentID)
		if err != nil {
			return err
		}
		overview.Tree = tree
		return nil
	})
	g.Go(func() error {
		results, err := s.results.ListByTournament(gctx, tournamentID)
		if err != nil {
			return err
		}
		overview.Results = results
		return nil
	})
	g.Go(func() error {
		participations, err := s.participations.ListByTournament(gctx, tournamentID)
		if err != nil {
			return err
		}
		overview.Participations = participations
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if winner, ok := brackets.Winner(overview.Tree); ok {
		overview.WinnerID = &winner
		if standings, err := brackets.Standings(overview.Tree); err == nil {
			overview.Standings = standings
		}
		if s.archiver != nil {
			overview.ArchiveURL = s.archiver.URL(tournamentID)
		}
	}
	return overview, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Dosada05/duel-arena/models"
	"github.com/Dosada05/duel-arena/repositories"
	lru "github.com/hashicorp/golang-lru/v2"
)

// SessionStore keeps match sessions in the document store behind an LRU.
// Every helper loads the session, mutates a copy and writes the whole
// document back to both the store and the cache.
type SessionStore interface {
	Get(ctx context.Context, pairKey string) (*models.MatchSession, error)
	Create(ctx context.Context, pairKey string, tournamentID int) (*models.MatchSession, error)
	UpsertUser(ctx context.Context, pairKey string, user models.SessionUser) (*models.MatchSession, error)
	SetReady(ctx context.Context, pairKey string, userID int, ready bool) (*models.MatchSession, error)
	UpdateSolved(ctx context.Context, pairKey string, userID int, handle string, solved map[string]struct{}) (*models.MatchSession, error)
	SetProblem(ctx context.Context, pairKey string, problem *models.Problem) (*models.MatchSession, error)
	Finish(ctx context.Context, pairKey string) (*models.MatchSession, error)
	Delete(ctx context.Context, pairKey string) error
	ListUnfinished(ctx context.Context) ([]*models.MatchSession, error)
}

type sessionStore struct {
	repo  repositories.SessionRepository
	cache *lru.Cache[string, *models.MatchSession]
	now   func() time.Time
}

func NewSessionStore(repo repositories.SessionRepository, cacheSize int) (SessionStore, error) {
	cache, err := lru.New[string, *models.MatchSession](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &sessionStore{repo: repo, cache: cache, now: time.Now}, nil
}

func (s *sessionStore) Get(ctx context.Context, pairKey string) (*models.MatchSession, error) {
	if session, ok := s.cache.Get(pairKey); ok {
		return session.Clone(), nil
	}
	session, err := s.repo.GetByPairKey(ctx, pairKey)
	if err != nil {
		return nil, err
	}
	s.cache.Add(pairKey, session.Clone())
	return session, nil
}

func (s *sessionStore) Create(ctx context.Context, pairKey string, tournamentID int) (*models.MatchSession, error) {
	now := s.now().UTC()
	session := &models.MatchSession{
		PairKey:      pairKey,
		TournamentID: tournamentID,
		Users:        []models.SessionUser{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		if errors.Is(err, repositories.ErrSessionExists) {
			return s.Get(ctx, pairKey)
		}
		return nil, err
	}
	s.cache.Add(pairKey, session.Clone())
	return session, nil
}

func (s *sessionStore) mutate(ctx context.Context, pairKey string, fn func(*models.MatchSession) error) (*models.MatchSession, error) {
	session, err := s.Get(ctx, pairKey)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	session.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	s.cache.Add(pairKey, session.Clone())
	return session, nil
}

// UpsertUser replaces the entry with the same user id or appends a new one.
func (s *sessionStore) UpsertUser(ctx context.Context, pairKey string, user models.SessionUser) (*models.MatchSession, error) {
	return s.mutate(ctx, pairKey, func(session *models.MatchSession) error {
		if existing, ok := session.User(user.UserID); ok {
			*existing = user
			return nil
		}
		if len(session.Users) >= models.MaxSessionUsers {
			return ErrSessionFull
		}
		session.Users = append(session.Users, user)
		return nil
	})
}

func (s *sessionStore) SetReady(ctx context.Context, pairKey string, userID int, ready bool) (*models.MatchSession, error) {
	return s.mutate(ctx, pairKey, func(session *models.MatchSession) error {
		user, ok := session.User(userID)
		if !ok {
			return ErrUserNotInMatch
		}
		user.IsReady = ready
		return nil
	})
}

func (s *sessionStore) UpdateSolved(ctx context.Context, pairKey string, userID int, handle string, solved map[string]struct{}) (*models.MatchSession, error) {
	keys := make([]string, 0, len(solved))
	for k := range solved {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return s.mutate(ctx, pairKey, func(session *models.MatchSession) error {
		user, ok := session.User(userID)
		if !ok {
			return ErrUserNotInMatch
		}
		h := handle
		user.Handle = &h
		user.SolvedProblemKeys = keys
		return nil
	})
}

// SetProblem assigns the problem and marks the match active; nil clears both.
func (s *sessionStore) SetProblem(ctx context.Context, pairKey string, problem *models.Problem) (*models.MatchSession, error) {
	return s.mutate(ctx, pairKey, func(session *models.MatchSession) error {
		session.CurrentProblem = problem
		session.IsActive = problem != nil
		return nil
	})
}

func (s *sessionStore) Finish(ctx context.Context, pairKey string) (*models.MatchSession, error) {
	return s.mutate(ctx, pairKey, func(session *models.MatchSession) error {
		for i := range session.Users {
			session.Users[i].IsReady = false
		}
		session.CurrentProblem = nil
		session.IsActive = false
		session.IsFinished = true
		return nil
	})
}

func (s *sessionStore) Delete(ctx context.Context, pairKey string) error {
	s.cache.Remove(pairKey)
	return s.repo.Delete(ctx, pairKey)
}

func (s *sessionStore) ListUnfinished(ctx context.Context) ([]*models.MatchSession, error) {
	return s.repo.ListUnfinished(ctx)
}

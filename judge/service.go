package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/duel-arena/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

type Policy string

const (
	PolicyRandom       Policy = "random"
	PolicyLowestRating Policy = "lowest-rating"
)

var (
	ErrCatalogNotLoaded = errors.New("problem catalog is not loaded")
	ErrNoFairProblem    = errors.New("no problem left that neither player has solved")
)

const (
	catalogFlightKey = "problemset"
	flightTimeout    = time.Minute
)

type Config struct {
	MinRating         int
	MaxRating         int
	Policy            Policy
	CatalogTTL        time.Duration
	SolvedTTL         time.Duration
	SolvedCacheSize   int
	ProblemBaseURL    string
	RecentSubmissions int
}

// Service layers caching, request coalescing and fair problem selection on
// top of a Fetcher.
type Service struct {
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	catalog   []models.Problem
	catalogAt time.Time

	solved *expirable.LRU[string, map[string]struct{}]
	group  singleflight.Group

	usedMu sync.Mutex
	used   map[string]struct{}
}

func NewService(fetcher Fetcher, cfg Config, logger *slog.Logger) *Service {
	if cfg.SolvedCacheSize <= 0 {
		cfg.SolvedCacheSize = 1024
	}
	if cfg.SolvedTTL <= 0 {
		cfg.SolvedTTL = 5 * time.Minute
	}
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = time.Hour
	}
	if cfg.RecentSubmissions <= 0 {
		cfg.RecentSubmissions = 10
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyRandom
	}

	return &Service{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		solved:  expirable.NewLRU[string, map[string]struct{}](cfg.SolvedCacheSize, nil, cfg.SolvedTTL),
		used:    make(map[string]struct{}),
	}
}

// ListAllProblems returns the rating-filtered catalog, fetching it when the
// cached copy is missing or older than the catalog TTL.
func (s *Service) ListAllProblems(ctx context.Context) ([]models.Problem, error) {
	s.mu.RLock()
	if s.catalog != nil && s.now().Sub(s.catalogAt) < s.cfg.CatalogTTL {
		catalog := s.catalog
		s.mu.RUnlock()
		return catalog, nil
	}
	s.mu.RUnlock()

	return s.Refresh(ctx)
}

// Refresh fetches the catalog unconditionally. Concurrent callers share one request.
func (s *Service) Refresh(ctx context.Context) ([]models.Problem, error) {
	v, err, _ := s.group.Do(catalogFlightKey, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		all, err := s.fetcher.ListProblems(fctx)
		if err != nil {
			return nil, err
		}

		catalog := make([]models.Problem, 0, len(all))
		for _, p := range all {
			if p.Rating == nil || *p.Rating < s.cfg.MinRating || *p.Rating > s.cfg.MaxRating {
				continue
			}
			catalog = append(catalog, p)
		}

		s.mu.Lock()
		s.catalog = catalog
		s.catalogAt = s.now()
		s.mu.Unlock()

		s.logger.Info("problem catalog loaded",
			slog.Int("total", len(all)),
			slog.Int("usable", len(catalog)),
			slog.Int("min_rating", s.cfg.MinRating),
			slog.Int("max_rating", s.cfg.MaxRating))
		return catalog, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load problem catalog: %w", err)
	}
	return v.([]models.Problem), nil
}

// Problems returns the in-memory catalog without touching the network.
func (s *Service) Problems() ([]models.Problem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog, s.catalog != nil
}

// WarmUp loads the catalog in the background.
func (s *Service) WarmUp() {
	go func() {
		if _, err := s.ListAllProblems(context.Background()); err != nil {
			s.logger.Error("problem catalog warm-up failed", slog.Any("error", err))
		}
	}()
}

// Run loads the catalog and refreshes it every catalog TTL until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Error("initial problem catalog load failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(s.cfg.CatalogTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.logger.Error("problem catalog refresh failed", slog.Any("error", err))
			}
		}
	}
}

// SolvedProblems returns the keys of every problem handle has an accepted
// submission for. Results are cached per handle and concurrent lookups for
// the same handle share a single request.
func (s *Service) SolvedProblems(ctx context.Context, handle string) (map[string]struct{}, error) {
	key := strings.ToLower(handle)
	if set, ok := s.solved.Get(key); ok {
		return set, nil
	}

	v, err, _ := s.group.Do("solved:"+key, func() (interface{}, error) {
		if set, ok := s.solved.Get(key); ok {
			return set, nil
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		subs, err := s.fetcher.UserStatus(fctx, handle, 1, 0)
		if err != nil {
			return nil, err
		}

		set := make(map[string]struct{})
		for _, sub := range subs {
			if sub.Verdict == VerdictAccepted {
				set[models.ProblemKey(sub.Problem.ContestID, sub.Problem.Index)] = struct{}{}
			}
		}
		s.solved.Add(key, set)
		return set, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load solved problems for %s: %w", handle, err)
	}
	return v.(map[string]struct{}), nil
}

// HasSolved checks the most recent submissions of handle for an accepted
// solution of problem. It always hits the judge.
func (s *Service) HasSolved(ctx context.Context, handle string, problem models.Problem) (bool, error) {
	subs, err := s.fetcher.UserStatus(ctx, handle, 1, s.cfg.RecentSubmissions)
	if err != nil {
		return false, fmt.Errorf("failed to verify %s for %s: %w", problem.Key(), handle, err)
	}

	for _, sub := range subs {
		if sub.Verdict == VerdictAccepted &&
			sub.Problem.ContestID == problem.ContestID &&
			sub.Problem.Index == problem.Index {
			return true, nil
		}
	}
	return false, nil
}

// FindFairProblem picks a catalog problem neither player has solved and that
// has not been handed out before by this process.
func (s *Service) FindFairProblem(solvedA, solvedB map[string]struct{}) (models.Problem, error) {
	catalog, ok := s.Problems()
	if !ok {
		return models.Problem{}, ErrCatalogNotLoaded
	}

	s.usedMu.Lock()
	defer s.usedMu.Unlock()

	candidates := make([]models.Problem, 0, len(catalog))
	for _, p := range catalog {
		key := p.Key()
		if _, ok := solvedA[key]; ok {
			continue
		}
		if _, ok := solvedB[key]; ok {
			continue
		}
		if _, ok := s.used[key]; ok {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return models.Problem{}, ErrNoFairProblem
	}

	var pick models.Problem
	switch s.cfg.Policy {
	case PolicyLowestRating:
		sort.Slice(candidates, func(i, j int) bool {
			return lessByRating(candidates[i], candidates[j])
		})
		pick = candidates[0]
	default:
		pick = candidates[rand.IntN(len(candidates))]
	}

	s.used[pick.Key()] = struct{}{}
	return pick, nil
}

// Release returns a picked problem to the pool, used when the pick could not
// be assigned to a session.
func (s *Service) Release(problemKey string) {
	s.usedMu.Lock()
	defer s.usedMu.Unlock()
	delete(s.used, problemKey)
}

func (s *Service) ProblemURL(p models.Problem) string {
	return fmt.Sprintf("%s/problemset/problem/%d/%s", s.cfg.ProblemBaseURL, p.ContestID, p.Index)
}

func lessByRating(a, b models.Problem) bool {
	switch {
	case a.Rating == nil && b.Rating != nil:
		return false
	case a.Rating != nil && b.Rating == nil:
		return true
	case a.Rating != nil && b.Rating != nil && *a.Rating != *b.Rating:
		return *a.Rating < *b.Rating
	}
	if a.ContestID != b.ContestID {
		return a.ContestID < b.ContestID
	}
	return a.Index < b.Index
}

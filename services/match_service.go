package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Dosada05/duel-arena/judge"
	"github.com/Dosada05/duel-arena/models"
	"github.com/Dosada05/duel-arena/realtime"
	"github.com/Dosada05/duel-arena/utils"
)

const (
	defaultCommandTimeout = 30 * time.Second
	cancelReasonIdle      = "session abandoned"
)

// Messenger delivers messages to connected players of a pair room.
type Messenger interface {
	Register(c *realtime.Client)
	Unregister(c *realtime.Client) bool
	SendToUser(roomID string, userID int, msg realtime.Message) bool
	BroadcastToRoom(roomID string, msg realtime.Message) int
	CloseUser(roomID string, userID int)
	IsConnected(roomID string, userID int) bool
}

// ProblemJudge is the part of the judge used to run a duel.
type ProblemJudge interface {
	WarmUp()
	SolvedProblems(ctx context.Context, handle string) (map[string]struct{}, error)
	HasSolved(ctx context.Context, handle string, problem models.Problem) (bool, error)
	FindFairProblem(solvedA, solvedB map[string]struct{}) (models.Problem, error)
	Release(problemKey string)
	ProblemURL(p models.Problem) string
}

type ResultRecorder interface {
	RecordResult(ctx context.Context, input RecordResultInput) (*models.MatchResult, error)
}

type MatchServiceConfig struct {
	// IdleTTL is how long an unfinished session may go untouched before the reaper retires it.
	IdleTTL        time.Duration
	CommandTimeout time.Duration
}

// MatchService drives the lifecycle of one duel per pair key: connect,
// ready negotiation, problem assignment, win checks and teardown.
type MatchService interface {
	Connect(ctx context.Context, client *realtime.Client, tournamentID int)
	HandleCommand(ctx context.Context, client *realtime.Client, raw []byte)
	Ready(ctx context.Context, pairKey string, userID int, handle string)
	NotReady(ctx context.Context, pairKey string, userID int)
	CheckWin(ctx context.Context, pairKey string, userID int)
	Disconnect(ctx context.Context, client *realtime.Client)
	ReapAbandonedSessions(ctx context.Context, now time.Time) (int, error)
}

type matchService struct {
	sessions  SessionStore
	messenger Messenger
	judge     ProblemJudge
	recorder  ResultRecorder
	locks     *utils.KeyLock
	cfg       MatchServiceConfig
	logger    *slog.Logger
}

func NewMatchService(
	sessions SessionStore,
	messenger Messenger,
	problemJudge ProblemJudge,
	recorder ResultRecorder,
	cfg MatchServiceConfig,
	logger *slog.Logger,
) MatchService {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	return &matchService{
		sessions:  sessions,
		messenger: messenger,
		judge:     problemJudge,
		recorder:  recorder,
		locks:     utils.NewKeyLock(256),
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *matchService) send(pairKey string, userID int, p realtime.Payload) {
	s.messenger.SendToUser(pairKey, userID, realtime.NewMessage(p))
}

func (s *matchService) broadcast(pairKey string, p realtime.Payload) {
	s.messenger.BroadcastToRoom(pairKey, realtime.NewMessage(p))
}

func (s *matchService) sendError(pairKey string, userID int, code realtime.ErrorCode, op string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
		s.logger.Warn("match command failed",
			slog.String("pair_key", pairKey),
			slog.Int("user_id", userID),
			slog.String("code", string(code)),
			slog.Any("error", err))
	}
	s.send(pairKey, userID, realtime.NewError(code, op, details))
}

func (s *matchService) broadcastError(pairKey string, code realtime.ErrorCode, op string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	s.broadcast(pairKey, realtime.NewError(code, op, details))
}

// Connect registers the client and attaches it to the session of its room,
// creating the session on first contact.
func (s *matchService) Connect(ctx context.Context, client *realtime.Client, tournamentID int) {
	pairKey, userID := client.Room, client.UserID
	unlock := s.locks.Lock(pairKey)
	defer unlock()

	s.messenger.Register(client)
	log := s.logger.With(slog.String("pair_key", pairKey), slog.Int("user_id", userID))

	session, err := s.sessions.Get(ctx, pairKey)
	if errors.Is(err, ErrSessionNotFound) {
		session, err = s.sessions.Create(ctx, pairKey, tournamentID)
	}
	if err != nil {
		s.sendError(pairKey, userID, realtime.CodeSessionCreationFailed, "connect", err)
		s.messenger.CloseUser(pairKey, userID)
		return
	}

	if session.IsFinished {
		s.sendError(pairKey, userID, realtime.CodeMatchAlreadyFinished, "connect", nil)
		s.messenger.CloseUser(pairKey, userID)
		return
	}

	if _, ok := session.User(userID); ok {
		log.Info("player reconnected")
		s.send(pairKey, userID, realtime.SessionConnected{
			PairKey:        pairKey,
			TournamentID:   session.TournamentID,
			UserID:         userID,
			IsReconnection: true,
		})
		s.send(pairKey, userID, s.snapshot(session))
		return
	}

	session, err = s.sessions.UpsertUser(ctx, pairKey, models.SessionUser{UserID: userID})
	if err != nil {
		s.sendError(pairKey, userID, realtime.CodeUserAddFailed, "connect", err)
		s.messenger.CloseUser(pairKey, userID)
		return
	}

	log.Info("player joined session", slog.Int("players", len(session.Users)))
	s.send(pairKey, userID, realtime.SessionConnected{
		PairKey:      pairKey,
		TournamentID: session.TournamentID,
		UserID:       userID,
	})
	if opponent, ok := session.Opponent(userID); ok {
		s.send(pairKey, opponent.UserID, realtime.UserJoined{PairKey: pairKey, UserID: userID})
	}
}

func (s *matchService) snapshot(session *models.MatchSession) realtime.SessionResume {
	resume := realtime.SessionResume{
		PairKey:      session.PairKey,
		TournamentID: session.TournamentID,
		IsActive:     session.IsActive,
		IsFinished:   session.IsFinished,
		Users:        make([]realtime.UserView, 0, len(session.Users)),
	}
	if session.CurrentProblem != nil {
		view := s.problemView(*session.CurrentProblem)
		resume.CurrentProblem = &view
	}
	for _, u := range session.Users {
		resume.Users = append(resume.Users, realtime.UserView{UserID: u.UserID, Handle: u.Handle, IsReady: u.IsReady})
	}
	return resume
}

func (s *matchService) problemView(p models.Problem) realtime.ProblemView {
	return realtime.ProblemView{
		ContestID: p.ContestID,
		Index:     p.Index,
		Name:      p.Name,
		Rating:    p.Rating,
		URL:       s.judge.ProblemURL(p),
	}
}

// HandleCommand decodes one frame and dispatches it. Frames that cannot be
// parsed are logged and dropped without a reply.
func (s *matchService) HandleCommand(ctx context.Context, client *realtime.Client, raw []byte) {
	cmd, err := realtime.ParseCommand(raw)
	if err != nil {
		s.logger.Warn("ignoring websocket frame",
			slog.String("pair_key", client.Room),
			slog.Int("user_id", client.UserID),
			slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()

	switch c := cmd.(type) {
	case realtime.ReadyCommand:
		s.Ready(ctx, client.Room, client.UserID, c.Handle)
	case realtime.NotReadyCommand:
		s.NotReady(ctx, client.Room, client.UserID)
	case realtime.CheckCommand:
		s.CheckWin(ctx, client.Room, client.UserID)
	case realtime.PingCommand:
		s.send(client.Room, client.UserID, realtime.Pong{
			Timestamp:         time.Now().UnixMilli(),
			OriginalTimestamp: c.Timestamp,
		})
	case realtime.PongCommand:
		// ответ на серверный PING, только подтверждает живость
	}
}

// loadSession reports SESSION_NOT_FOUND (or INTERNAL_ERROR) to the user on failure.
func (s *matchService) loadSession(ctx context.Context, pairKey string, userID int, op string) (*models.MatchSession, bool) {
	session, err := s.sessions.Get(ctx, pairKey)
	if err != nil {
		code := realtime.CodeInternalError
		if errors.Is(err, ErrSessionNotFound) {
			code = realtime.CodeSessionNotFound
		}
		s.sendError(pairKey, userID, code, op, err)
		return nil, false
	}
	return session, true
}

func (s *matchService) Ready(ctx context.Context, pairKey string, userID int, handle string) {
	unlock := s.locks.Lock(pairKey)
	defer unlock()

	session, ok := s.loadSession(ctx, pairKey, userID, "ready")
	if !ok {
		return
	}
	switch session.State() {
	case models.SessionFinished:
		s.sendError(pairKey, userID, realtime.CodeMatchAlreadyFinished, "ready", nil)
		return
	case models.SessionActive:
		s.sendError(pairKey, userID, realtime.CodeMatchAlreadyActive, "ready", nil)
		return
	}

	user, ok := session.User(userID)
	if !ok {
		s.sendError(pairKey, userID, realtime.CodeUserNotFound, "ready", nil)
		return
	}

	if user.HandleValue() != handle {
		solved, err := s.judge.SolvedProblems(ctx, handle)
		if err != nil {
			s.sendError(pairKey, userID, realtime.CodeSolvedProblemsUpdateFailed, "ready", err)
			return
		}
		if _, err := s.sessions.UpdateSolved(ctx, pairKey, userID, handle, solved); err != nil {
			s.sendError(pairKey, userID, realtime.CodeSolvedProblemsUpdateFailed, "ready", err)
			return
		}
	}

	session, err := s.sessions.SetReady(ctx, pairKey, userID, true)
	if err != nil {
		s.sendError(pairKey, userID, realtime.CodeReadyStatusUpdateFailed, "ready", err)
		return
	}
	s.broadcast(pairKey, realtime.UserReady{PairKey: pairKey, UserID: userID, Handle: handle})

	s.tryStart(ctx, session)
}

// tryStart assigns a problem once both players are ready.
func (s *matchService) tryStart(ctx context.Context, session *models.MatchSession) {
	if !session.AllReady() {
		return
	}
	pairKey := session.PairKey

	problem, err := s.judge.FindFairProblem(session.Users[0].SolvedSet(), session.Users[1].SolvedSet())
	switch {
	case errors.Is(err, judge.ErrCatalogNotLoaded):
		s.judge.WarmUp()
		s.broadcastError(pairKey, realtime.CodeProblemsNotLoaded, "start", nil)
		return
	case errors.Is(err, judge.ErrNoFairProblem):
		s.broadcastError(pairKey, realtime.CodeNoFairProblemFound, "start", nil)
		return
	case err != nil:
		s.broadcastError(pairKey, realtime.CodeMatchStartFailed, "start", err)
		return
	}

	if _, err := s.sessions.SetProblem(ctx, pairKey, &problem); err != nil {
		s.judge.Release(problem.Key())
		s.logger.Error("failed to assign problem", slog.String("pair_key", pairKey), slog.Any("error", err))
		s.broadcastError(pairKey, realtime.CodeMatchStartFailed, "start", err)
		return
	}

	s.logger.Info("match started",
		slog.String("pair_key", pairKey),
		slog.String("problem", problem.Key()))
	s.broadcast(pairKey, realtime.MatchStart{PairKey: pairKey, Problem: s.problemView(problem)})
}

func (s *matchService) NotReady(ctx context.Context, pairKey string, userID int) {
	unlock := s.locks.Lock(pairKey)
	defer unlock()

	session, ok := s.loadSession(ctx, pairKey, userID, "not_ready")
	if !ok {
		return
	}
	switch session.State() {
	case models.SessionFinished:
		s.sendError(pairKey, userID, realtime.CodeMatchAlreadyFinished, "not_ready", nil)
		return
	case models.SessionActive:
		s.sendError(pairKey, userID, realtime.CodeMatchAlreadyActive, "not_ready", nil)
		return
	}

	if _, err := s.sessions.SetReady(ctx, pairKey, userID, false); err != nil {
		code := realtime.CodeReadyStatusUpdateFailed
		if errors.Is(err, ErrUserNotInMatch) {
			code = realtime.CodeUserNotFound
		}
		s.sendError(pairKey, userID, code, "not_ready", err)
		return
	}
	s.broadcast(pairKey, realtime.UserNotReady{PairKey: pairKey, UserID: userID})
}

// CheckWin asks the judge whether the user solved the assigned problem and,
// if so, records the result and tears the session down.
func (s *matchService) CheckWin(ctx context.Context, pairKey string, userID int) {
	unlock := s.locks.Lock(pairKey)
	defer unlock()

	session, ok := s.loadSession(ctx, pairKey, userID, "check")
	if !ok {
		return
	}
	switch session.State() {
	case models.SessionFinished:
		s.sendError(pairKey, userID, realtime.CodeMatchAlreadyFinished, "check", nil)
		return
	case models.SessionWaiting:
		s.sendError(pairKey, userID, realtime.CodeMatchNotActive, "check", nil)
		return
	}

	user, ok := session.User(userID)
	if !ok || user.Handle == nil {
		s.sendError(pairKey, userID, realtime.CodeUserNotFound, "check", nil)
		return
	}
	opponent, ok := session.Opponent(userID)
	if !ok {
		s.sendError(pairKey, userID, realtime.CodeUserNotFound, "check", nil)
		return
	}

	solved, err := s.judge.HasSolved(ctx, *user.Handle, *session.CurrentProblem)
	if err != nil {
		s.sendError(pairKey, userID, realtime.CodeProblemVerificationFailed, "check", err)
		return
	}
	if !solved {
		s.send(pairKey, userID, realtime.Continue{PairKey: pairKey, UserID: userID})
		return
	}

	_, err = s.recorder.RecordResult(ctx, RecordResultInput{
		TournamentID: session.TournamentID,
		LocalID:      userID,
		VisitantID:   opponent.UserID,
		WinnerID:     userID,
	})
	switch {
	case errors.Is(err, ErrMatchNotPending):
		// Пара уже решена в сетке (например, через POST /results): повторять бессмысленно.
		s.logger.Warn("match already resolved in bracket, closing session",
			slog.String("pair_key", pairKey),
			slog.Int("tournament_id", session.TournamentID))
		s.broadcastError(pairKey, realtime.CodeMatchAlreadyFinished, "check", err)
		s.teardown(ctx, pairKey, userID, opponent.UserID)
		return
	case err != nil:
		s.logger.Error("failed to record match result",
			slog.String("pair_key", pairKey),
			slog.Int("winner_id", userID),
			slog.Any("error", err))
		s.sendError(pairKey, userID, realtime.CodeInternalError, "check", err)
		return
	}

	s.send(pairKey, userID, realtime.Winner{PairKey: pairKey, UserID: userID})
	s.send(pairKey, opponent.UserID, realtime.Loser{
		PairKey:  pairKey,
		UserID:   opponent.UserID,
		Opponent: realtime.OpponentView{UserID: userID, Handle: user.Handle},
	})
	s.teardown(ctx, pairKey, userID, opponent.UserID)

	s.logger.Info("match finished",
		slog.String("pair_key", pairKey),
		slog.Int("winner_id", userID),
		slog.Int("loser_id", opponent.UserID))
}

// teardown finishes the session, drops both players and removes the session.
func (s *matchService) teardown(ctx context.Context, pairKey string, userIDs ...int) {
	if _, err := s.sessions.Finish(ctx, pairKey); err != nil {
		s.logger.Error("failed to mark session finished", slog.String("pair_key", pairKey), slog.Any("error", err))
	}
	for _, id := range userIDs {
		s.messenger.CloseUser(pairKey, id)
	}
	if err := s.sessions.Delete(ctx, pairKey); err != nil {
		s.logger.Error("failed to delete finished session", slog.String("pair_key", pairKey), slog.Any("error", err))
	}
}

// Disconnect only drops the connection. The session survives so the player
// can reconnect and resume.
func (s *matchService) Disconnect(ctx context.Context, client *realtime.Client) {
	unlock := s.locks.Lock(client.Room)
	defer unlock()

	if !s.messenger.Unregister(client) {
		return
	}
	if s.messenger.IsConnected(client.Room, client.UserID) {
		return
	}
	s.broadcast(client.Room, realtime.UserLeft{PairKey: client.Room, UserID: client.UserID})
	s.logger.Info("player disconnected", slog.String("pair_key", client.Room), slog.Int("user_id", client.UserID))
}

// ReapAbandonedSessions deletes unfinished sessions that have not changed
// for IdleTTL and are missing at least one live player. A player still
// connected gets MATCH_CANCELLED and is disconnected.
func (s *matchService) ReapAbandonedSessions(ctx context.Context, now time.Time) (int, error) {
	if s.cfg.IdleTTL <= 0 {
		return 0, nil
	}
	sessions, err := s.sessions.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, candidate := range sessions {
		if s.reap(ctx, candidate.PairKey, now) {
			reaped++
		}
	}
	if reaped > 0 {
		s.logger.Info("abandoned sessions reaped", slog.Int("count", reaped))
	}
	return reaped, nil
}

func (s *matchService) reap(ctx context.Context, pairKey string, now time.Time) bool {
	unlock := s.locks.Lock(pairKey)
	defer unlock()

	// Перечитываем под локом: сессия могла обновиться после ListUnfinished.
	session, err := s.sessions.Get(ctx, pairKey)
	if err != nil {
		return false
	}
	if session.IsFinished || now.Sub(session.UpdatedAt) < s.cfg.IdleTTL {
		return false
	}

	connected := make([]int, 0, len(session.Users))
	for _, u := range session.Users {
		if s.messenger.IsConnected(pairKey, u.UserID) {
			connected = append(connected, u.UserID)
		}
	}
	if len(session.Users) == models.MaxSessionUsers && len(connected) == models.MaxSessionUsers {
		return false
	}

	if len(connected) > 0 {
		s.broadcast(pairKey, realtime.MatchCancelled{PairKey: pairKey, Reason: cancelReasonIdle})
		for _, id := range connected {
			s.messenger.CloseUser(pairKey, id)
		}
	}
	if err := s.sessions.Delete(ctx, pairKey); err != nil {
		s.logger.Error("failed to delete abandoned session", slog.String("pair_key", pairKey), slog.Any("error", err))
		return false
	}
	s.logger.Info("session reaped",
		slog.String("pair_key", pairKey),
		slog.Int("tournament_id", session.TournamentID),
		slog.Duration("idle", now.Sub(session.UpdatedAt)))
	return true
}

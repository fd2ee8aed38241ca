package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Dosada05/duel-arena/brackets"
	"github.com/Dosada05/duel-arena/db/dbtest"
	"github.com/Dosada05/duel-arena/models"
	"github.com/Dosada05/duel-arena/realtime"
	"github.com/Dosada05/duel-arena/repositories"
	"github.com/Dosada05/duel-arena/storage"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

type recordingBroadcaster struct {
	mu       sync.Mutex
	rooms    []string
	messages []realtime.Message
}

func (b *recordingBroadcaster) BroadcastToRoom(roomID string, msg realtime.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms = append(b.rooms, roomID)
	b.messages = append(b.messages, msg)
	return 1
}

type recordingArchiver struct {
	snapshots []storage.BracketSnapshot
	err       error
}

func (a *recordingArchiver) Archive(ctx context.Context, snapshot storage.BracketSnapshot) (*storage.UploadResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.snapshots = append(a.snapshots, snapshot)
	key := storage.BracketArchiveKey(snapshot.TournamentID)
	return &storage.UploadResult{Key: key, Location: a.URL(snapshot.TournamentID)}, nil
}

func (a *recordingArchiver) Remove(ctx context.Context, tournamentID int) error { return nil }

func (a *recordingArchiver) URL(tournamentID int) string {
	return "https://cdn.example.com/" + storage.BracketArchiveKey(tournamentID)
}

// failingResultRepo fails inserts while keeping reads and deletes real.
type failingResultRepo struct {
	repositories.ResultRepository
	failCreate bool
	failDelete bool
}

func (r *failingResultRepo) Create(ctx context.Context, exec repositories.SQLExecutor, result *models.MatchResult) error {
	if r.failCreate {
		return errInjected
	}
	return r.ResultRepository.Create(ctx, exec, result)
}

func (r *failingResultRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int64) error {
	if r.failDelete {
		return errInjected
	}
	return r.ResultRepository.Delete(ctx, exec, id)
}

type failingPersistBrackets struct {
	BracketService
}

func (b *failingPersistBrackets) Persist(ctx context.Context, tournamentID int, tree *brackets.Node) error {
	return errInjected
}

type resultFixture struct {
	db             *sqlx.DB
	brackets       BracketService
	results        *failingResultRepo
	participations repositories.ParticipationRepository
	broadcaster    *recordingBroadcaster
	archiver       *recordingArchiver
	service        ResultService
}

// newResultFixture seeds tournament 100 with the bracket [5, 9] vs [2, 7].
func newResultFixture(t *testing.T) *resultFixture {
	t.Helper()
	database := dbtest.NewSQLite(t)
	store := dbtest.NewDocumentStore(t)
	dbtest.CheckIn(t, database, 100, 2, 5, 7, 9)

	bracketRepo := repositories.NewBracketRepository(store)
	require.NoError(t, bracketRepo.Create(context.Background(), newRecord(100, brackets.Build([]int{5, 9, 2, 7}))))

	f := &resultFixture{
		db:             database,
		results:        &failingResultRepo{ResultRepository: repositories.NewResultRepository(database)},
		participations: repositories.NewParticipationRepository(database),
		broadcaster:    &recordingBroadcaster{},
		archiver:       &recordingArchiver{},
	}
	svc, err := NewBracketService(bracketRepo, f.participations, f.archiver, 5, discardLogger())
	require.NoError(t, err)
	f.brackets = svc
	f.service = f.build(svc)
	return f
}

func (f *resultFixture) build(bracketService BracketService) ResultService {
	return NewResultService(f.db, bracketService, f.results, f.participations, f.broadcaster, f.archiver, discardLogger())
}

func (f *resultFixture) rows(t *testing.T) []*models.MatchResult {
	t.Helper()
	rows, err := f.service.ListByTournament(context.Background(), 100)
	require.NoError(t, err)
	return rows
}

func TestResultService_RecordResult(t *testing.T) {
	f := newResultFixture(t)
	ctx := context.Background()

	result, err := f.service.RecordResult(ctx, RecordResultInput{TournamentID: 100, LocalID: 5, VisitantID: 9, WinnerID: 5})
	require.NoError(t, err)
	assert.NotZero(t, result.ID)

	tree, err := f.brackets.GetByTournament(ctx, 100)
	require.NoError(t, err)
	require.True(t, tree.Left.IsResolved())
	assert.Equal(t, 5, *tree.Left.ParticipantID)
	assert.Len(t, f.rows(t), 1)

	require.Len(t, f.broadcaster.messages, 1)
	assert.Equal(t, realtime.TournamentRoom(100), f.broadcaster.rooms[0])
	update, ok := f.broadcaster.messages[0].Data.(realtime.BracketUpdated)
	require.True(t, ok)
	assert.Nil(t, update.WinnerID)
	assert.Empty(t, f.archiver.snapshots, "running tournaments are not archived")

	_, err = f.service.RecordResult(ctx, RecordResultInput{TournamentID: 100, LocalID: 9, VisitantID: 5, WinnerID: 5})
	assert.ErrorIs(t, err, ErrMatchNotPending)
	assert.Len(t, f.rows(t), 1)
}

func TestResultService_RecordResultValidation(t *testing.T) {
	f := newResultFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RecordResultInput
		want  error
	}{
		{"self match", RecordResultInput{TournamentID: 100, LocalID: 5, VisitantID: 5, WinnerID: 5}, ErrSelfMatch},
		{"winner not playing", RecordResultInput{TournamentID: 100, LocalID: 5, VisitantID: 9, WinnerID: 2}, ErrWinnerNotPlayer},
		{"missing tournament", RecordResultInput{LocalID: 5, VisitantID: 9, WinnerID: 5}, ErrValidationFailed},
		{"not paired", RecordResultInput{TournamentID: 100, LocalID: 5, VisitantID: 2, WinnerID: 5}, ErrMatchNotPending},
		{"no bracket", RecordResultInput{TournamentID: 404, LocalID: 5, VisitantID: 9, WinnerID: 5}, brackets.ErrEmptyBracket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.RecordResult(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.rows(t))
	assert.Empty(t, f.broadcaster.messages)
}

func TestResultService_InsertFailureLeavesBracketUntouched(t *testing.T) {
	f := newResultFixture(t)
	ctx := context.Background()
	f.results.failCreate = true

	_, err := f.service.RecordResult(ctx, RecordResultInput{TournamentID: 100, LocalID: 5, VisitantID: 9, WinnerID: 5})
	require.ErrorIs(t, err, errInjected)

	tree, err := f.brackets.GetByTournament(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, brackets.Build([]int{5, 9, 2, 7}), tree)
	assert.Empty(t, f.rows(t))
	assert.Empty(t, f.broadcaster.messages)
}

func TestResultService_PersistFailureDeletesResultRow(t *testing.T) {
	f := newResultFixture(t)
	ctx := context.Background()
	svc := f.build(&failingPersistBrackets{BracketService: f.brackets})

	_, err := svc.RecordResult(ctx, RecordResultInput{TournamentID: 100, LocalID: 2, VisitantID: 7, WinnerID: 7})
	require.ErrorIs(t, err, errInjected)

	assert.Empty(t, f.rows(t), "the compensating delete must remove the inserted row")
	tree, err := f.brackets.GetByTournament(ctx, 100)
	require.NoError(t, err)
	assert.False(t, tree.Right.IsResolved())
}

func TestResultService_PersistAndRollbackFailureKeepsError(t *testing.T) {
	f := newResultFixture(t)
	f.results.failDelete = true
	svc := f.build(&failingPersistBrackets{BracketService: f.brackets})

	_, err := svc.RecordResult(context.Background(), RecordResultInput{TournamentID: 100, LocalID: 2, VisitantID: 7, WinnerID: 7})
	require.ErrorIs(t, err, errInjected)
	assert.Len(t, f.rows(t), 1, "orphaned row stays behind when compensation fails")
}

func TestResultService_FinalResultWritesStandings(t *testing.T) {
	f := newResultFixture(t)
	ctx := context.Background()

	_, err := f.service.GetStandings(ctx, 100)
	assert.ErrorIs(t, err, ErrTournamentStillRunning)

	for _, in := range []RecordResultInput{
		{TournamentID: 100, LocalID: 5, VisitantID: 9, WinnerID: 9},
		{TournamentID: 100, LocalID: 2, VisitantID: 7, WinnerID: 2},
		{TournamentID: 100, LocalID: 9, VisitantID: 2, WinnerID: 2},
	} {
		_, err := f.service.RecordResult(ctx, in)
		require.NoError(t, err)
	}

	standings, err := f.service.GetStandings(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []brackets.Placement{
		{ParticipantID: 2, Wins: 2, Position: 1},
		{ParticipantID: 9, Wins: 1, Position: 2},
		{ParticipantID: 5, Wins: 0, Position: 3},
		{ParticipantID: 7, Wins: 0, Position: 4},
	}, standings)

	participations, err := f.participations.ListByTournament(ctx, 100)
	require.NoError(t, err)
	positions := map[int]int{}
	for _, p := range participations {
		require.NotNil(t, p.Position)
		positions[p.ParticipantID] = *p.Position
	}
	assert.Equal(t, map[int]int{2: 1, 9: 2, 5: 3, 7: 4}, positions)

	require.Len(t, f.archiver.snapshots, 1)
	assert.Equal(t, standings, f.archiver.snapshots[0].Standings)

	last := f.broadcaster.messages[len(f.broadcaster.messages)-1].Data.(realtime.BracketUpdated)
	require.NotNil(t, last.WinnerID)
	assert.Equal(t, 2, *last.WinnerID)

	overview, err := f.service.GetOverview(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, overview.WinnerID)
	assert.Equal(t, 2, *overview.WinnerID)
	assert.Len(t, overview.Results, 3)
	assert.Len(t, overview.Participations, 4)
	assert.Equal(t, standings, overview.Standings)
	assert.Equal(t, "https://cdn.example.com/brackets/tournament-100.json", overview.ArchiveURL)
}

func TestResultService_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newResultFixture(t)
	f.archiver.err = errInjected
	ctx := context.Background()

	for _, in := range []RecordResultInput{
		{TournamentID: 100, LocalID: 5, VisitantID: 9, WinnerID: 5},
		{TournamentID: 100, LocalID: 2, VisitantID: 7, WinnerID: 7},
		{TournamentID: 100, LocalID: 5, VisitantID: 7, WinnerID: 7},
	} {
		_, err := f.service.RecordResult(ctx, in)
		require.NoError(t, err)
	}
	assert.Len(t, f.rows(t), 3)
}

func TestResultService_OverviewOfRunningTournament(t *testing.T) {
	f := newResultFixture(t)

	overview, err := f.service.GetOverview(context.Background(), 100)
	require.NoError(t, err)
	assert.Nil(t, overview.WinnerID)
	assert.Empty(t, overview.Standings)
	assert.Empty(t, overview.ArchiveURL)
	assert.Empty(t, overview.Results)

	_, err = f.service.GetOverview(context.Background(), 404)
	assert.ErrorIs(t, err, ErrBracketNotFound)
}

package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Dorofeev-A/movienight/brackets"
	"github.com/Dorofeev-A/movienight/models"
	"github.com/Dorofeev-A/movienight/repositories"
)

// --- In-memory репозитории для тестов сервисного слоя ---

// fakeTx — no-op транзакция: fake-репозитории игнорируют SQLExecutor.
type fakeTx struct{}

func (fakeTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}

func (fakeTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}

func (fakeTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeDB struct {
	fakeTx
}

func (fakeDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (repositories.Tx, error) {
	return fakeTx{}, nil
}

type fakeRoomRepo struct {
	mu     sync.Mutex
	nextID int
	rooms  map[int]*models.Room
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[int]*models.Room)}
}

func (f *fakeRoomRepo) Create(ctx context.Context, exec repositories.SQLExecutor, room *models.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.Code == room.Code {
			return repositories.ErrRoomCodeConflict
		}
	}
	f.nextID++
	room.ID = f.nextID
	room.CreatedAt = time.Now()
	stored := *room
	f.rooms[room.ID] = &stored
	return nil
}

func (f *fakeRoomRepo) GetByID(ctx context.Context, id int) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, repositories.ErrRoomNotFound
	}
	copied := *room
	return &copied, nil
}

func (f *fakeRoomRepo) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.rooms {
		if room.Code == code {
			copied := *room
			return &copied, nil
		}
	}
	return nil, repositories.ErrRoomNotFound
}

func (f *fakeRoomRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.RoomStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return repositories.ErrRoomNotFound
	}
	room.Status = status
	return nil
}

func (f *fakeRoomRepo) MarkStarted(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return repositories.ErrRoomNotFound
	}
	now := time.Now()
	room.Status = models.RoomStatusActive
	room.StartedAt = &now
	return nil
}

func (f *fakeRoomRepo) MarkCompleted(ctx context.Context, exec repositories.SQLExecutor, id int, winner models.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return repositories.ErrRoomNotFound
	}
	now := time.Now()
	room.Status = models.RoomStatusCompleted
	room.CompletedAt = &now
	room.WinnerCandidateID = &winner.ID
	title := winner.Title
	room.WinnerTitle = &title
	room.WinnerPosterKey = winner.PosterKey
	return nil
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	nextID       int
	participants []*models.Participant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{}
}

func (f *fakeParticipantRepo) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.participants {
		if existing.RoomID == p.RoomID && existing.UserID == p.UserID {
			return repositories.ErrParticipantConflict
		}
	}
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	p.LastActionAt = time.Now()
	stored := *p
	f.participants = append(f.participants, &stored)
	return nil
}

func (f *fakeParticipantRepo) GetByRoomAndUser(ctx context.Context, roomID, userID int) (*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.RoomID == roomID && p.UserID == userID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (f *fakeParticipantRepo) ListByRoom(ctx context.Context, roomID int) ([]*models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Participant
	for _, p := range f.participants {
		if p.RoomID == roomID {
			copied := *p
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (f *fakeParticipantRepo) SetActive(ctx context.Context, exec repositories.SQLExecutor, roomID, userID int, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.RoomID == roomID && p.UserID == userID {
			p.IsActive = active
			return nil
		}
	}
	return repositories.ErrParticipantNotFound
}

func (f *fakeParticipantRepo) TouchLastAction(ctx context.Context, exec repositories.SQLExecutor, roomID, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.RoomID == roomID && p.UserID == userID {
			p.LastActionAt = time.Now()
			return nil
		}
	}
	return repositories.ErrParticipantNotFound
}

type fakeStateRepo struct {
	mu     sync.Mutex
	states map[int]*models.TournamentState
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[int]*models.TournamentState)}
}

func (f *fakeStateRepo) Get(ctx context.Context, roomID int) (*models.TournamentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[roomID]
	if !ok {
		return nil, repositories.ErrStateNotFound
	}
	return state.Clone(), nil
}

// Save повторяет семантику upsert'а с инкрементом версии на стороне БД.
func (f *fakeStateRepo) Save(ctx context.Context, exec repositories.SQLExecutor, state *models.TournamentState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	version := 1
	if existing, ok := f.states[state.RoomID]; ok {
		version = existing.Version + 1
	}
	stored := state.Clone()
	stored.Version = version
	stored.UpdatedAt = time.Now()
	f.states[state.RoomID] = stored
	state.Version = version
	state.UpdatedAt = stored.UpdatedAt
	return nil
}

type fakePickRepo struct {
	mu     sync.Mutex
	nextID int64
	picks  []models.Pick
}

func newFakePickRepo() *fakePickRepo {
	return &fakePickRepo{}
}

func (f *fakePickRepo) Create(ctx context.Context, exec repositories.SQLExecutor, pick *models.Pick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.picks {
		if p.RoomID == pick.RoomID && p.UserID == pick.UserID && p.MatchUID == pick.MatchUID {
			return repositories.ErrPickDuplicate
		}
	}
	f.nextID++
	pick.ID = f.nextID
	pick.CreatedAt = time.Now()
	f.picks = append(f.picks, *pick)
	return nil
}

func (f *fakePickRepo) ListByRoom(ctx context.Context, roomID int) ([]models.Pick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []models.Pick
	for _, p := range f.picks {
		if p.RoomID == roomID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (f *fakePickRepo) CountByUser(ctx context.Context, roomID, userID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.picks {
		if p.RoomID == roomID && p.UserID == userID {
			n++
		}
	}
	return n, nil
}

type fakeActionRepo struct {
	mu      sync.Mutex
	records map[string]*models.ActionRecord
}

func newFakeActionRepo() *fakeActionRepo {
	return &fakeActionRepo{records: make(map[string]*models.ActionRecord)}
}

func (f *fakeActionRepo) Create(ctx context.Context, exec repositories.SQLExecutor, record *models.ActionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record.CreatedAt = time.Now()
	stored := *record
	f.records[record.ID] = &stored
	return nil
}

func (f *fakeActionRepo) UpdateOutcome(ctx context.Context, id string, outcome models.ActionOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return repositories.ErrActionRecordNotFound
	}
	record.Outcome = outcome
	return nil
}

func (f *fakeActionRepo) FindRecentSuccessByKey(ctx context.Context, roomID, userID int, key string, since time.Time) (*models.ActionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.RoomID == roomID && r.UserID == userID &&
			r.IdempotencyKey != nil && *r.IdempotencyKey == key &&
			r.Outcome == models.OutcomeSuccess && r.CreatedAt.After(since) {
			copied := *r
			return &copied, nil
		}
	}
	return nil, repositories.ErrActionRecordNotFound
}

func (f *fakeActionRepo) outcomes() map[models.ActionOutcome]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.ActionOutcome]int)
	for _, r := range f.records {
		counts[r.Outcome]++
	}
	return counts
}

type fakeWatchlistRepo struct {
	mu      sync.Mutex
	lists   map[int][]models.Candidate
	pending map[string]int
}

func newFakeWatchlistRepo() *fakeWatchlistRepo {
	return &fakeWatchlistRepo{
		lists:   make(map[int][]models.Candidate),
		pending: make(map[string]int),
	}
}

func (f *fakeWatchlistRepo) seed(userID int, list []models.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[userID] = append([]models.Candidate(nil), list...)
}

func (f *fakeWatchlistRepo) ListUnwatchedByUser(ctx context.Context, userID int) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Candidate(nil), f.lists[userID]...), nil
}

func (f *fakeWatchlistRepo) AddPendingRating(ctx context.Context, exec repositories.SQLExecutor, userID int, candidate models.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%d", userID, candidate.ID)
	// ON CONFLICT DO NOTHING: запись появляется не больше одного раза.
	if f.pending[key] == 0 {
		f.pending[key] = 1
	}
	return nil
}

func (f *fakeWatchlistRepo) pendingCount(userID int, candidateID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[fmt.Sprintf("%d:%d", userID, candidateID)]
}

type fakeRatingRepo struct {
	mu      sync.Mutex
	ratings map[string]*models.PreferenceRating
}

func newFakeRatingRepo() *fakeRatingRepo {
	return &fakeRatingRepo{ratings: make(map[string]*models.PreferenceRating)}
}

func ratingKey(userID int, candidateID int64) string {
	return fmt.Sprintf("%d:%d", userID, candidateID)
}

func (f *fakeRatingRepo) Get(ctx context.Context, userID int, candidateID int64) (*models.PreferenceRating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rating, ok := f.ratings[ratingKey(userID, candidateID)]
	if !ok {
		return nil, nil
	}
	copied := *rating
	return &copied, nil
}

func (f *fakeRatingRepo) Upsert(ctx context.Context, rating *models.PreferenceRating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *rating
	f.ratings[ratingKey(rating.UserID, rating.CandidateID)] = &copied
	return nil
}

// --- Сборка окружения ---

const (
	testOwnerID = 10
	testGuestID = 20
)

type testEnv struct {
	roomRepo        *fakeRoomRepo
	participantRepo *fakeParticipantRepo
	stateRepo       *fakeStateRepo
	pickRepo        *fakePickRepo
	actionRepo      *fakeActionRepo
	watchlistRepo   *fakeWatchlistRepo
	ratingRepo      *fakeRatingRepo

	rooms   RoomService
	states  StateService
	actions ActionService
	ratings RatingService
	locker  *RoomLocker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := brackets.NewHub()

	env := &testEnv{
		roomRepo:        newFakeRoomRepo(),
		participantRepo: newFakeParticipantRepo(),
		stateRepo:       newFakeStateRepo(),
		pickRepo:        newFakePickRepo(),
		actionRepo:      newFakeActionRepo(),
		watchlistRepo:   newFakeWatchlistRepo(),
		ratingRepo:      newFakeRatingRepo(),
	}

	env.locker = NewRoomLocker(logger)
	env.ratings = NewRatingService(env.ratingRepo, logger)
	env.rooms = NewRoomService(fakeDB{}, env.roomRepo, env.participantRepo, nil, hub, logger)
	env.states = NewStateService(fakeDB{}, env.roomRepo, env.participantRepo, env.stateRepo, env.pickRepo, hub, nil, logger)
	env.actions = NewActionService(
		fakeDB{},
		env.roomRepo,
		env.participantRepo,
		env.stateRepo,
		env.pickRepo,
		env.actionRepo,
		env.watchlistRepo,
		env.states,
		env.ratings,
		env.locker,
		logger,
	)
	return env
}

// roomWithTwoParticipants создаёт комнату с владельцем и гостем и заполняет
// их списки четырьмя общими кандидатами (сетка на два раунда без добивки).
func (env *testEnv) roomWithTwoParticipants(t *testing.T) *models.Room {
	t.Helper()
	ctx := context.Background()

	room, err := env.rooms.CreateRoom(ctx, testOwnerID)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := env.rooms.JoinRoom(ctx, room.Code, testGuestID); err != nil {
		t.Fatalf("join room: %v", err)
	}

	list := []models.Candidate{
		{ID: 101, Title: "Alien"},
		{ID: 102, Title: "Heat"},
		{ID: 103, Title: "Whiplash"},
		{ID: 104, Title: "Paprika"},
	}
	env.watchlistRepo.seed(testOwnerID, list)
	env.watchlistRepo.seed(testGuestID, list)
	return room
}

func (env *testEnv) startTournament(t *testing.T, room *models.Room) *models.TournamentState {
	t.Helper()
	result, err := env.actions.Process(context.Background(), room.Code, testOwnerID, &ActionRequest{Action: models.ActionStart})
	if err != nil {
		t.Fatalf("start tournament: %v", err)
	}
	if !result.Success || result.Ignored {
		t.Fatalf("start tournament: unexpected result %+v", result)
	}
	state, err := env.stateRepo.Get(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	return state
}

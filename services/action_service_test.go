package services

import (
	"context"
	"sync"
	"testing"

	"github.com/Dorofeev-A/movienight/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTournament(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)
	ctx := context.Background()

	result, err := env.actions.Process(ctx, room.Code, testOwnerID, &ActionRequest{Action: models.ActionStart})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Ignored)

	updated, err := env.roomRepo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, updated.Status)
	assert.NotNil(t, updated.StartedAt)

	state, err := env.stateRepo.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentRound)
	assert.Equal(t, 2, state.TotalRounds)
	assert.Equal(t, 1, state.Version)
	assert.Len(t, state.Pool, 4)
	assert.Len(t, state.Matches, 2)

	// Повторный start уже активного турнира игнорируется и не пересоздаёт сетку.
	repeat, err := env.actions.Process(ctx, room.Code, testOwnerID, &ActionRequest{Action: models.ActionStart})
	require.NoError(t, err)
	assert.True(t, repeat.Ignored)

	again, err := env.stateRepo.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, state.ShuffleSeed, again.ShuffleSeed)
	assert.Equal(t, state.Matches, again.Matches)
}

func TestStartRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)

	_, err := env.actions.Process(context.Background(), room.Code, testGuestID, &ActionRequest{Action: models.ActionStart})
	assert.ErrorIs(t, err, ErrNotRoomOwner)
}

func TestStartRequiresTwoActiveParticipants(t *testing.T) {
	env := newTestEnv(t)
	room, err := env.rooms.CreateRoom(context.Background(), testOwnerID)
	require.NoError(t, err)

	_, err = env.actions.Process(context.Background(), room.Code, testOwnerID, &ActionRequest{Action: models.ActionStart})
	assert.ErrorIs(t, err, ErrNotEnoughParticipants)
}

func TestPickBeforeStartRejected(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)

	_, err := env.actions.Process(context.Background(), room.Code, testOwnerID, &ActionRequest{
		Action:  models.ActionPick,
		Payload: &ActionPayload{MatchID: "R1M1", SelectedCandidateID: 101},
	})
	assert.ErrorIs(t, err, ErrTournamentNotStarted)
}

func TestPickValidation(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)
	state := env.startTournament(t, room)
	ctx := context.Background()

	_, err := env.actions.Process(ctx, room.Code, testOwnerID, &ActionRequest{Action: models.ActionPick})
	assert.ErrorIs(t, err, ErrPickPayloadRequired)

	_, err = env.actions.Process(ctx, room.Code, testOwnerID, &ActionRequest{
		Action:  models.ActionPick,
		Payload: &ActionPayload{MatchID: "R9M9", SelectedCandidateID: state.Matches[0].A.ID},
	})
	assert.ErrorIs(t, err, ErrWrongMatch)

	_, err = env.actions.Process(ctx, room.Code, testOwnerID, &ActionRequest{
		Action:  models.ActionPick,
		Payload: &ActionPayload{MatchID: state.Matches[0].UID, SelectedCandidateID: 999},
	})
	assert.ErrorIs(t, err, ErrCandidateNotInMatch)

	// Голос вперёд по раунду, минуя текущий матч, отклоняется.
	_, err = env.actions.Process(ctx, room.Code, testOwnerID, &ActionRequest{
		Action:  models.ActionPick,
		Payload: &ActionPayload{MatchID: state.Matches[1].UID, SelectedCandidateID: state.Matches[1].A.ID},
	})
	assert.ErrorIs(t, err, ErrWrongMatch)
}

func TestPickDuplicateIgnored(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)
	state := env.startTournament(t, room)
	ctx := context.Background()

	req := &ActionRequest{
		Action:  models.ActionPick,
		Payload: &ActionPayload{MatchID: state.Matches[0].UID, SelectedCandidateID: state.Matches[0].A.ID},
	}

	first, err := env.actions.Process(ctx, room.Code, testOwnerID, req)
	require.NoError(t, err)
	assert.False(t, first.Ignored)

	second, err := env.actions.Process(ctx, room.Code, testOwnerID, req)
	require.NoError(t, err)
	assert.True(t, second.Ignored)

	count, err := env.pickRepo.CountByUser(ctx, room.ID, testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// Клиент не дождался ответа на последний голос раунда, раунд продвинулся,
// клиент повторил запрос. Повтор должен быть проигнорирован, а не отклонён.
func TestPickRetryAfterRoundAdvanceIgnored(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)
	state := env.startTournament(t, room)
	ctx := context.Background()

	// Оба участника закрывают первый раунд; гость голосует последним.
	var lastReq *ActionRequest
	for _, userID := range []int{testOwnerID, testGuestID} {
		for _, m := range state.Matches {
			req := &ActionRequest{
				Action:  models.ActionPick,
				Payload: &ActionPayload{MatchID: m.UID, SelectedCandidateID: m.A.ID},
			}
			_, err := env.actions.Process(ctx, room.Code, userID, req)
			require.NoError(t, err)
			lastReq = req
		}
	}

	advanced, err := env.stateRepo.Get(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, 2, advanced.CurrentRound, "first round must be closed before the retry")

	retry, err := env.actions.Process(ctx, room.Code, testGuestID, lastReq)
	require.NoError(t, err)
	assert.True(t, retry.Success)
	assert.True(t, retry.Ignored)

	count, err := env.pickRepo.CountByUser(ctx, room.ID, testGuestID)
	require.NoError(t, err)
	assert.Equal(t, len(state.Matches), count, "retry must not add a pick")
}

func TestConcurrentDuplicatePicks(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)
	state := env.startTournament(t, room)
	ctx := context.Background()

	req := &ActionRequest{
		Action:  models.ActionPick,
		Payload: &ActionPayload{MatchID: state.Matches[0].UID, SelectedCandidateID: state.Matches[0].A.ID},
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.actions.Process(ctx, room.Code, testOwnerID, req)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	count, err := env.pickRepo.CountByUser(ctx, room.ID, testOwnerID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "unique index admits exactly one pick per match")
}

func TestIdempotencyKeyReplay(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)
	ctx := context.Background()
	key := "req-42"

	req := &ActionRequest{Action: models.ActionExtend, IdempotencyKey: &key}

	first, err := env.actions.Process(ctx, room.Code, testOwnerID, req)
	require.NoError(t, err)
	assert.False(t, first.Ignored)

	replay, err := env.actions.Process(ctx, room.Code, testOwnerID, req)
	require.NoError(t, err)
	assert.True(t, replay.Ignored)
	assert.NotNil(t, replay.State)

	// Повтор обслуживается до записи нового ActionRecord: в журнале ровно
	// одна успешная запись с этим ключом.
	outcomes := env.actionRepo.outcomes()
	assert.Equal(t, 1, outcomes[models.OutcomeSuccess])
}

func TestLeaveAbandonsActiveRoom(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)
	env.startTournament(t, room)
	ctx := context.Background()

	result, err := env.actions.Process(ctx, room.Code, testGuestID, &ActionRequest{Action: models.ActionLeave})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, ScreenError, result.State.Screen)

	updated, err := env.roomRepo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusAbandoned, updated.Status)

	// Действия в брошенной комнате отклоняются.
	_, err = env.actions.Process(ctx, room.Code, testOwnerID, &ActionRequest{
		Action:  models.ActionPick,
		Payload: &ActionPayload{MatchID: "R1M1", SelectedCandidateID: 101},
	})
	assert.ErrorIs(t, err, ErrRoomAbandoned)

	// Повторный leave — no-op.
	repeat, err := env.actions.Process(ctx, room.Code, testGuestID, &ActionRequest{Action: models.ActionLeave})
	require.NoError(t, err)
	assert.True(t, repeat.Ignored)
}

func TestLeaveFromWaitingRoomKeepsItJoinable(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)
	ctx := context.Background()

	_, err := env.actions.Process(ctx, room.Code, testGuestID, &ActionRequest{Action: models.ActionLeave})
	require.NoError(t, err)

	updated, err := env.roomRepo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusWaiting, updated.Status, "one active participant keeps a waiting room alive")
}

func TestExtendTouchesParticipant(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)
	ctx := context.Background()

	before, err := env.participantRepo.GetByRoomAndUser(ctx, room.ID, testGuestID)
	require.NoError(t, err)

	result, err := env.actions.Process(ctx, room.Code, testGuestID, &ActionRequest{Action: models.ActionExtend})
	require.NoError(t, err)
	assert.True(t, result.Success)

	after, err := env.participantRepo.GetByRoomAndUser(ctx, room.ID, testGuestID)
	require.NoError(t, err)
	assert.False(t, after.LastActionAt.Before(before.LastActionAt))
}

// Полный сценарий: два участника доигрывают турнир на 4 кандидата до конца.
func TestTournamentPlayedToCompletion(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)
	env.startTournament(t, room)
	ctx := context.Background()

	pickAll := func(userID int) {
		for {
			view, err := env.states.GetPersonalizedState(ctx, room.ID, userID)
			require.NoError(t, err)
			if view.Tournament == nil || view.Tournament.CurrentMatch == nil {
				return
			}
			match := view.Tournament.CurrentMatch
			result, err := env.actions.Process(ctx, room.Code, userID, &ActionRequest{
				Action:  models.ActionPick,
				Payload: &ActionPayload{MatchID: match.UID, SelectedCandidateID: match.A.ID},
			})
			require.NoError(t, err)
			require.True(t, result.Success)
		}
	}

	// Участники голосуют по очереди, пока у обоих не кончатся матчи.
	for i := 0; i < 4; i++ {
		pickAll(testOwnerID)
		pickAll(testGuestID)
	}

	updated, err := env.roomRepo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoomStatusCompleted, updated.Status)
	require.NotNil(t, updated.WinnerCandidateID)

	state, err := env.stateRepo.Get(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, state.Winner)
	assert.Equal(t, models.PhaseCompleted, state.Phase)
	assert.Equal(t, *updated.WinnerCandidateID, state.Winner.ID)

	// Победитель добавлен в списки обоих участников ровно один раз.
	assert.Equal(t, 1, env.watchlistRepo.pendingCount(testOwnerID, state.Winner.ID))
	assert.Equal(t, 1, env.watchlistRepo.pendingCount(testGuestID, state.Winner.ID))

	// Экран победителя для обоих участников.
	for _, userID := range []int{testOwnerID, testGuestID} {
		view, err := env.states.GetPersonalizedState(ctx, room.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, ScreenWinner, view.Screen)
		require.NotNil(t, view.Winner)
		assert.Equal(t, state.Winner.ID, view.Winner.Candidate.ID)
		assert.Empty(t, view.AvailableActions)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)

	_, err := env.actions.Process(context.Background(), room.Code, testOwnerID, &ActionRequest{Action: "dance"})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestActionFromStrangerRejected(t *testing.T) {
	env := newTestEnv(t)
	room := env.roomWithTwoParticipants(t)

	_, err := env.actions.Process(context.Background(), room.Code, 999, &ActionRequest{Action: models.ActionExtend})
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	// Попытка чужака тоже попадает в журнал, с исходом error.
	outcomes := env.actionRepo.outcomes()
	assert.Equal(t, 1, outcomes[models.OutcomeError])
}

func TestActionInUnknownRoomRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.actions.Process(context.Background(), "NOPE42", testOwnerID, &ActionRequest{Action: models.ActionExtend})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

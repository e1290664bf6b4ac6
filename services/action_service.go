package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dorofeev-A/movienight/brackets"
	"github.com/Dorofeev-A/movienight/models"
	"github.com/Dorofeev-A/movienight/repositories"
	"github.com/google/uuid"
)

// Повторный запрос с тем же ключом идемпотентности внутри окна возвращает
// текущее состояние без повторного применения.
const idempotencyWindow = 5 * time.Minute

// ActionPayload — параметры действия pick; остальные действия параметров не имеют.
type ActionPayload struct {
	MatchID             string `json:"match_id,omitempty"`
	SelectedCandidateID int64  `json:"selected_candidate_id,omitempty"`
	ResponseTimeMS      *int   `json:"response_time_ms,omitempty"`
}

type ActionRequest struct {
	Action         models.ActionType `json:"action"`
	Payload        *ActionPayload    `json:"payload,omitempty"`
	IdempotencyKey *string           `json:"idempotency_key,omitempty"`
}

// ActionResult — итог обработки. Ignored означает, что запрос распознан, но
// состояние не изменилось (дубликат, повтор, уже применено); State всегда
// содержит актуальный персонализированный срез.
type ActionResult struct {
	Success bool               `json:"success"`
	Ignored bool               `json:"ignored,omitempty"`
	State   *PersonalizedState `json:"state"`
}

// ActionService — единственная точка мутации комнаты. Все действия одной
// комнаты сериализуются блокировкой, журналируются и применяются к копии
// канонического состояния.
type ActionService interface {
	Process(ctx context.Context, roomCode string, userID int, req *ActionRequest) (*ActionResult, error)
}

type actionService struct {
	db              repositories.TxBeginner
	roomRepo        repositories.RoomRepository
	participantRepo repositories.ParticipantRepository
	stateRepo       repositories.StateRepository
	pickRepo        repositories.PickRepository
	actionRepo      repositories.ActionRepository
	watchlistRepo   repositories.WatchlistRepository
	stateService    StateService
	ratings         RatingService
	locker          *RoomLocker
	logger          *slog.Logger
}

func NewActionService(
	db repositories.TxBeginner,
	roomRepo repositories.RoomRepository,
	participantRepo repositories.ParticipantRepository,
	stateRepo repositories.StateRepository,
	pickRepo repositories.PickRepository,
	actionRepo repositories.ActionRepository,
	watchlistRepo repositories.WatchlistRepository,
	stateService StateService,
	ratings RatingService,
	locker *RoomLocker,
	logger *slog.Logger,
) ActionService {
	return &actionService{
		db:              db,
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		stateRepo:       stateRepo,
		pickRepo:        pickRepo,
		actionRepo:      actionRepo,
		watchlistRepo:   watchlistRepo,
		stateService:    stateService,
		ratings:         ratings,
		locker:          locker,
		logger:          logger,
	}
}

func (s *actionService) Process(ctx context.Context, roomCode string, userID int, req *ActionRequest) (*ActionResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrValidationFailed)
	}
	switch req.Action {
	case models.ActionStart, models.ActionPick, models.ActionLeave, models.ActionExtend:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidationFailed, req.Action)
	}

	room, err := s.roomRepo.GetByCode(ctx, roomCode)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	// Повтор по ключу идемпотентности обслуживается до захвата блокировки:
	// применять нечего, достаточно вернуть свежий срез.
	if req.IdempotencyKey != nil && *req.IdempotencyKey != "" {
		prior, findErr := s.actionRepo.FindRecentSuccessByKey(
			ctx, room.ID, userID, *req.IdempotencyKey, time.Now().Add(-idempotencyWindow))
		if findErr != nil && !errors.Is(findErr, repositories.ErrActionRecordNotFound) {
			return nil, findErr
		}
		if prior != nil {
			s.logger.Info("action replayed via idempotency key",
				slog.String("room_code", roomCode),
				slog.Int("user_id", userID),
				slog.String("action", string(req.Action)))
			state, stateErr := s.stateService.GetPersonalizedState(ctx, room.ID, userID)
			if stateErr != nil {
				return nil, stateErr
			}
			return &ActionResult{Success: true, Ignored: true, State: state}, nil
		}
	}

	release, err := s.locker.Acquire(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Статус мог измениться, пока мы ждали блокировку.
	room, err = s.roomRepo.GetByID(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	record, err := s.recordAction(ctx, room.ID, userID, req)
	if err != nil {
		return nil, err
	}

	participant, err := s.participantRepo.GetByRoomAndUser(ctx, room.ID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrParticipantNotFound) {
			err = ErrParticipantNotFound
		}
		// Попытка чужака тоже остаётся в журнале, но уже с исходом error.
		s.finishRecord(ctx, record, false, err)
		return nil, err
	}

	var ignored bool
	switch req.Action {
	case models.ActionStart:
		ignored, err = s.applyStart(ctx, room, participant)
	case models.ActionPick:
		ignored, err = s.applyPick(ctx, room, participant, req.Payload)
	case models.ActionLeave:
		ignored, err = s.applyLeave(ctx, room, participant)
	case models.ActionExtend:
		ignored, err = s.applyExtend(ctx, room, participant)
	}

	s.finishRecord(ctx, record, ignored, err)
	if err != nil {
		return nil, err
	}

	state, err := s.stateService.GetPersonalizedState(ctx, room.ID, userID)
	if err != nil {
		return nil, err
	}
	return &ActionResult{Success: true, Ignored: ignored, State: state}, nil
}

// recordAction пишет запись аудита с предварительным исходом success;
// исход понижается до error/ignored после применения. Запись появляется до
// мутации, чтобы каждая попытка оставалась в журнале даже при падении.
func (s *actionService) recordAction(ctx context.Context, roomID, userID int, req *ActionRequest) (*models.ActionRecord, error) {
	var payload json.RawMessage
	if req.Payload != nil {
		raw, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal action payload: %w", err)
		}
		payload = raw
	}

	record := &models.ActionRecord{
		ID:             uuid.NewString(),
		RoomID:         roomID,
		UserID:         userID,
		Action:         req.Action,
		Payload:        payload,
		IdempotencyKey: req.IdempotencyKey,
		Outcome:        models.OutcomeSuccess,
	}
	if err := s.actionRepo.Create(ctx, s.db, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *actionService) finishRecord(ctx context.Context, record *models.ActionRecord, ignored bool, applyErr error) {
	outcome := models.OutcomeSuccess
	if applyErr != nil {
		outcome = models.OutcomeError
	} else if ignored {
		outcome = models.OutcomeIgnored
	}
	if outcome == record.Outcome {
		return
	}
	if err := s.actionRepo.UpdateOutcome(ctx, record.ID, outcome); err != nil {
		// Аудит не должен ронять уже применённое действие.
		s.logger.Warn("failed to update action record outcome",
			slog.String("record_id", record.ID),
			slog.String("outcome", string(outcome)),
			slog.Any("error", err))
	}
}

func (s *actionService) applyStart(ctx context.Context, room *models.Room, participant *models.Participant) (bool, error) {
	if !participant.IsOwner {
		return false, ErrNotRoomOwner
	}

	switch room.Status {
	case models.RoomStatusActive:
		// Повторный start уже идущего турнира — no-op.
		return true, nil
	case models.RoomStatusCompleted:
		return false, ErrTournamentFinished
	case models.RoomStatusAbandoned:
		return false, ErrRoomAbandoned
	}

	participants, err := s.participantRepo.ListByRoom(ctx, room.ID)
	if err != nil {
		return false, err
	}
	active := activeUserIDs(participants)
	if len(active) != 2 {
		return false, ErrNotEnoughParticipants
	}

	guestID := active[0]
	if guestID == participant.UserID {
		guestID = active[1]
	}

	ownerList, err := s.watchlistRepo.ListUnwatchedByUser(ctx, participant.UserID)
	if err != nil {
		return false, err
	}
	guestList, err := s.watchlistRepo.ListUnwatchedByUser(ctx, guestID)
	if err != nil {
		return false, err
	}

	merged := brackets.MergeCandidates(participant.UserID, ownerList, guestID, guestList)
	seed := time.Now().UnixNano()
	bracket, err := brackets.BuildBracket(merged, seed)
	if err != nil {
		if errors.Is(err, brackets.ErrNotEnoughCandidates) {
			return false, ErrBracketImpossible
		}
		return false, err
	}

	state := &models.TournamentState{
		RoomID:       room.ID,
		Phase:        models.PhaseForRound(1, bracket.TotalRounds),
		CurrentRound: 1,
		TotalRounds:  bracket.TotalRounds,
		ShuffleSeed:  seed,
		Pool:         bracket.Pool,
		Matches:      bracket.Matches,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.roomRepo.MarkStarted(ctx, tx, room.ID); err != nil {
		return false, err
	}
	if err := s.stateService.SaveState(ctx, tx, state); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("tournament started",
		slog.String("room_code", room.Code),
		slog.Int("pool_size", len(bracket.Pool)),
		slog.Int("total_rounds", bracket.TotalRounds))

	s.stateService.BroadcastState(room.Code, state)
	return false, nil
}

func (s *actionService) applyPick(ctx context.Context, room *models.Room, participant *models.Participant, payload *ActionPayload) (bool, error) {
	switch room.Status {
	case models.RoomStatusWaiting:
		return false, ErrTournamentNotStarted
	case models.RoomStatusCompleted:
		return false, ErrTournamentFinished
	case models.RoomStatusAbandoned:
		return false, ErrRoomAbandoned
	}
	if !participant.IsActive {
		return false, ErrParticipantInactive
	}
	if payload == nil || payload.MatchID == "" || payload.SelectedCandidateID == 0 {
		return false, ErrPickPayloadRequired
	}

	state, err := s.stateRepo.Get(ctx, room.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrStateNotFound) {
			return false, ErrTournamentNotStarted
		}
		return false, err
	}

	picks, err := s.pickRepo.ListByRoom(ctx, room.ID)
	if err != nil {
		return false, err
	}
	for _, p := range picks {
		if p.UserID == participant.UserID && p.MatchUID == payload.MatchID {
			// Повторный голос за уже решённый матч не применяется. Проверка
			// идёт по всей истории, а не по текущему раунду: ретрай может
			// прийти уже после того, как раунд продвинулся.
			return true, nil
		}
	}

	match := state.MatchByUID(payload.MatchID)
	if match == nil {
		return false, ErrWrongMatch
	}
	if !match.HasCandidate(payload.SelectedCandidateID) {
		return false, ErrCandidateNotInMatch
	}

	// Голосовать можно только за свой текущий матч, не вперёд по раунду.
	if current := nextUnplayedMatch(state, picks, participant.UserID); current == nil || current.UID != match.UID {
		return false, ErrWrongMatch
	}

	pick := &models.Pick{
		RoomID:      room.ID,
		UserID:      participant.UserID,
		MatchUID:    match.UID,
		CandidateID: payload.SelectedCandidateID,
		ResponseMS:  payload.ResponseTimeMS,
	}
	if err := s.pickRepo.Create(ctx, s.db, pick); err != nil {
		// Гонка двух запросов одного участника: уникальный индекс пропускает
		// ровно один, второй ничего не меняет.
		if errors.Is(err, repositories.ErrPickDuplicate) {
			return true, nil
		}
		return false, err
	}
	picks = append(picks, *pick)

	loserID := match.A.ID
	if loserID == payload.SelectedCandidateID {
		loserID = match.B.ID
	}
	s.ratings.Enqueue(PickOutcome{
		UserID:   participant.UserID,
		WinnerID: payload.SelectedCandidateID,
		LoserID:  loserID,
	})

	participants, err := s.participantRepo.ListByRoom(ctx, room.ID)
	if err != nil {
		return false, err
	}

	next, err := s.advanceIfComplete(ctx, room, state, picks, participants)
	if err != nil {
		return false, err
	}

	s.stateService.BroadcastState(room.Code, next)
	return false, nil
}

// advanceIfComplete сохраняет новое каноническое состояние после pick'а.
// Если раунд закрыт, строится следующий шаг сетки (или фиксируется победитель);
// иначе сохраняется копия без структурных изменений — только ради инкремента
// версии, по которому партнёр видит прогресс.
func (s *actionService) advanceIfComplete(
	ctx context.Context,
	room *models.Room,
	state *models.TournamentState,
	picks []models.Pick,
	participants []*models.Participant,
) (*models.TournamentState, error) {
	next := state.Clone()
	active := activeUserIDs(participants)

	if !brackets.RoundComplete(state.Matches, picks, active) {
		if err := s.stateService.SaveState(ctx, s.db, next); err != nil {
			return nil, err
		}
		return next, nil
	}

	result, err := brackets.AdvanceRound(state.Matches, picksForMatches(state.Matches, picks))
	if err != nil {
		return nil, err
	}

	if result.Completed() {
		next.Winner = result.Winner
		next.Phase = models.PhaseCompleted
		next.Matches = nil

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := s.roomRepo.MarkCompleted(ctx, tx, room.ID, *result.Winner); err != nil {
			return nil, err
		}
		// Победитель попадает в списки обоих участников с флагом ожидаемой
		// оценки; конфликт по уже имеющейся записи — no-op.
		for _, uid := range active {
			if err := s.watchlistRepo.AddPendingRating(ctx, tx, uid, *result.Winner); err != nil {
				return nil, err
			}
		}
		if err := s.stateService.SaveState(ctx, tx, next); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		s.logger.Info("tournament completed",
			slog.String("room_code", room.Code),
			slog.Int64("winner_id", result.Winner.ID),
			slog.String("winner_title", result.Winner.Title))
		return next, nil
	}

	next.CurrentRound = result.NextRound
	next.Matches = result.NextMatches
	next.Phase = models.PhaseForRound(result.NextRound, next.TotalRounds)
	if err := s.stateService.SaveState(ctx, s.db, next); err != nil {
		return nil, err
	}

	s.logger.Info("round advanced",
		slog.String("room_code", room.Code),
		slog.Int("round", result.NextRound),
		slog.String("phase", next.Phase))
	return next, nil
}

func (s *actionService) applyLeave(ctx context.Context, room *models.Room, participant *models.Participant) (bool, error) {
	if !participant.IsActive {
		// Уже вышел — повтор не применяется.
		return true, nil
	}

	if err := s.participantRepo.SetActive(ctx, s.db, room.ID, participant.UserID, false); err != nil {
		return false, err
	}

	status, err := s.stateService.RebuildFromParticipants(ctx, room.ID)
	if err != nil {
		return false, err
	}

	s.logger.Info("participant left room",
		slog.String("room_code", room.Code),
		slog.Int("user_id", participant.UserID),
		slog.String("room_status", string(status)))

	s.broadcastRoomUpdate(ctx, room)
	return false, nil
}

func (s *actionService) applyExtend(ctx context.Context, room *models.Room, participant *models.Participant) (bool, error) {
	switch room.Status {
	case models.RoomStatusCompleted, models.RoomStatusAbandoned:
		// Heartbeat в завершённой комнате ничего не продлевает.
		return true, nil
	}
	if !participant.IsActive {
		return false, ErrParticipantInactive
	}
	if err := s.participantRepo.TouchLastAction(ctx, s.db, room.ID, participant.UserID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *actionService) broadcastRoomUpdate(ctx context.Context, room *models.Room) {
	state, err := s.stateRepo.Get(ctx, room.ID)
	if err != nil {
		if !errors.Is(err, repositories.ErrStateNotFound) {
			s.logger.Warn("failed to load state for room broadcast",
				slog.String("room_code", room.Code), slog.Any("error", err))
		}
		// Состояния ещё нет (лобби) — рассылаем нулевую версию, клиенты
		// всё равно перезапросят комнату.
		state = &models.TournamentState{RoomID: room.ID}
	}
	s.stateService.BroadcastState(room.Code, state)
}

func picksForMatches(matches []models.Match, picks []models.Pick) []models.Pick {
	uids := make(map[string]bool, len(matches))
	for _, m := range matches {
		uids[m.UID] = true
	}
	filtered := make([]models.Pick, 0, len(matches)*2)
	for _, p := range picks {
		if uids[p.MatchUID] {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

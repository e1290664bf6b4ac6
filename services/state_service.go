package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dorofeev-A/movienight/brackets"
	"github.com/Dorofeev-A/movienight/models"
	"github.com/Dorofeev-A/movienight/repositories"
	"github.com/Dorofeev-A/movienight/storage"
	"golang.org/x/sync/errgroup"
)

// StateService — единственный источник правды о состоянии турнира комнаты.
// Канонический снимок версионируется хранилищем; каждому участнику отдаётся
// персонализированный срез с его собственным следующим матчем.
type StateService interface {
	GetPersonalizedState(ctx context.Context, roomID, userID int) (*PersonalizedState, error)
	SaveState(ctx context.Context, exec repositories.SQLExecutor, state *models.TournamentState) error
	BroadcastState(roomCode string, state *models.TournamentState)
	RebuildFromParticipants(ctx context.Context, roomID int) (models.RoomStatus, error)
}

type stateService struct {
	db              repositories.TxBeginner
	roomRepo        repositories.RoomRepository
	participantRepo repositories.ParticipantRepository
	stateRepo       repositories.StateRepository
	pickRepo        repositories.PickRepository
	hub             *brackets.Hub
	uploader        storage.FileUploader
	logger          *slog.Logger
}

func NewStateService(
	db repositories.TxBeginner,
	roomRepo repositories.RoomRepository,
	participantRepo repositories.ParticipantRepository,
	stateRepo repositories.StateRepository,
	pickRepo repositories.PickRepository,
	hub *brackets.Hub,
	uploader storage.FileUploader,
	logger *slog.Logger,
) StateService {
	return &stateService{
		db:              db,
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		stateRepo:       stateRepo,
		pickRepo:        pickRepo,
		hub:             hub,
		uploader:        uploader,
		logger:          logger,
	}
}

func (s *stateService) GetPersonalizedState(ctx context.Context, roomID, userID int) (*PersonalizedState, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	var (
		participants []*models.Participant
		state        *models.TournamentState
		picks        []models.Pick
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var gErr error
		participants, gErr = s.participantRepo.ListByRoom(gCtx, roomID)
		return gErr
	})
	g.Go(func() error {
		loaded, gErr := s.stateRepo.Get(gCtx, roomID)
		if gErr != nil {
			// До старта турнира состояния ещё нет — это не ошибка.
			if errors.Is(gErr, repositories.ErrStateNotFound) {
				return nil
			}
			return gErr
		}
		state = loaded
		return nil
	})
	g.Go(func() error {
		var gErr error
		picks, gErr = s.pickRepo.ListByRoom(gCtx, roomID)
		return gErr
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load room %d data: %w", roomID, err)
	}

	var me *models.Participant
	for _, p := range participants {
		if p != nil && p.UserID == userID {
			me = p
			break
		}
	}
	if me == nil {
		return nil, ErrParticipantNotFound
	}

	view := &PersonalizedState{
		Room: RoomView{
			Code:         room.Code,
			Status:       room.Status,
			Participants: participantViews(participants),
		},
	}
	if state != nil {
		view.Version = state.Version
	}

	switch room.Status {
	case models.RoomStatusWaiting:
		view.Screen = ScreenLobby
		actions := make([]models.ActionType, 0, 3)
		if me.IsOwner && countActive(participants) == 2 {
			actions = append(actions, models.ActionStart)
		}
		view.AvailableActions = append(actions, models.ActionExtend, models.ActionLeave)

	case models.RoomStatusAbandoned:
		view.Screen = ScreenError
		view.Error = ErrRoomAbandoned.Error()
		view.AvailableActions = []models.ActionType{}

	case models.RoomStatusCompleted:
		view.Screen = ScreenWinner
		winner := s.winnerCandidate(room, state)
		if winner != nil {
			populateCandidatePosterURL(winner, s.uploader)
			view.Winner = &WinnerView{Candidate: *winner, AddedToBothLists: true}
		}
		view.AvailableActions = []models.ActionType{}

	case models.RoomStatusActive:
		if state == nil {
			return nil, fmt.Errorf("room %d is active but has no tournament state", roomID)
		}
		tournament := &TournamentView{
			Progress: ProgressView{
				UserPicks:    countUserPicks(picks, userID),
				TotalPicks:   len(state.Pool) - 1,
				CurrentRound: state.CurrentRound,
				TotalRounds:  state.TotalRounds,
			},
		}
		if next := nextUnplayedMatch(state, picks, userID); next != nil {
			m := *next
			populateMatchPosterURLs(&m, s.uploader)
			tournament.CurrentMatch = &m
			if state.Phase == models.PhaseFinal {
				view.Screen = ScreenFinal
			} else {
				view.Screen = ScreenBracket
			}
			view.AvailableActions = []models.ActionType{models.ActionPick, models.ActionExtend, models.ActionLeave}
		} else {
			// Участник отголосовал весь раунд, партнёр ещё нет.
			view.Screen = ScreenWaiting
			view.AvailableActions = []models.ActionType{models.ActionExtend, models.ActionLeave}
		}
		view.Tournament = tournament

	default:
		return nil, fmt.Errorf("unknown room status %q for room %d", room.Status, roomID)
	}

	return view, nil
}

func (s *stateService) SaveState(ctx context.Context, exec repositories.SQLExecutor, state *models.TournamentState) error {
	if err := s.stateRepo.Save(ctx, exec, state); err != nil {
		return err
	}
	s.logger.Debug("tournament state saved",
		slog.Int("room_id", state.RoomID),
		slog.Int("version", state.Version),
		slog.String("phase", state.Phase))
	return nil
}

// BroadcastState уведомляет подписчиков комнаты о новой версии. Клиенты
// перезапрашивают свой персонализированный срез; рассылка at-least-once,
// дубликаты и устаревшие сообщения отфильтровываются по номеру версии.
func (s *stateService) BroadcastState(roomCode string, state *models.TournamentState) {
	s.hub.BroadcastToRoom("room_"+roomCode, brackets.WebSocketMessage{
		Type:   brackets.MessageStateUpdated,
		RoomID: roomCode,
		Payload: map[string]interface{}{
			"version":       state.Version,
			"phase":         state.Phase,
			"current_round": state.CurrentRound,
		},
	})
}

// RebuildFromParticipants пересчитывает статус комнаты только по актуальным
// флагам активности участников из БД — без кэшей, чтобы результат был верен
// и после рестарта процесса.
func (s *stateService) RebuildFromParticipants(ctx context.Context, roomID int) (models.RoomStatus, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return "", ErrRoomNotFound
		}
		return "", err
	}

	participants, err := s.participantRepo.ListByRoom(ctx, roomID)
	if err != nil {
		return "", err
	}

	next := room.Status
	active := countActive(participants)
	switch room.Status {
	case models.RoomStatusWaiting:
		if active == 0 {
			next = models.RoomStatusAbandoned
		}
	case models.RoomStatusActive:
		if active < 2 {
			next = models.RoomStatusAbandoned
		}
	}

	if next != room.Status {
		if !isValidRoomStatusTransition(room.Status, next) {
			return room.Status, fmt.Errorf("invalid room status transition %s -> %s", room.Status, next)
		}
		if err := s.roomRepo.UpdateStatus(ctx, s.db, roomID, next); err != nil {
			return "", err
		}
		s.logger.Info("room status rebuilt from participants",
			slog.Int("room_id", roomID),
			slog.String("from", string(room.Status)),
			slog.String("to", string(next)))
	}
	return next, nil
}

func (s *stateService) winnerCandidate(room *models.Room, state *models.TournamentState) *models.Candidate {
	if state != nil && state.Winner != nil {
		w := *state.Winner
		return &w
	}
	if room.WinnerCandidateID != nil {
		return &models.Candidate{
			ID:        *room.WinnerCandidateID,
			Title:     derefString(room.WinnerTitle),
			PosterKey: room.WinnerPosterKey,
		}
	}
	return nil
}

func nextUnplayedMatch(state *models.TournamentState, picks []models.Pick, userID int) *models.Match {
	picked := make(map[string]bool)
	for _, p := range picks {
		if p.UserID == userID {
			picked[p.MatchUID] = true
		}
	}
	for i := range state.Matches {
		if !picked[state.Matches[i].UID] {
			m := state.Matches[i]
			return &m
		}
	}
	return nil
}

func countUserPicks(picks []models.Pick, userID int) int {
	n := 0
	for _, p := range picks {
		if p.UserID == userID {
			n++
		}
	}
	return n
}

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
	"github.com/Dorofeev-A/movienight/utils"
)

const roomCodeAttempts = 5

type RoomService interface {
	CreateRoom(ctx context.Context, ownerID int) (*models.Room, error)
	JoinRoom(ctx context.Context, code string, userID int) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
}

type roomService struct {
	db              repositories.TxBeginner
	roomRepo        repositories.RoomRepository
	participantRepo repositories.ParticipantRepository
	uploader        storage.FileUploader
	hub             *brackets.Hub
	logger          *slog.Logger
}

func NewRoomService(
	db repositories.TxBeginner,
	roomRepo repositories.RoomRepository,
	participantRepo repositories.ParticipantRepository,
	uploader storage.FileUploader,
	hub *brackets.Hub,
	logger *slog.Logger,
) RoomService {
	return &roomService{
		db:              db,
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		uploader:        uploader,
		hub:             hub,
		logger:          logger,
	}
}

func (s *roomService) CreateRoom(ctx context.Context, ownerID int) (*models.Room, error) {
	var lastErr error
	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		room := &models.Room{
			Code:    utils.GenerateRoomCode(),
			OwnerID: ownerID,
			Status:  models.RoomStatusWaiting,
		}

		err := s.createRoomTx(ctx, room, ownerID)
		if err == nil {
			s.logger.Info("room created",
				slog.String("code", room.Code), slog.Int("owner_id", ownerID))
			return room, nil
		}
		if errors.Is(err, repositories.ErrRoomCodeConflict) {
			lastErr = err
			continue // коллизия кода, пробуем другой
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to generate a unique room code after %d attempts: %w", roomCodeAttempts, lastErr)
}

func (s *roomService) createRoomTx(ctx context.Context, room *models.Room, ownerID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.roomRepo.Create(ctx, tx, room); err != nil {
		return err
	}

	owner := &models.Participant{
		RoomID:   room.ID,
		UserID:   ownerID,
		IsOwner:  true,
		IsActive: true,
	}
	if err := s.participantRepo.Create(ctx, tx, owner); err != nil {
		return err
	}
	room.Participants = []models.Participant{*owner}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *roomService) JoinRoom(ctx context.Context, code string, userID int) (*models.Room, error) {
	room, err := s.roomRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	participants, err := s.participantRepo.ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	// Повторный join уже состоящего участника — no-op.
	for _, p := range participants {
		if p.UserID == userID {
			return s.withParticipants(ctx, room)
		}
	}

	if room.Status != models.RoomStatusWaiting {
		return nil, ErrRoomNotJoinable
	}
	if countActive(participants) >= 2 {
		return nil, ErrRoomFull
	}

	guest := &models.Participant{
		RoomID:   room.ID,
		UserID:   userID,
		IsActive: true,
	}
	if err := s.participantRepo.Create(ctx, s.db, guest); err != nil {
		if errors.Is(err, repositories.ErrParticipantConflict) {
			return s.withParticipants(ctx, room)
		}
		return nil, err
	}

	s.logger.Info("participant joined room",
		slog.String("code", room.Code), slog.Int("user_id", userID))

	room, err = s.withParticipants(ctx, room)
	if err != nil {
		return nil, err
	}

	s.hub.BroadcastToRoom("room_"+room.Code, brackets.WebSocketMessage{
		Type:    brackets.MessageRoomUpdated,
		RoomID:  room.Code,
		Payload: room,
	})

	return room, nil
}

func (s *roomService) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	room, err := s.roomRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return s.withParticipants(ctx, room)
}

func (s *roomService) withParticipants(ctx context.Context, room *models.Room) (*models.Room, error) {
	participants, err := s.participantRepo.ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	room.Participants = make([]models.Participant, 0, len(participants))
	for _, p := range participants {
		if p != nil {
			room.Participants = append(room.Participants, *p)
		}
	}
	populateRoomWinnerPosterURL(room, s.uploader)
	return room, nil
}

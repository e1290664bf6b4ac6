package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dorofeev-A/movienight/models"
	"github.com/lib/pq"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrParticipantConflict = errors.New("user is already a participant of this room")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, participant *models.Participant) error
	GetByRoomAndUser(ctx context.Context, roomID, userID int) (*models.Participant, error)
	ListByRoom(ctx context.Context, roomID int) ([]*models.Participant, error)
	SetActive(ctx context.Context, exec SQLExecutor, roomID, userID int, active bool) error
	TouchLastAction(ctx context.Context, exec SQLExecutor, roomID, userID int) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, participant *models.Participant) error {
	query := `
		INSERT INTO room_participants (room_id, user_id, is_owner, is_active, last_action_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, last_action_at, created_at`

	err := exec.QueryRowContext(ctx, query,
		participant.RoomID,
		participant.UserID,
		participant.IsOwner,
		participant.IsActive,
	).Scan(&participant.ID, &participant.LastActionAt, &participant.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Constraint == "room_participants_room_id_user_id_key" {
				return ErrParticipantConflict
			}
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *postgresParticipantRepository) GetByRoomAndUser(ctx context.Context, roomID, userID int) (*models.Participant, error) {
	query := `
		SELECT id, room_id, user_id, is_owner, is_active, last_action_at, created_at
		FROM room_participants
		WHERE room_id = $1 AND user_id = $2`

	p := &models.Participant{}
	err := r.db.QueryRowContext(ctx, query, roomID, userID).Scan(
		&p.ID, &p.RoomID, &p.UserID, &p.IsOwner, &p.IsActive, &p.LastActionAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to scan participant: %w", err)
	}
	return p, nil
}

func (r *postgresParticipantRepository) ListByRoom(ctx context.Context, roomID int) ([]*models.Participant, error) {
	query := `
		SELECT id, room_id, user_id, is_owner, is_active, last_action_at, created_at
		FROM room_participants
		WHERE room_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for room %d: %w", roomID, err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if scanErr := rows.Scan(&p.ID, &p.RoomID, &p.UserID, &p.IsOwner, &p.IsActive, &p.LastActionAt, &p.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", scanErr)
		}
		participants = append(participants, &p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during participant rows iteration: %w", err)
	}
	return participants, nil
}

func (r *postgresParticipantRepository) SetActive(ctx context.Context, exec SQLExecutor, roomID, userID int, active bool) error {
	query := `UPDATE room_participants SET is_active = $1, last_action_at = now() WHERE room_id = $2 AND user_id = $3`
	result, err := exec.ExecContext(ctx, query, active, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to update participant active flag: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) TouchLastAction(ctx context.Context, exec SQLExecutor, roomID, userID int) error {
	query := `UPDATE room_participants SET last_action_at = now() WHERE room_id = $1 AND user_id = $2`
	result, err := exec.ExecContext(ctx, query, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to touch participant: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

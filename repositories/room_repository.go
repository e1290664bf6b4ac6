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
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomCodeConflict = errors.New("room code is already in use")
)

type RoomRepository interface {
	Create(ctx context.Context, exec SQLExecutor, room *models.Room) error
	GetByID(ctx context.Context, id int) (*models.Room, error)
	GetByCode(ctx context.Context, code string) (*models.Room, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.RoomStatus) error
	MarkStarted(ctx context.Context, exec SQLExecutor, id int) error
	MarkCompleted(ctx context.Context, exec SQLExecutor, id int, winner models.Candidate) error
}

type postgresRoomRepository struct {
	db *sql.DB
}

func NewPostgresRoomRepository(db *sql.DB) RoomRepository {
	return &postgresRoomRepository{db: db}
}

func (r *postgresRoomRepository) Create(ctx context.Context, exec SQLExecutor, room *models.Room) error {
	query := `
		INSERT INTO rooms (code, owner_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		room.Code,
		room.OwnerID,
		room.Status,
	).Scan(&room.ID, &room.CreatedAt)

	return r.handleRoomError(err)
}

func (r *postgresRoomRepository) GetByID(ctx context.Context, id int) (*models.Room, error) {
	return r.getWhere(ctx, "id = $1", id)
}

func (r *postgresRoomRepository) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	return r.getWhere(ctx, "code = $1", code)
}

func (r *postgresRoomRepository) getWhere(ctx context.Context, where string, arg interface{}) (*models.Room, error) {
	query := `
		SELECT id, code, owner_id, status, started_at, completed_at,
		       winner_candidate_id, winner_title, winner_poster_key, created_at
		FROM rooms
		WHERE ` + where

	room := &models.Room{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&room.ID,
		&room.Code,
		&room.OwnerID,
		&room.Status,
		&room.StartedAt,
		&room.CompletedAt,
		&room.WinnerCandidateID,
		&room.WinnerTitle,
		&room.WinnerPosterKey,
		&room.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to scan room: %w", err)
	}
	return room, nil
}

func (r *postgresRoomRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.RoomStatus) error {
	query := `UPDATE rooms SET status = $1 WHERE id = $2`
	result, err := exec.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleRoomError(err)
	}
	return checkAffectedRows(result, ErrRoomNotFound)
}

func (r *postgresRoomRepository) MarkStarted(ctx context.Context, exec SQLExecutor, id int) error {
	query := `UPDATE rooms SET status = $1, started_at = now() WHERE id = $2`
	result, err := exec.ExecContext(ctx, query, models.RoomStatusActive, id)
	if err != nil {
		return r.handleRoomError(err)
	}
	return checkAffectedRows(result, ErrRoomNotFound)
}

func (r *postgresRoomRepository) MarkCompleted(ctx context.Context, exec SQLExecutor, id int, winner models.Candidate) error {
	query := `
		UPDATE rooms
		SET status = $1, completed_at = now(),
		    winner_candidate_id = $2, winner_title = $3, winner_poster_key = $4
		WHERE id = $5`
	result, err := exec.ExecContext(ctx, query,
		models.RoomStatusCompleted, winner.ID, winner.Title, winner.PosterKey, id)
	if err != nil {
		return r.handleRoomError(err)
	}
	return checkAffectedRows(result, ErrRoomNotFound)
}

func (r *postgresRoomRepository) handleRoomError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		// "23505": unique_violation
		if pqErr.Constraint == "rooms_code_key" {
			return ErrRoomCodeConflict
		}
	}
	return err
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dorofeev-A/movienight/models"
	"github.com/lib/pq"
)

// ErrPickDuplicate — нарушение уникальности (room_id, user_id, match_uid).
// Это штатный случай ретрая, а не повреждение данных: вызывающая сторона
// обязана обработать его как no-op.
var ErrPickDuplicate = errors.New("pick already recorded for this match")

type PickRepository interface {
	Create(ctx context.Context, exec SQLExecutor, pick *models.Pick) error
	ListByRoom(ctx context.Context, roomID int) ([]models.Pick, error)
	CountByUser(ctx context.Context, roomID, userID int) (int, error)
}

type postgresPickRepository struct {
	db *sql.DB
}

func NewPostgresPickRepository(db *sql.DB) PickRepository {
	return &postgresPickRepository{db: db}
}

func (r *postgresPickRepository) Create(ctx context.Context, exec SQLExecutor, pick *models.Pick) error {
	query := `
		INSERT INTO picks (room_id, user_id, match_uid, candidate_id, response_ms)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := exec.QueryRowContext(ctx, query,
		pick.RoomID,
		pick.UserID,
		pick.MatchUID,
		pick.CandidateID,
		pick.ResponseMS,
	).Scan(&pick.ID, &pick.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			// "23505": unique_violation
			if pqErr.Code == "23505" {
				return ErrPickDuplicate
			}
		}
		return fmt.Errorf("failed to create pick: %w", err)
	}
	return nil
}

func (r *postgresPickRepository) ListByRoom(ctx context.Context, roomID int) ([]models.Pick, error) {
	query := `
		SELECT id, room_id, user_id, match_uid, candidate_id, response_ms, created_at
		FROM picks
		WHERE room_id = $1
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query picks for room %d: %w", roomID, err)
	}
	defer rows.Close()

	picks := make([]models.Pick, 0)
	for rows.Next() {
		var p models.Pick
		if scanErr := rows.Scan(&p.ID, &p.RoomID, &p.UserID, &p.MatchUID, &p.CandidateID, &p.ResponseMS, &p.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan pick row: %w", scanErr)
		}
		picks = append(picks, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during pick rows iteration: %w", err)
	}
	return picks, nil
}

func (r *postgresPickRepository) CountByUser(ctx context.Context, roomID, userID int) (int, error) {
	query := `SELECT count(*) FROM picks WHERE room_id = $1 AND user_id = $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, roomID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count picks for user %d in room %d: %w", userID, roomID, err)
	}
	return count, nil
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dorofeev-A/movienight/models"
)

var ErrActionRecordNotFound = errors.New("action record not found")

// ActionRepository — append-only журнал действий. Записи не удаляются:
// по ним работает и аудит, и проверка ключей идемпотентности.
type ActionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, record *models.ActionRecord) error
	UpdateOutcome(ctx context.Context, id string, outcome models.ActionOutcome) error
	FindRecentSuccessByKey(ctx context.Context, roomID, userID int, key string, since time.Time) (*models.ActionRecord, error)
}

type postgresActionRepository struct {
	db *sql.DB
}

func NewPostgresActionRepository(db *sql.DB) ActionRepository {
	return &postgresActionRepository{db: db}
}

func (r *postgresActionRepository) Create(ctx context.Context, exec SQLExecutor, record *models.ActionRecord) error {
	query := `
		INSERT INTO action_records (id, room_id, user_id, action, payload, idempotency_key, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	var payload interface{}
	if len(record.Payload) > 0 {
		payload = []byte(record.Payload)
	}

	err := exec.QueryRowContext(ctx, query,
		record.ID,
		record.RoomID,
		record.UserID,
		record.Action,
		payload,
		record.IdempotencyKey,
		record.Outcome,
	).Scan(&record.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create action record: %w", err)
	}
	return nil
}

func (r *postgresActionRepository) UpdateOutcome(ctx context.Context, id string, outcome models.ActionOutcome) error {
	query := `UPDATE action_records SET outcome = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, outcome, id)
	if err != nil {
		return fmt.Errorf("failed to update action record %s outcome: %w", id, err)
	}
	return checkAffectedRows(result, ErrActionRecordNotFound)
}

func (r *postgresActionRepository) FindRecentSuccessByKey(ctx context.Context, roomID, userID int, key string, since time.Time) (*models.ActionRecord, error) {
	query := `
		SELECT id, room_id, user_id, action, payload, idempotency_key, outcome, created_at
		FROM action_records
		WHERE room_id = $1 AND user_id = $2 AND idempotency_key = $3
		  AND outcome = $4 AND created_at >= $5
		ORDER BY created_at DESC
		LIMIT 1`

	rec := &models.ActionRecord{}
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, roomID, userID, key, models.OutcomeSuccess, since).Scan(
		&rec.ID,
		&rec.RoomID,
		&rec.UserID,
		&rec.Action,
		&payload,
		&rec.IdempotencyKey,
		&rec.Outcome,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActionRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan action record: %w", err)
	}
	rec.Payload = payload
	return rec, nil
}

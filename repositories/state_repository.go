package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dorofeev-A/movienight/models"
)

var ErrStateNotFound = errors.New("tournament state not found")

// StateRepository хранит одну версионируемую строку TournamentState на комнату.
// Payload сериализуется в jsonb; счётчик версий инкрементируется атомарно на
// стороне БД, поэтому версии строго монотонны независимо от процесса.
type StateRepository interface {
	Get(ctx context.Context, roomID int) (*models.TournamentState, error)
	Save(ctx context.Context, exec SQLExecutor, state *models.TournamentState) error
}

type postgresStateRepository struct {
	db *sql.DB
}

func NewPostgresStateRepository(db *sql.DB) StateRepository {
	return &postgresStateRepository{db: db}
}

func (r *postgresStateRepository) Get(ctx context.Context, roomID int) (*models.TournamentState, error) {
	query := `
		SELECT version, payload, updated_at
		FROM tournament_states
		WHERE room_id = $1`

	var (
		version   int
		payload   []byte
		updatedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, roomID).Scan(&version, &payload, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament state for room %d: %w", roomID, err)
	}

	state := &models.TournamentState{}
	if err := json.Unmarshal(payload, state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tournament state payload for room %d: %w", roomID, err)
	}
	state.RoomID = roomID
	state.Version = version
	if updatedAt.Valid {
		state.UpdatedAt = updatedAt.Time
	}
	return state, nil
}

func (r *postgresStateRepository) Save(ctx context.Context, exec SQLExecutor, state *models.TournamentState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal tournament state for room %d: %w", state.RoomID, err)
	}

	query := `
		INSERT INTO tournament_states (room_id, version, payload, updated_at)
		VALUES ($1, 1, $2, now())
		ON CONFLICT (room_id)
		DO UPDATE SET version = tournament_states.version + 1,
		              payload = EXCLUDED.payload,
		              updated_at = now()
		RETURNING version, updated_at`

	err = exec.QueryRowContext(ctx, query, state.RoomID, payload).Scan(&state.Version, &state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save tournament state for room %d: %w", state.RoomID, err)
	}
	return nil
}

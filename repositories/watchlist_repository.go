package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dorofeev-A/movienight/models"
)

// WatchlistRepository — источник кандидатов (непросмотренные фильмы
// пользователя) и приёмник победителя турнира.
type WatchlistRepository interface {
	ListUnwatchedByUser(ctx context.Context, userID int) ([]models.Candidate, error)
	AddPendingRating(ctx context.Context, exec SQLExecutor, userID int, candidate models.Candidate) error
}

type postgresWatchlistRepository struct {
	db *sql.DB
}

func NewPostgresWatchlistRepository(db *sql.DB) WatchlistRepository {
	return &postgresWatchlistRepository{db: db}
}

func (r *postgresWatchlistRepository) ListUnwatchedByUser(ctx context.Context, userID int) ([]models.Candidate, error) {
	query := `
		SELECT candidate_id, title, poster_key
		FROM watchlist
		WHERE user_id = $1 AND watched = false
		ORDER BY added_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist for user %d: %w", userID, err)
	}
	defer rows.Close()

	candidates := make([]models.Candidate, 0)
	for rows.Next() {
		var c models.Candidate
		if scanErr := rows.Scan(&c.ID, &c.Title, &c.PosterKey); scanErr != nil {
			return nil, fmt.Errorf("failed to scan watchlist row: %w", scanErr)
		}
		candidates = append(candidates, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during watchlist rows iteration: %w", err)
	}
	return candidates, nil
}

// AddPendingRating добавляет победителя в список пользователя с флагом
// "ожидает оценки". ON CONFLICT DO NOTHING даёт ровно-однократную запись
// при повторном применении.
func (r *postgresWatchlistRepository) AddPendingRating(ctx context.Context, exec SQLExecutor, userID int, candidate models.Candidate) error {
	query := `
		INSERT INTO watchlist (user_id, candidate_id, title, poster_key, watched, pending_rating)
		VALUES ($1, $2, $3, $4, false, true)
		ON CONFLICT (user_id, candidate_id) DO NOTHING`

	if _, err := exec.ExecContext(ctx, query, userID, candidate.ID, candidate.Title, candidate.PosterKey); err != nil {
		return fmt.Errorf("failed to add pending-rating watchlist entry for user %d: %w", userID, err)
	}
	return nil
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dorofeev-A/movienight/models"
)

type RatingRepository interface {
	Get(ctx context.Context, userID int, candidateID int64) (*models.PreferenceRating, error)
	Upsert(ctx context.Context, rating *models.PreferenceRating) error
}

type postgresRatingRepository struct {
	db *sql.DB
}

func NewPostgresRatingRepository(db *sql.DB) RatingRepository {
	return &postgresRatingRepository{db: db}
}

// Get возвращает текущий рейтинг пары (пользователь, кандидат) либо nil,
// если пары ещё нет — вызывающая сторона подставляет стартовый рейтинг.
func (r *postgresRatingRepository) Get(ctx context.Context, userID int, candidateID int64) (*models.PreferenceRating, error) {
	query := `
		SELECT user_id, candidate_id, rating, match_count, win_count, loss_count, updated_at
		FROM preference_ratings
		WHERE user_id = $1 AND candidate_id = $2`

	rating := &models.PreferenceRating{}
	err := r.db.QueryRowContext(ctx, query, userID, candidateID).Scan(
		&rating.UserID,
		&rating.CandidateID,
		&rating.Rating,
		&rating.MatchCount,
		&rating.WinCount,
		&rating.LossCount,
		&rating.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan preference rating: %w", err)
	}
	return rating, nil
}

func (r *postgresRatingRepository) Upsert(ctx context.Context, rating *models.PreferenceRating) error {
	query := `
		INSERT INTO preference_ratings (user_id, candidate_id, rating, match_count, win_count, loss_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (user_id, candidate_id)
		DO UPDATE SET rating = EXCLUDED.rating,
		              match_count = EXCLUDED.match_count,
		              win_count = EXCLUDED.win_count,
		              loss_count = EXCLUDED.loss_count,
		              updated_at = now()`

	if _, err := r.db.ExecContext(ctx, query,
		rating.UserID,
		rating.CandidateID,
		rating.Rating,
		rating.MatchCount,
		rating.WinCount,
		rating.LossCount,
	); err != nil {
		return fmt.Errorf("failed to upsert preference rating: %w", err)
	}
	return nil
}

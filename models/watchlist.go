package models

import "time"

// WatchlistEntry — строка списка "к просмотру" пользователя. Победитель
// турнира добавляется обоим участникам с pending_rating = true.
type WatchlistEntry struct {
	ID            int64     `json:"id" db:"id"`
	UserID        int       `json:"user_id" db:"user_id"`
	CandidateID   int64     `json:"candidate_id" db:"candidate_id"`
	Title         string    `json:"title" db:"title"`
	PosterKey     *string   `json:"-" db:"poster_key"`
	PosterURL     *string   `json:"poster_url,omitempty" db:"-"`
	Watched       bool      `json:"watched" db:"watched"`
	PendingRating bool      `json:"pending_rating" db:"pending_rating"`
	AddedAt       time.Time `json:"added_at" db:"added_at"`
}

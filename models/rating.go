package models

import "time"

// PreferenceRating — парный рейтинг предпочтений пользователя по кандидату,
// пересчитываемый асинхронно из истории Pick'ов. Не участвует в корректности
// турнира.
type PreferenceRating struct {
	UserID      int       `json:"user_id" db:"user_id"`
	CandidateID int64     `json:"candidate_id" db:"candidate_id"`
	Rating      int       `json:"rating" db:"rating"`
	MatchCount  int       `json:"match_count" db:"match_count"`
	WinCount    int       `json:"win_count" db:"win_count"`
	LossCount   int       `json:"loss_count" db:"loss_count"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

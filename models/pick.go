package models

import "time"

// Pick — голос одного участника за одного кандидата в одном матче.
// В БД действует уникальность (room_id, user_id, match_uid): повторная
// отправка для уже решённого матча должна быть no-op, а не ошибкой.
type Pick struct {
	ID          int64     `json:"id" db:"id"`
	RoomID      int       `json:"room_id" db:"room_id"`
	UserID      int       `json:"user_id" db:"user_id"`
	MatchUID    string    `json:"match_uid" db:"match_uid"`
	CandidateID int64     `json:"candidate_id" db:"candidate_id"`
	ResponseMS  *int      `json:"response_ms,omitempty" db:"response_ms"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

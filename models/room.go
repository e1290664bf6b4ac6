package models

import "time"

// RoomStatus представляет статусы комнаты, соответствующие ENUM в БД.
type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "waiting"
	RoomStatusActive    RoomStatus = "active"
	RoomStatusCompleted RoomStatus = "completed"
	RoomStatusAbandoned RoomStatus = "abandoned"
)

// Room представляет одну сессию совместного выбора фильма на двоих.
type Room struct {
	ID                int        `json:"id" db:"id"`
	Code              string     `json:"code" db:"code"`
	OwnerID           int        `json:"owner_id" db:"owner_id"`
	Status            RoomStatus `json:"status" db:"status"`
	StartedAt         *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	WinnerCandidateID *int64     `json:"winner_candidate_id,omitempty" db:"winner_candidate_id"`
	WinnerTitle       *string    `json:"winner_title,omitempty" db:"winner_title"`
	WinnerPosterKey   *string    `json:"-" db:"winner_poster_key"`
	WinnerPosterURL   *string    `json:"winner_poster_url,omitempty" db:"-"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Participants []Participant `json:"participants,omitempty" db:"-"`
}

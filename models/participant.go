package models

import "time"

// Participant — членство пользователя в комнате. В комнате одновременно
// активны не более двух участников.
type Participant struct {
	ID           int       `json:"id" db:"id"`
	RoomID       int       `json:"room_id" db:"room_id"`
	UserID       int       `json:"user_id" db:"user_id"`
	IsOwner      bool      `json:"is_owner" db:"is_owner"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	LastActionAt time.Time `json:"last_action_at" db:"last_action_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

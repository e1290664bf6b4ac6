package models

import (
	"encoding/json"
	"time"
)

// ActionType — тип мутирующего запроса к комнате.
type ActionType string

const (
	ActionStart  ActionType = "start"
	ActionPick   ActionType = "pick"
	ActionLeave  ActionType = "leave"
	ActionExtend ActionType = "extend"
)

// ActionOutcome — итог обработки действия в журнале аудита.
type ActionOutcome string

const (
	OutcomeSuccess ActionOutcome = "success"
	OutcomeError   ActionOutcome = "error"
	OutcomeIgnored ActionOutcome = "ignored"
)

// ActionRecord — append-only запись аудита и идемпотентности. Повторный
// запрос с тем же ключом идемпотентности находит прошлую успешную запись и
// не применяется заново.
type ActionRecord struct {
	ID             string          `json:"id" db:"id"`
	RoomID         int             `json:"room_id" db:"room_id"`
	UserID         int             `json:"user_id" db:"user_id"`
	Action         ActionType      `json:"action" db:"action"`
	Payload        json.RawMessage `json:"payload,omitempty" db:"payload"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Outcome        ActionOutcome   `json:"outcome" db:"outcome"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

package models

import (
	"fmt"
	"time"
)

// Фазы турнира внутри TournamentState.
const (
	PhaseFinal     = "final"
	PhaseCompleted = "completed"
)

// PhaseForRound возвращает фазу для номера раунда: "round_N" для обычных
// раундов и "final" для последнего.
func PhaseForRound(round, totalRounds int) string {
	if round >= totalRounds {
		return PhaseFinal
	}
	return fmt.Sprintf("round_%d", round)
}

// Match — один узел сетки. Матчи неизменяемы после создания; меняется только
// их исход (через Pick'и). UID уникален в пределах (комната, раунд, позиция).
type Match struct {
	UID   string    `json:"uid"`
	Round int       `json:"round"`
	Slot  int       `json:"slot"`
	A     Candidate `json:"a"`
	B     Candidate `json:"b"`
}

// HasCandidate проверяет, что кандидат участвует в матче.
func (m Match) HasCandidate(candidateID int64) bool {
	return m.A.ID == candidateID || m.B.ID == candidateID
}

// TournamentState — авторитетный снимок турнира комнаты. Создаётся при
// переходе комнаты waiting → active, изменяется только процессором действий
// под блокировкой, версия монотонно растёт. Будущие раунды никогда не
// материализуются заранее: Matches содержит только текущий раунд.
type TournamentState struct {
	RoomID       int         `json:"room_id"`
	Phase        string      `json:"phase"`
	CurrentRound int         `json:"current_round"`
	TotalRounds  int         `json:"total_rounds"`
	ShuffleSeed  int64       `json:"shuffle_seed"`
	Pool         []Candidate `json:"pool"`
	Matches      []Match     `json:"matches"`
	Winner       *Candidate  `json:"winner,omitempty"`

	// Version задаётся хранилищем при сохранении, в payload не входит.
	Version   int       `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// MatchByUID находит матч текущего раунда по UID.
func (s *TournamentState) MatchByUID(uid string) *Match {
	for i := range s.Matches {
		if s.Matches[i].UID == uid {
			return &s.Matches[i]
		}
	}
	return nil
}

// Clone возвращает глубокую копию состояния. Новое каноническое состояние
// всегда строится из копии предыдущего, никогда изменением на месте.
func (s *TournamentState) Clone() *TournamentState {
	if s == nil {
		return nil
	}
	next := *s
	next.Pool = append([]Candidate(nil), s.Pool...)
	next.Matches = append([]Match(nil), s.Matches...)
	if s.Winner != nil {
		w := *s.Winner
		next.Winner = &w
	}
	return &next
}

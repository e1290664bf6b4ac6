package services

import "github.com/Dorofeev-A/movienight/models"

// Screen — экран, который клиент должен показать участнику.
type Screen string

const (
	ScreenLobby   Screen = "lobby"
	ScreenBracket Screen = "bracket"
	ScreenWaiting Screen = "waiting"
	ScreenFinal   Screen = "final"
	ScreenWinner  Screen = "winner"
	ScreenError   Screen = "error"
)

type ParticipantView struct {
	UserID   int  `json:"user_id"`
	IsOwner  bool `json:"is_owner"`
	IsActive bool `json:"is_active"`
}

type RoomView struct {
	Code         string            `json:"code"`
	Status       models.RoomStatus `json:"status"`
	Participants []ParticipantView `json:"participants"`
}

type ProgressView struct {
	UserPicks    int `json:"user_picks"`
	TotalPicks   int `json:"total_picks"`
	CurrentRound int `json:"current_round"`
	TotalRounds  int `json:"total_rounds"`
}

type TournamentView struct {
	CurrentMatch *models.Match `json:"current_match,omitempty"`
	Progress     ProgressView  `json:"progress"`
}

type WinnerView struct {
	Candidate        models.Candidate `json:"candidate"`
	AddedToBothLists bool             `json:"added_to_both_lists"`
}

// PersonalizedState — срез канонического состояния для одного участника:
// его собственный следующий матч, а не матч партнёра. Version монотонно
// не убывает для комнаты; клиент доверяет только ей при гонке рассылок.
type PersonalizedState struct {
	Version          int                 `json:"version"`
	Screen           Screen              `json:"screen"`
	Room             RoomView            `json:"room"`
	Tournament       *TournamentView     `json:"tournament,omitempty"`
	Winner           *WinnerView         `json:"winner,omitempty"`
	AvailableActions []models.ActionType `json:"available_actions"`
	Error            string              `json:"error,omitempty"`
}

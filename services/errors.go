package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed         = errors.New("validation failed")
	ErrNotRoomOwner             = errors.New("only the room owner can start the tournament")
	ErrRoomNotJoinable          = errors.New("room is not accepting participants")
	ErrRoomFull                 = errors.New("room already has two active participants")
	ErrNotEnoughParticipants    = errors.New("tournament requires exactly two active participants")
	ErrTournamentNotStarted     = errors.New("tournament has not been started")
	ErrTournamentStartedAlready = errors.New("tournament has already been started")
	ErrTournamentFinished       = errors.New("tournament is already finished")
	ErrRoomAbandoned            = errors.New("room was abandoned")
	ErrParticipantInactive      = errors.New("participant is no longer active in this room")
	ErrWrongMatch               = errors.New("pick does not reference the participant's current match")
	ErrCandidateNotInMatch      = errors.New("selected candidate is not part of the match")
	ErrPickPayloadRequired      = errors.New("pick action requires a payload")

	// Сетка не может быть построена даже после добивки резервным пулом.
	ErrBracketImpossible = errors.New("cannot build a bracket: fewer than two usable candidates")

	// Системные ошибки
	ErrLockTimeout = errors.New("room is busy processing another action, retry")

	// Ошибки, специфичные для сущностей (дают больше контекста, чем ErrNotFound)
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found in this room")
	ErrStateNotFound       = errors.New("tournament state not found")
)

package handlers

import (
	"net/http"

	"github.com/Dorofeev-A/movienight/middleware"
	"github.com/Dorofeev-A/movienight/services"
	"github.com/go-chi/chi/v5"
)

type RoomHandler struct {
	roomService  services.RoomService
	stateService services.StateService
}

func NewRoomHandler(roomService services.RoomService, stateService services.StateService) *RoomHandler {
	return &RoomHandler{
		roomService:  roomService,
		stateService: stateService,
	}
}

// CreateRoom обрабатывает POST /rooms: создаёт комнату, создатель становится
// владельцем и первым участником.
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	room, err := h.roomService.CreateRoom(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"room": room}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// JoinRoom обрабатывает POST /rooms/{code}/join. Повторный join участника
// комнаты — no-op с тем же ответом.
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	code := chi.URLParam(r, "code")
	if code == "" {
		badRequestResponse(w, r, errMissingRoomCode)
		return
	}

	room, err := h.roomService.JoinRoom(r.Context(), code, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"room": room}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetRoom обрабатывает GET /rooms/{code}: комната с участниками, без
// турнирного состояния.
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		badRequestResponse(w, r, errMissingRoomCode)
		return
	}

	room, err := h.roomService.GetRoomByCode(r.Context(), code)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"room": room}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetState обрабатывает GET /rooms/{code}/state: персонализированный срез
// состояния для запрашивающего участника. Основной endpoint для опроса и
// ресинхронизации после WebSocket-уведомления.
func (h *RoomHandler) GetState(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return
	}

	code := chi.URLParam(r, "code")
	if code == "" {
		badRequestResponse(w, r, errMissingRoomCode)
		return
	}

	room, err := h.roomService.GetRoomByCode(r.Context(), code)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	state, err := h.stateService.GetPersonalizedState(r.Context(), room.ID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, state, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

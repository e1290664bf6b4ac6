package handlers

import (
	"errors"
	"net/http"

	"github.com/Dorofeev-A/movienight/middleware"
	"github.com/Dorofeev-A/movienight/services"
	"github.com/go-chi/chi/v5"
)

var errMissingRoomCode = errors.New("missing room code in URL")

type ActionHandler struct {
	actionService services.ActionService
}

func NewActionHandler(actionService services.ActionService) *ActionHandler {
	return &ActionHandler{actionService: actionService}
}

// PostAction обрабатывает POST /rooms/{code}/actions — единственный
// мутирующий endpoint комнаты. Ключ идемпотентности принимается в теле
// запроса или в заголовке Idempotency-Key.
func (h *ActionHandler) PostAction(w http.ResponseWriter, r *http.Request) {
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

	var req services.ActionRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.IdempotencyKey == nil {
		if headerKey := r.Header.Get("Idempotency-Key"); headerKey != "" {
			req.IdempotencyKey = &headerKey
		}
	}

	result, err := h.actionService.Process(r.Context(), code, userID, &req)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dorofeev-A/movienight/brackets"
	"github.com/Dorofeev-A/movienight/services"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене сюда добавляется проверка Origin по списку
		// доверенных доменов фронтенда.
		return true
	},
}

type WebSocketHandler struct {
	hub         *brackets.Hub
	roomService services.RoomService
	logger      *slog.Logger
}

func NewWebSocketHandler(hub *brackets.Hub, roomService services.RoomService, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		roomService: roomService,
		logger:      logger,
	}
}

// ServeWs обрабатывает GET /ws/rooms/{code}: подписывает клиента на
// уведомления комнаты. Канал только уведомляет об изменениях; сами действия
// идут через POST /rooms/{code}/actions.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	room, err := h.roomService.GetRoomByCode(r.Context(), code)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту при ошибке.
		h.logger.Warn("failed to upgrade websocket connection",
			slog.String("room_code", code), slog.Any("error", err))
		return
	}

	client := &brackets.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: "room_" + room.Code,
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("websocket client subscribed", slog.String("room_code", room.Code))
}

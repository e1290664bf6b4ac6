package routes

import (
	"net/http"

	"github.com/Dorofeev-A/movienight/handlers"
	"github.com/Dorofeev-A/movienight/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes собирает все маршруты приложения. Все операции с комнатами
// требуют аутентификации; публичен только healthcheck.
func SetupRoutes(
	router *chi.Mux,
	roomHandler *handlers.RoomHandler,
	actionHandler *handlers.ActionHandler,
	webSocketHandler *handlers.WebSocketHandler,
	jwtSecret string,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtSecret))

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", roomHandler.CreateRoom)
			r.Get("/{code}", roomHandler.GetRoom)
			r.Post("/{code}/join", roomHandler.JoinRoom)
			r.Get("/{code}/state", roomHandler.GetState)
			r.Post("/{code}/actions", actionHandler.PostAction)
		})

		r.Get("/ws/rooms/{code}", webSocketHandler.ServeWs)
	})
}

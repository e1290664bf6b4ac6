package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dorofeev-A/movienight/brackets"
	"github.com/Dorofeev-A/movienight/config"
	"github.com/Dorofeev-A/movienight/db"
	"github.com/Dorofeev-A/movienight/handlers"
	"github.com/Dorofeev-A/movienight/repositories"
	api "github.com/Dorofeev-A/movienight/routes"
	"github.com/Dorofeev-A/movienight/services"
	"github.com/Dorofeev-A/movienight/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Инициализация загрузчика постеров (Cloudflare R2). Без него сервис
	// работает, но poster_url в ответах остаётся пустым.
	var uploader storage.FileUploader
	if cfg.R2Configured() {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("Cloudflare R2 is not configured, poster URLs will be empty")
	}

	// Инициализация WebSocket Hub
	wsHub := brackets.NewHub()
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	roomRepo := repositories.NewPostgresRoomRepository(dbConn)
	participantRepo := repositories.NewPostgresParticipantRepository(dbConn)
	stateRepo := repositories.NewPostgresStateRepository(dbConn)
	pickRepo := repositories.NewPostgresPickRepository(dbConn)
	actionRepo := repositories.NewPostgresActionRepository(dbConn)
	watchlistRepo := repositories.NewPostgresWatchlistRepository(dbConn)
	ratingRepo := repositories.NewPostgresRatingRepository(dbConn)
	logger.Info("repositories initialized")

	// Инициализация сервисов
	sqlDB := repositories.NewSQLDatabase(dbConn)
	locker := services.NewRoomLocker(logger)
	ratingService := services.NewRatingService(ratingRepo, logger)

	roomService := services.NewRoomService(
		sqlDB,
		roomRepo,
		participantRepo,
		uploader,
		wsHub,
		logger,
	)
	stateService := services.NewStateService(
		sqlDB,
		roomRepo,
		participantRepo,
		stateRepo,
		pickRepo,
		wsHub,
		uploader,
		logger,
	)
	actionService := services.NewActionService(
		sqlDB,
		roomRepo,
		participantRepo,
		stateRepo,
		pickRepo,
		actionRepo,
		watchlistRepo,
		stateService,
		ratingService,
		locker,
		logger,
	)
	logger.Info("services initialized")

	// Фоновый пересчёт рейтингов предпочтений
	ratingCtx, stopRatings := context.WithCancel(context.Background())
	defer stopRatings()
	go ratingService.Run(ratingCtx)

	// Инициализация обработчиков HTTP
	roomHandler := handlers.NewRoomHandler(roomService, stateService)
	actionHandler := handlers.NewActionHandler(actionService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, roomService, logger)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, roomHandler, actionHandler, webSocketHandler, cfg.JWTSecretKey)
	logger.Info("routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		stopRatings()
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}

package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Dorofeev-A/movienight/models"
	"github.com/Dorofeev-A/movienight/repositories"
)

// Параметры Elo-подобного рейтинга предпочтений.
const (
	ratingQueueSize     = 1024
	ratingBase          = 1200
	ratingKFactor       = 32
	ratingFlushInterval = time.Second
)

// PickOutcome — исход одного голоса: кандидат-победитель против
// кандидата-проигравшего в глазах конкретного пользователя.
type PickOutcome struct {
	UserID   int
	WinnerID int64
	LoserID  int64
}

// RatingService асинхронно пересчитывает рейтинги предпочтений по исходам
// голосований. Сервис строго best-effort: переполненная очередь роняет
// исходы, а не обработку действий.
type RatingService interface {
	Enqueue(outcome PickOutcome)
	Run(ctx context.Context)
}

type ratingService struct {
	repo   repositories.RatingRepository
	queue  chan PickOutcome
	logger *slog.Logger
}

func NewRatingService(repo repositories.RatingRepository, logger *slog.Logger) RatingService {
	return &ratingService{
		repo:   repo,
		queue:  make(chan PickOutcome, ratingQueueSize),
		logger: logger,
	}
}

// Enqueue никогда не блокирует вызывающего: рейтинг не участвует в
// корректности турнира и при заторе просто теряет исход.
func (s *ratingService) Enqueue(outcome PickOutcome) {
	select {
	case s.queue <- outcome:
	default:
		s.logger.Warn("rating queue is full, outcome dropped",
			slog.Int("user_id", outcome.UserID),
			slog.Int64("winner_id", outcome.WinnerID))
	}
}

// Run по тикеру выгребает накопившиеся исходы до отмены контекста.
// Запускается одной горутиной из main; оставшиеся в очереди исходы при
// остановке теряются.
func (s *ratingService) Run(ctx context.Context) {
	ticker := time.NewTicker(ratingFlushInterval)
	defer ticker.Stop()
	s.logger.Info("rating worker started", slog.Duration("flush_interval", ratingFlushInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("rating worker stopped", slog.Int("pending", len(s.queue)))
			return
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

func (s *ratingService) drain(ctx context.Context) {
	for {
		select {
		case outcome := <-s.queue:
			if err := s.apply(ctx, outcome); err != nil {
				s.logger.Error("failed to apply rating outcome",
					slog.Int("user_id", outcome.UserID),
					slog.Int64("winner_id", outcome.WinnerID),
					slog.Int64("loser_id", outcome.LoserID),
					slog.Any("error", err))
			}
		default:
			return
		}
	}
}

func (s *ratingService) apply(ctx context.Context, outcome PickOutcome) error {
	winner, err := s.loadOrInit(ctx, outcome.UserID, outcome.WinnerID)
	if err != nil {
		return err
	}
	loser, err := s.loadOrInit(ctx, outcome.UserID, outcome.LoserID)
	if err != nil {
		return err
	}

	expectedWin := expectedScore(winner.Rating, loser.Rating)
	delta := int(math.Round(ratingKFactor * (1 - expectedWin)))

	winner.Rating += delta
	winner.MatchCount++
	winner.WinCount++

	loser.Rating -= delta
	loser.MatchCount++
	loser.LossCount++

	if err := s.repo.Upsert(ctx, winner); err != nil {
		return err
	}
	return s.repo.Upsert(ctx, loser)
}

func (s *ratingService) loadOrInit(ctx context.Context, userID int, candidateID int64) (*models.PreferenceRating, error) {
	rating, err := s.repo.Get(ctx, userID, candidateID)
	if err != nil {
		return nil, err
	}
	if rating == nil {
		rating = &models.PreferenceRating{
			UserID:      userID,
			CandidateID: candidateID,
			Rating:      ratingBase,
		}
	}
	return rating, nil
}

// expectedScore — классическая логистическая кривая Elo с базой 400.
func expectedScore(rating, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-rating)/400))
}

package services

import (
	"github.com/Dorofeev-A/movienight/models"
	"github.com/Dorofeev-A/movienight/storage"
)

// --- Общие хелперы ---

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isValidRoomStatusTransition(current, next models.RoomStatus) bool {
	if current == next {
		return true
	}
	allowedTransitions := map[models.RoomStatus][]models.RoomStatus{
		models.RoomStatusWaiting:   {models.RoomStatusActive, models.RoomStatusAbandoned},
		models.RoomStatusActive:    {models.RoomStatusCompleted, models.RoomStatusAbandoned},
		models.RoomStatusCompleted: {},
		models.RoomStatusAbandoned: {},
	}
	for _, allowedNextStatus := range allowedTransitions[current] {
		if next == allowedNextStatus {
			return true
		}
	}
	return false
}

// --- Хелперы для преобразования моделей в View ---

func participantViews(participants []*models.Participant) []ParticipantView {
	views := make([]ParticipantView, 0, len(participants))
	for _, p := range participants {
		if p == nil {
			continue
		}
		views = append(views, ParticipantView{
			UserID:   p.UserID,
			IsOwner:  p.IsOwner,
			IsActive: p.IsActive,
		})
	}
	return views
}

func activeUserIDs(participants []*models.Participant) []int {
	ids := make([]int, 0, len(participants))
	for _, p := range participants {
		if p != nil && p.IsActive {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

func countActive(participants []*models.Participant) int {
	n := 0
	for _, p := range participants {
		if p != nil && p.IsActive {
			n++
		}
	}
	return n
}

// --- Хелперы для заполнения URL постеров ---

func populateCandidatePosterURL(c *models.Candidate, uploader storage.FileUploader) {
	if c != nil && c.PosterKey != nil && *c.PosterKey != "" && uploader != nil {
		url := uploader.GetPublicURL(*c.PosterKey)
		c.PosterURL = &url
	}
}

func populateMatchPosterURLs(m *models.Match, uploader storage.FileUploader) {
	if m == nil {
		return
	}
	populateCandidatePosterURL(&m.A, uploader)
	populateCandidatePosterURL(&m.B, uploader)
}

func populateRoomWinnerPosterURL(room *models.Room, uploader storage.FileUploader) {
	if room != nil && room.WinnerPosterKey != nil && *room.WinnerPosterKey != "" && uploader != nil {
		url := uploader.GetPublicURL(*room.WinnerPosterKey)
		room.WinnerPosterURL = &url
	}
}

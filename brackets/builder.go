package brackets

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/Dorofeev-A/movienight/models"
)

const (
	// MinViablePool — минимальный размер пула, с которым стоит запускать турнир.
	// Меньше — добиваем кандидатами из резервного пула.
	MinViablePool = 4
	// MaxPoolSize ограничивает сетку сверху, чтобы турнир не затягивался.
	MaxPoolSize = 32
)

var ErrNotEnoughCandidates = errors.New("not enough candidates to build a bracket (minimum 2)")

// fallbackPool — фиксированный резервный пул. Это обычные кандидаты, а не
// плейсхолдеры: они попадают в сетку наравне с пользовательскими.
var fallbackPool = []models.Candidate{
	{ID: 900001, Title: "The Shawshank Redemption"},
	{ID: 900002, Title: "Spirited Away"},
	{ID: 900003, Title: "Back to the Future"},
	{ID: 900004, Title: "The Grand Budapest Hotel"},
	{ID: 900005, Title: "Mad Max: Fury Road"},
	{ID: 900006, Title: "Amélie"},
	{ID: 900007, Title: "The Thing"},
	{ID: 900008, Title: "Groundhog Day"},
}

// Bracket — результат построения: первый раунд и общее число раундов.
// Последующие раунды никогда не строятся заранее — их создаёт AdvanceRound.
type Bracket struct {
	TotalRounds int
	Pool        []models.Candidate
	Matches     []models.Match
}

// MergeCandidates объединяет списки двух участников по ID кандидата.
// Порядок — порядок первого появления (сначала список владельца комнаты,
// затем новые кандидаты гостя); у дубликатов накапливаются вкладчики.
func MergeCandidates(ownerID int, ownerList []models.Candidate, guestID int, guestList []models.Candidate) []models.Candidate {
	merged := make([]models.Candidate, 0, len(ownerList)+len(guestList))
	index := make(map[int64]int, len(ownerList)+len(guestList))

	appendList := func(userID int, list []models.Candidate) {
		for _, c := range list {
			if i, ok := index[c.ID]; ok {
				merged[i].AddedBy = appendContributor(merged[i].AddedBy, userID)
				continue
			}
			c.AddedBy = []int{userID}
			index[c.ID] = len(merged)
			merged = append(merged, c)
		}
	}
	appendList(ownerID, ownerList)
	appendList(guestID, guestList)

	return merged
}

// BuildBracket строит первый раунд из объединённого пула.
//
// Пул меньше MinViablePool добивается из fallbackPool (деградированный режим,
// не ошибка). Затем пул усекается до наибольшей степени двойки, не
// превышающей min(MaxPoolSize, len): отбрасывается хвост объединённого
// порядка, а не случайные кандидаты. Оставшиеся перемешиваются генератором,
// посеянным seed (свой на турнир), и спариваются последовательно:
// match[i] = (c[2i], c[2i+1]).
func BuildBracket(candidates []models.Candidate, seed int64) (*Bracket, error) {
	pool := append([]models.Candidate(nil), candidates...)

	if len(pool) < MinViablePool {
		pool = padWithFallback(pool)
	}
	if len(pool) < 2 {
		return nil, ErrNotEnoughCandidates
	}

	limit := len(pool)
	if limit > MaxPoolSize {
		limit = MaxPoolSize
	}
	size := largestPowerOfTwo(limit)
	pool = pool[:size]

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	totalRounds := 0
	for n := size; n > 1; n /= 2 {
		totalRounds++
	}

	matches := pairRound(pool, 1)

	return &Bracket{
		TotalRounds: totalRounds,
		Pool:        pool,
		Matches:     matches,
	}, nil
}

// pairRound спаривает кандидатов последовательно в матчи раунда round.
func pairRound(candidates []models.Candidate, round int) []models.Match {
	matches := make([]models.Match, 0, len(candidates)/2)
	for i := 0; i+1 < len(candidates); i += 2 {
		slot := i/2 + 1
		matches = append(matches, models.Match{
			UID:   fmt.Sprintf("R%dM%d", round, slot),
			Round: round,
			Slot:  slot,
			A:     candidates[i],
			B:     candidates[i+1],
		})
	}
	return matches
}

func padWithFallback(pool []models.Candidate) []models.Candidate {
	present := make(map[int64]bool, len(pool))
	for _, c := range pool {
		present[c.ID] = true
	}
	for _, fb := range fallbackPool {
		if len(pool) >= MinViablePool {
			break
		}
		if present[fb.ID] {
			continue
		}
		pool = append(pool, fb)
		present[fb.ID] = true
	}
	return pool
}

func largestPowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

func appendContributor(ids []int, userID int) []int {
	for _, id := range ids {
		if id == userID {
			return ids
		}
	}
	return append(ids, userID)
}

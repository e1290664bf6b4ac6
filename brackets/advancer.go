package brackets

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/Dorofeev-A/movienight/models"
)

var (
	ErrRoundIncomplete = errors.New("round is not complete: every match needs exactly two picks")
	ErrUnknownPickUID  = errors.New("pick references a match outside the current round")
)

// RoundResult — исход завершённого раунда: либо матчи следующего раунда,
// либо финальный матч, либо общий победитель.
type RoundResult struct {
	Winners     []models.Candidate
	NextRound   int
	NextMatches []models.Match
	Winner      *models.Candidate
}

// Completed сообщает, что турнир закончен и Winner определён.
func (r *RoundResult) Completed() bool {
	return r.Winner != nil
}

// RoundComplete — раунд завершён тогда и только тогда, когда у каждого матча
// ровно по одному Pick'у от каждого активного участника.
func RoundComplete(matches []models.Match, picks []models.Pick, activeUserIDs []int) bool {
	for _, m := range matches {
		voted := make(map[int]bool, len(activeUserIDs))
		for _, p := range picks {
			if p.MatchUID == m.UID {
				voted[p.UserID] = true
			}
		}
		for _, uid := range activeUserIDs {
			if !voted[uid] {
				return false
			}
		}
	}
	return true
}

// AdvanceRound подсчитывает победителя каждого матча раунда (большинство
// голосов, при равенстве — TieBreak) и формирует следующий шаг сетки.
// Победители спариваются последовательно без повторного перемешивания,
// чтобы порядок сетки оставался стабильным и прослеживаемым с первого раунда.
func AdvanceRound(matches []models.Match, picks []models.Pick) (*RoundResult, error) {
	if len(matches) == 0 {
		return nil, errors.New("no matches to advance")
	}

	byMatch := make(map[string][]models.Pick, len(matches))
	uids := make(map[string]bool, len(matches))
	for _, m := range matches {
		uids[m.UID] = true
	}
	for _, p := range picks {
		if !uids[p.MatchUID] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPickUID, p.MatchUID)
		}
		byMatch[p.MatchUID] = append(byMatch[p.MatchUID], p)
	}

	winners := make([]models.Candidate, 0, len(matches))
	for _, m := range matches {
		matchPicks := byMatch[m.UID]
		if len(matchPicks) != 2 {
			return nil, fmt.Errorf("%w: match %s has %d picks", ErrRoundIncomplete, m.UID, len(matchPicks))
		}

		votesA, votesB := 0, 0
		for _, p := range matchPicks {
			switch p.CandidateID {
			case m.A.ID:
				votesA++
			case m.B.ID:
				votesB++
			default:
				return nil, fmt.Errorf("pick for match %s references candidate %d not in the match", m.UID, p.CandidateID)
			}
		}

		switch {
		case votesA > votesB:
			winners = append(winners, m.A)
		case votesB > votesA:
			winners = append(winners, m.B)
		default:
			winners = append(winners, TieBreak(m.UID, m.A, m.B))
		}
	}

	currentRound := matches[0].Round
	result := &RoundResult{
		Winners:   winners,
		NextRound: currentRound + 1,
	}

	switch len(winners) {
	case 1:
		w := winners[0]
		result.Winner = &w
	case 2:
		// Финал строится напрямую из двух победителей.
		result.NextMatches = []models.Match{{
			UID:   fmt.Sprintf("R%dM1", result.NextRound),
			Round: result.NextRound,
			Slot:  1,
			A:     winners[0],
			B:     winners[1],
		}}
	default:
		result.NextMatches = pairRound(winners, result.NextRound)
	}

	return result, nil
}

// TieBreak выбирает победителя при равенстве голосов: детерминированный
// псевдослучайный розыгрыш, посеянный FNV-1a хэшем UID матча. Один и тот же
// матч всегда даёт один и тот же исход — политика воспроизводима в тестах.
func TieBreak(matchUID string, a, b models.Candidate) models.Candidate {
	h := fnv.New64a()
	h.Write([]byte(matchUID))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	if rng.Intn(2) == 0 {
		return a
	}
	return b
}

package app

import (
	"sort"

	"quiz-attempt-service/internal/domain"
)

// BuildLeaderboard ranks participants by their best submitted attempt.
//
// Per participant the highest score wins; equal scores keep the earliest
// submission. Standings are ordered by score desc, then submission time asc,
// then participant name. Open attempts are ignored.
func BuildLeaderboard(attempts []domain.Attempt) []domain.LeaderboardEntry {
	best := make(map[string]domain.Attempt)
	for _, attempt := range attempts {
		if attempt.State != domain.AttemptSubmitted || attempt.Result == nil || attempt.SubmittedAt == nil {
			continue
		}
		current, ok := best[attempt.Participant]
		if !ok || beats(attempt, current) {
			best[attempt.Participant] = attempt
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(best))
	for participant, attempt := range best {
		entries = append(entries, domain.LeaderboardEntry{
			Participant: participant,
			QuizID:      attempt.QuizID,
			AttemptID:   attempt.ID,
			Score:       attempt.Result.Score,
			Correct:     attempt.Result.Correct,
			Total:       attempt.Result.Total,
			SubmittedAt: *attempt.SubmittedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].SubmittedAt.Equal(entries[j].SubmittedAt) {
			return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
		}
		return entries[i].Participant < entries[j].Participant
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// beats reports whether candidate should replace current as a participant's best.
func beats(candidate, current domain.Attempt) bool {
	if candidate.Result.Score != current.Result.Score {
		return candidate.Result.Score > current.Result.Score
	}
	if !candidate.SubmittedAt.Equal(*current.SubmittedAt) {
		return candidate.SubmittedAt.Before(*current.SubmittedAt)
	}
	return candidate.ID < current.ID
}

package domain

import (
	"strings"
	"time"
)

// AttemptState is the lifecycle state of an attempt. Submitted is terminal.
type AttemptState string

const (
	AttemptOpen      AttemptState = "open"
	AttemptSubmitted AttemptState = "submitted"
)

// AttemptResult is fixed at submission time.
type AttemptResult struct {
	Score            float64 `json:"score"`
	Correct          int     `json:"correct"`
	Total            int     `json:"total"`
	TimeTakenSeconds *int    `json:"timeTakenSeconds,omitempty"`
}

// Attempt is one participant's run through a quiz.
type Attempt struct {
	ID          string            `json:"id"`
	QuizID      string            `json:"quizId"`
	Participant string            `json:"participant"`
	State       AttemptState      `json:"state"`
	Answers     map[string]string `json:"answers"` // questionID -> optionID
	CreatedAt   time.Time         `json:"createdAt"`
	SubmittedAt *time.Time        `json:"submittedAt,omitempty"`
	Result      *AttemptResult    `json:"result,omitempty"`
	// Version increases on every persisted change; stores compare-and-set on it.
	Version int64 `json:"version"`
}

// NewAttempt builds an open attempt with no answers.
func NewAttempt(id, quizID, participant string, createdAt time.Time) Attempt {
	return Attempt{
		ID:          id,
		QuizID:      quizID,
		Participant: participant,
		State:       AttemptOpen,
		Answers:     make(map[string]string),
		CreatedAt:   createdAt,
	}
}

// NormalizeParticipant trims the display name and rejects blank ones.
func NormalizeParticipant(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidParticipant
	}
	return name, nil
}

func (a Attempt) IsOpen() bool {
	return a.State == AttemptOpen
}

// Clone returns a deep copy so stores never share maps or pointers with callers.
func (a Attempt) Clone() Attempt {
	out := a
	out.Answers = make(map[string]string, len(a.Answers))
	for k, v := range a.Answers {
		out.Answers[k] = v
	}
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		out.SubmittedAt = &t
	}
	if a.Result != nil {
		r := *a.Result
		if a.Result.TimeTakenSeconds != nil {
			secs := *a.Result.TimeTakenSeconds
			r.TimeTakenSeconds = &secs
		}
		out.Result = &r
	}
	return out
}

// RecordAnswer validates the choice against quiz and stores it, replacing any
// earlier answer to the same question.
func (a *Attempt) RecordAnswer(quiz Quiz, questionID, optionID string) error {
	if !a.IsOpen() {
		return ErrAttemptNotOpen
	}
	question, ok := quiz.Question(questionID)
	if !ok {
		return ErrQuestionNotInQuiz
	}
	if !question.HasOption(optionID) {
		return ErrOptionNotFound
	}
	if a.Answers == nil {
		a.Answers = make(map[string]string)
	}
	a.Answers[questionID] = optionID
	return nil
}

// Submit grades the attempt against quiz and closes it.
func (a *Attempt) Submit(quiz Quiz, now time.Time, timeTakenSeconds *int) error {
	if !a.IsOpen() {
		return ErrAttemptNotOpen
	}
	if timeTakenSeconds != nil && *timeTakenSeconds < 0 {
		return ErrInvalidDuration
	}
	result := Grade(quiz, a.Answers)
	if timeTakenSeconds != nil {
		secs := *timeTakenSeconds
		result.TimeTakenSeconds = &secs
	}
	submittedAt := now
	a.State = AttemptSubmitted
	a.SubmittedAt = &submittedAt
	a.Result = &result
	return nil
}

// Grade scores answers over every question of quiz; unanswered questions
// count as incorrect. A quiz without questions scores 0.
func Grade(quiz Quiz, answers map[string]string) AttemptResult {
	result := AttemptResult{Total: len(quiz.Questions)}
	for _, question := range quiz.Questions {
		chosen, ok := answers[question.ID]
		if ok && question.IsCorrect(chosen) {
			result.Correct++
		}
	}
	if result.Total > 0 {
		result.Score = float64(result.Correct) / float64(result.Total)
	}
	return result
}

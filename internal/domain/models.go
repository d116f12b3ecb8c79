package domain

import (
	"errors"
	"fmt"
	"time"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Options []Option `json:"options" yaml:"options"`
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description"`
	Questions   []Question `json:"questions" yaml:"questions"`
}

// QuizSummary is the listing view of a quiz.
type QuizSummary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	TotalQuestions int    `json:"totalQuestions"`
}

// PublicOption is an option with the correctness flag withheld.
type PublicOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicQuestion is what participants see while taking a quiz.
type PublicQuestion struct {
	ID      string         `json:"id"`
	Prompt  string         `json:"prompt"`
	Options []PublicOption `json:"options"`
}

// Question looks up a question by ID.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

func (q Quiz) Summary() QuizSummary {
	return QuizSummary{
		ID:             q.ID,
		Title:          q.Title,
		Description:    q.Description,
		TotalQuestions: len(q.Questions),
	}
}

// PublicQuestions returns the questions in order without correct answers.
func (q Quiz) PublicQuestions() []PublicQuestion {
	out := make([]PublicQuestion, 0, len(q.Questions))
	for _, question := range q.Questions {
		options := make([]PublicOption, 0, len(question.Options))
		for _, opt := range question.Options {
			options = append(options, PublicOption{ID: opt.ID, Text: opt.Text})
		}
		out = append(out, PublicQuestion{ID: question.ID, Prompt: question.Prompt, Options: options})
	}
	return out
}

// Validate checks the structural rules quiz content must follow before it is
// served: unique question IDs, at least two options and exactly one correct
// option per question.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return errors.New("missing quiz id")
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("quiz %s: question %d has no id", q.ID, i)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("quiz %s: duplicate question id %s", q.ID, question.ID)
		}
		seen[question.ID] = struct{}{}

		if len(question.Options) < 2 {
			return fmt.Errorf("quiz %s: question %s needs at least two options", q.ID, question.ID)
		}
		correct := 0
		optionIDs := make(map[string]struct{}, len(question.Options))
		for _, opt := range question.Options {
			if _, dup := optionIDs[opt.ID]; dup || opt.ID == "" {
				return fmt.Errorf("quiz %s: question %s has empty or duplicate option id %q", q.ID, question.ID, opt.ID)
			}
			optionIDs[opt.ID] = struct{}{}
			if opt.Correct {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("quiz %s: question %s must have exactly one correct option, got %d", q.ID, question.ID, correct)
		}
	}
	return nil
}

// HasOption reports whether optionID is one of the question's options.
func (q Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// IsCorrect reports whether optionID is the designated correct option.
func (q Question) IsCorrect(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt.Correct
		}
	}
	return false
}

// LeaderboardEntry is one ranked participant, derived from their best
// submitted attempt.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	Participant string    `json:"participant"`
	QuizID      string    `json:"quizId"`
	AttemptID   string    `json:"attemptId"`
	Score       float64   `json:"score"`
	Correct     int       `json:"correct"`
	Total       int       `json:"total"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Leaderboard captures the ordered standings pushed to feed subscribers.
// An empty QuizID means standings across all quizzes.
type Leaderboard struct {
	QuizID    string             `json:"quizId,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

package domain

import (
	"errors"
	"fmt"
)

// Error categories. Specific errors below wrap one of these so callers can
// branch with errors.Is on the category alone.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidReference = errors.New("invalid reference")
	ErrInvalidOption    = errors.New("invalid option")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict")
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrAttemptNotFound is returned for unknown attempt IDs.
	ErrAttemptNotFound = fmt.Errorf("attempt %w", ErrNotFound)
	// ErrAttemptNotOpen is returned when mutating or submitting a submitted attempt.
	ErrAttemptNotOpen = fmt.Errorf("attempt is not open: %w", ErrInvalidState)
	// ErrQuestionNotInQuiz indicates a question ID outside the attempt's quiz.
	ErrQuestionNotInQuiz = fmt.Errorf("question does not belong to quiz: %w", ErrInvalidReference)
	// ErrOptionNotFound indicates a chosen option outside the question's options.
	ErrOptionNotFound = fmt.Errorf("option not found: %w", ErrInvalidOption)
	ErrInvalidParticipant = fmt.Errorf("participant is required: %w", ErrInvalidInput)
	ErrInvalidDuration    = fmt.Errorf("time taken must not be negative: %w", ErrInvalidInput)
	// ErrConcurrentUpdate is returned by stores when a compare-and-set on the
	// attempt version loses against another writer.
	ErrConcurrentUpdate = fmt.Errorf("attempt was modified concurrently: %w", ErrConflict)
)

package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error)
}

// AttemptRepository persists attempts.
//
// Update must store attempt only if the persisted version still equals
// expectedVersion, returning domain.ErrConcurrentUpdate otherwise and
// domain.ErrAttemptNotFound for unknown IDs. ListSubmitted with an empty
// quizID returns submitted attempts across all quizzes.
type AttemptRepository interface {
	Create(ctx context.Context, attempt domain.Attempt) error
	Get(ctx context.Context, attemptID string) (domain.Attempt, error)
	Update(ctx context.Context, attempt domain.Attempt, expectedVersion int64) error
	ListSubmitted(ctx context.Context, quizID string) ([]domain.Attempt, error)
}

// AttemptService owns the attempt lifecycle and the leaderboard read surface.
type AttemptService struct {
	attempts AttemptRepository
	quizzes  QuizRepository
	locks    *keyedLocks
	// feedLocks orders snapshot-and-publish per feed key.
	feedLocks *keyedLocks
	feed      *LeaderboardFeed
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option customises an AttemptService.
type Option func(*AttemptService)

// WithClock is mostly useful in tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AttemptService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *AttemptService) { s.newID = newID }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *AttemptService) { s.logger = logger }
}

func NewAttemptService(attempts AttemptRepository, quizzes QuizRepository, opts ...Option) *AttemptService {
	s := &AttemptService{
		attempts:  attempts,
		quizzes:   quizzes,
		locks:     newKeyedLocks(),
		feedLocks: newKeyedLocks(),
		feed:      NewLeaderboardFeed(),
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListQuizzes is a read-through to the quiz store.
func (s *AttemptService) ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	return s.quizzes.ListQuizzes(ctx)
}

// QuizQuestions returns a quiz's questions in order, correct answers withheld.
func (s *AttemptService) QuizQuestions(ctx context.Context, quizID string) ([]domain.PublicQuestion, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return quiz.PublicQuestions(), nil
}

// Start opens a new attempt on quizID for participant.
func (s *AttemptService) Start(ctx context.Context, quizID, participant string) (domain.Attempt, error) {
	participant, err := domain.NormalizeParticipant(participant)
	if err != nil {
		return domain.Attempt{}, err
	}
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Attempt{}, err
	}

	attempt := domain.NewAttempt(s.newID(), quizID, participant, s.now())
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return domain.Attempt{}, err
	}
	s.logger.Info("attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("quiz_id", quizID),
		zap.String("participant", participant),
	)
	return attempt, nil
}

// RecordAnswer stores participant's choice for one question while the
// attempt is open. Re-answering a question overwrites the earlier choice.
func (s *AttemptService) RecordAnswer(ctx context.Context, attemptID, questionID, optionID string) error {
	unlock := s.locks.lock(attemptID)
	defer unlock()

	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return err
	}
	if !attempt.IsOpen() {
		return domain.ErrAttemptNotOpen
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return err
	}
	if err := attempt.RecordAnswer(quiz, questionID, optionID); err != nil {
		return err
	}
	return s.save(ctx, attempt)
}

// Submit grades and closes the attempt. Resubmission fails with
// domain.ErrAttemptNotOpen and leaves the stored attempt untouched.
func (s *AttemptService) Submit(ctx context.Context, attemptID string, timeTakenSeconds *int) (domain.Attempt, error) {
	unlock := s.locks.lock(attemptID)
	attempt, err := s.submitLocked(ctx, attemptID, timeTakenSeconds)
	unlock()
	if err != nil {
		return domain.Attempt{}, err
	}

	s.logger.Info("attempt submitted",
		zap.String("attempt_id", attempt.ID),
		zap.String("quiz_id", attempt.QuizID),
		zap.Float64("score", attempt.Result.Score),
	)
	s.publish(ctx, attempt.QuizID)
	return attempt, nil
}

func (s *AttemptService) submitLocked(ctx context.Context, attemptID string, timeTakenSeconds *int) (domain.Attempt, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !attempt.IsOpen() {
		return domain.Attempt{}, domain.ErrAttemptNotOpen
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := attempt.Submit(quiz, s.now(), timeTakenSeconds); err != nil {
		return domain.Attempt{}, err
	}
	if err := s.save(ctx, attempt); err != nil {
		return domain.Attempt{}, err
	}
	attempt.Version++
	return attempt, nil
}

// Get returns the attempt's current state.
func (s *AttemptService) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return s.attempts.Get(ctx, attemptID)
}

// Leaderboard ranks submitted attempts, optionally for one quiz. limit <= 0
// returns every participant.
func (s *AttemptService) Leaderboard(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error) {
	attempts, err := s.attempts.ListSubmitted(ctx, quizID)
	if err != nil {
		return nil, err
	}
	entries := BuildLeaderboard(attempts)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Subscribe returns a channel that receives leaderboard updates for a quiz
// ("" for all quizzes). The caller must invoke the returned cancel function
// to avoid leaks.
func (s *AttemptService) Subscribe(ctx context.Context, quizID string) (<-chan domain.Leaderboard, func(), error) {
	if quizID != "" {
		if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
			return nil, nil, err
		}
	}
	unlock := s.feedLocks.lock(quizID)
	defer unlock()
	initial, err := s.snapshot(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.feed.Subscribe(quizID, initial)
	return ch, cancel, nil
}

// save persists attempt with a compare-and-set on its loaded version.
func (s *AttemptService) save(ctx context.Context, attempt domain.Attempt) error {
	expected := attempt.Version
	attempt.Version = expected + 1
	return s.attempts.Update(ctx, attempt, expected)
}

// publish sends fresh standings for quizID and the cross-quiz feed. Snapshots
// for one key are taken and delivered under that key's lock, so the last one
// a subscriber receives always reflects every submission stored before it.
func (s *AttemptService) publish(ctx context.Context, quizID string) {
	for _, key := range []string{quizID, ""} {
		s.publishKey(ctx, key)
	}
}

func (s *AttemptService) publishKey(ctx context.Context, key string) {
	unlock := s.feedLocks.lock(key)
	defer unlock()
	if !s.feed.HasSubscribers(key) {
		return
	}
	lb, err := s.snapshot(ctx, key)
	if err != nil {
		s.logger.Warn("leaderboard snapshot failed", zap.String("quiz_id", key), zap.Error(err))
		return
	}
	s.feed.Publish(lb)
}

func (s *AttemptService) snapshot(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	entries, err := s.Leaderboard(ctx, quizID, 0)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.Leaderboard{QuizID: quizID, Entries: entries, UpdatedAt: s.now()}, nil
}

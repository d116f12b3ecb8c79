package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-attempt-service/internal/domain"
)

type attemptModel struct {
	bun.BaseModel `bun:"table:attempts"`

	ID               string            `bun:"id,pk"`
	QuizID           string            `bun:"quiz_id,notnull"`
	Participant      string            `bun:"participant,notnull"`
	State            string            `bun:"state,notnull"`
	Answers          map[string]string `bun:"answers,type:jsonb,notnull"`
	Version          int64             `bun:"version,notnull"`
	CreatedAt        time.Time         `bun:"created_at,notnull"`
	SubmittedAt      *time.Time        `bun:"submitted_at"`
	Score            *float64          `bun:"score"`
	CorrectCount     *int              `bun:"correct_count"`
	TotalQuestions   *int              `bun:"total_questions"`
	TimeTakenSeconds *int              `bun:"time_taken_seconds"`
}

func toModel(a domain.Attempt) *attemptModel {
	answers := a.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	m := &attemptModel{
		ID:          a.ID,
		QuizID:      a.QuizID,
		Participant: a.Participant,
		State:       string(a.State),
		Answers:     answers,
		Version:     a.Version,
		CreatedAt:   a.CreatedAt,
		SubmittedAt: a.SubmittedAt,
	}
	if a.Result != nil {
		score, correct, total := a.Result.Score, a.Result.Correct, a.Result.Total
		m.Score = &score
		m.CorrectCount = &correct
		m.TotalQuestions = &total
		m.TimeTakenSeconds = a.Result.TimeTakenSeconds
	}
	return m
}

func (m *attemptModel) toDomain() domain.Attempt {
	a := domain.Attempt{
		ID:          m.ID,
		QuizID:      m.QuizID,
		Participant: m.Participant,
		State:       domain.AttemptState(m.State),
		Answers:     m.Answers,
		Version:     m.Version,
		CreatedAt:   m.CreatedAt.UTC(),
	}
	if a.Answers == nil {
		a.Answers = map[string]string{}
	}
	if m.SubmittedAt != nil {
		t := m.SubmittedAt.UTC()
		a.SubmittedAt = &t
	}
	if m.Score != nil {
		result := domain.AttemptResult{Score: *m.Score, TimeTakenSeconds: m.TimeTakenSeconds}
		if m.CorrectCount != nil {
			result.Correct = *m.CorrectCount
		}
		if m.TotalQuestions != nil {
			result.Total = *m.TotalQuestions
		}
		a.Result = &result
	}
	return a
}

// AttemptStore persists attempts in Postgres through bun. Updates are
// conditional on the version column.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) Create(ctx context.Context, attempt domain.Attempt) error {
	_, err := s.db.NewInsert().Model(toModel(attempt)).Exec(ctx)
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return fmt.Errorf("attempt %s already exists: %w", attempt.ID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	m := new(attemptModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("select attempt: %w", err)
	}
	return m.toDomain(), nil
}

func (s *AttemptStore) Update(ctx context.Context, attempt domain.Attempt, expectedVersion int64) error {
	res, err := s.db.NewUpdate().
		Model(toModel(attempt)).
		WherePK().
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if n > 0 {
		return nil
	}

	exists, err := s.db.NewSelect().Model((*attemptModel)(nil)).Where("id = ?", attempt.ID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check attempt: %w", err)
	}
	if !exists {
		return domain.ErrAttemptNotFound
	}
	return domain.ErrConcurrentUpdate
}

func (s *AttemptStore) ListSubmitted(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	var models []attemptModel
	q := s.db.NewSelect().
		Model(&models).
		Where("state = ?", string(domain.AttemptSubmitted)).
		OrderExpr("submitted_at ASC, id ASC")
	if quizID != "" {
		q = q.Where("quiz_id = ?", quizID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list submitted attempts: %w", err)
	}

	out := make([]domain.Attempt, 0, len(models))
	for i := range models {
		out = append(out, models[i].toDomain())
	}
	return out, nil
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/domain"
)

// AttemptStore keeps attempts in Redis.
//
// Layout:
//
//	attempt:{id}                    JSON-encoded domain.Attempt
//	attempts:submitted:all          set of submitted attempt IDs
//	attempts:submitted:quiz:{quiz}  set of submitted attempt IDs per quiz
//
// Open attempts carry openTTL so abandoned ones expire; submitting persists
// the key without expiry because the leaderboard is derived from it.
// Updates use WATCH/MULTI so the version check and write are atomic.
type AttemptStore struct {
	client  *redis.Client
	openTTL time.Duration
}

func NewAttemptStore(client *redis.Client, openTTL time.Duration) *AttemptStore {
	return &AttemptStore{client: client, openTTL: openTTL}
}

func (s *AttemptStore) Create(ctx context.Context, attempt domain.Attempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(attempt.ID), data, s.ttlFor(attempt)).Result()
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	if !ok {
		return fmt.Errorf("attempt %s already exists: %w", attempt.ID, domain.ErrConflict)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	data, err := s.client.Get(ctx, s.key(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return decodeAttempt(data)
}

func (s *AttemptStore) Update(ctx context.Context, attempt domain.Attempt, expectedVersion int64) error {
	key := s.key(attempt.ID)
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrAttemptNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeAttempt(raw)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return domain.ErrConcurrentUpdate
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttlFor(attempt))
			if attempt.State == domain.AttemptSubmitted {
				pipe.SAdd(ctx, s.submittedKey(""), attempt.ID)
				pipe.SAdd(ctx, s.submittedKey(attempt.QuizID), attempt.ID)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return domain.ErrConcurrentUpdate
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		return err
	default:
		return fmt.Errorf("update attempt: %w", err)
	}
}

// ListSubmitted returns submitted attempts ordered by submission time.
func (s *AttemptStore) ListSubmitted(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	ids, err := s.client.SMembers(ctx, s.submittedKey(quizID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list submitted ids: %w", err)
	}
	out := make([]domain.Attempt, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load submitted attempts: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		attempt, err := decodeAttempt([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(*out[j].SubmittedAt)
	})
	return out, nil
}

func (s *AttemptStore) ttlFor(attempt domain.Attempt) time.Duration {
	if attempt.State == domain.AttemptSubmitted {
		return 0
	}
	return s.openTTL
}

func (s *AttemptStore) key(attemptID string) string {
	return "attempt:" + attemptID
}

func (s *AttemptStore) submittedKey(quizID string) string {
	if quizID == "" {
		return "attempts:submitted:all"
	}
	return "attempts:submitted:quiz:" + quizID
}

func decodeAttempt(data []byte) (domain.Attempt, error) {
	var attempt domain.Attempt
	if err := json.Unmarshal(data, &attempt); err != nil {
		return domain.Attempt{}, fmt.Errorf("decode attempt: %w", err)
	}
	if attempt.Answers == nil {
		attempt.Answers = map[string]string{}
	}
	return attempt, nil
}

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quiz-attempt-service/internal/domain"
)

func TestAttemptStoreSetsAndClearsExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewAttemptStore(newClient(mr), time.Hour)
	quiz := sampleQuiz()

	attempt := domain.NewAttempt("a1", quiz.ID, "alice", time.Now().UTC())
	if err := store.Create(ctx, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ttl := mr.TTL("attempt:a1"); ttl != time.Hour {
		t.Fatalf("expected open attempt ttl 1h, got %v", ttl)
	}
	if err := store.Create(ctx, attempt); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate create to conflict, got %v", err)
	}

	if err := attempt.RecordAnswer(quiz, "q1", "o2"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := attempt.Submit(quiz, time.Now().UTC(), nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	attempt.Version = 1
	if err := store.Update(ctx, attempt, 0); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ttl := mr.TTL("attempt:a1"); ttl != 0 {
		t.Fatalf("expected submitted attempt to persist, ttl %v", ttl)
	}
	if ok, _ := mr.SIsMember("attempts:submitted:quiz:quiz-1", "a1"); !ok {
		t.Fatalf("expected attempt indexed for quiz")
	}

	loaded, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.State != domain.AttemptSubmitted || loaded.Result == nil || loaded.Result.Score != 1 {
		t.Fatalf("unexpected loaded attempt %+v", loaded)
	}
	if loaded.Answers["q1"] != "o2" || loaded.Version != 1 {
		t.Fatalf("unexpected answers/version %+v", loaded)
	}
}

func TestAttemptStoreCompareAndSet(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewAttemptStore(newClient(mr), 0)

	attempt := domain.NewAttempt("a1", "quiz-1", "alice", time.Now().UTC())
	if err := store.Create(ctx, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}
	attempt.Version = 1
	if err := store.Update(ctx, attempt, 0); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := store.Update(ctx, attempt, 0); !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected stale version to conflict, got %v", err)
	}
	if err := store.Update(ctx, domain.Attempt{ID: "missing"}, 0); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAttemptStoreListSubmitted(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewAttemptStore(newClient(mr), time.Hour)
	quiz := sampleQuiz()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	empty, err := store.ListSubmitted(ctx, "")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v %v", empty, err)
	}

	for i, id := range []string{"a1", "a2", "a3"} {
		quizID := "quiz-1"
		if id == "a3" {
			quizID = "quiz-2"
		}
		attempt := domain.NewAttempt(id, quizID, "alice", base)
		if err := store.Create(ctx, attempt); err != nil {
			t.Fatalf("create: %v", err)
		}
		if id == "a2" {
			continue
		}
		if err := attempt.Submit(quiz, base.Add(-time.Duration(i)*time.Minute), nil); err != nil {
			t.Fatalf("submit: %v", err)
		}
		attempt.Version = 1
		if err := store.Update(ctx, attempt, 0); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	all, err := store.ListSubmitted(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].ID != "a3" || all[1].ID != "a1" {
		t.Fatalf("expected a3 then a1, got %+v", all)
	}
	one, err := store.ListSubmitted(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("list quiz-1: %v", err)
	}
	if len(one) != 1 || one[0].ID != "a1" {
		t.Fatalf("expected only a1, got %+v", one)
	}
}

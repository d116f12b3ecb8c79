package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func TestWebSocketLeaderboardFeed(t *testing.T) {
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewAttemptService(memory.NewAttemptStore(), quizRepo)
	server := httptest.NewServer(NewRouter(service, nil))
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/leaderboard/ws?quizId=quiz-1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial snapshot first.
	initial := readLeaderboard(t, conn)
	if initial.QuizID != "quiz-1" || len(initial.Entries) != 0 {
		t.Fatalf("expected empty quiz-1 snapshot, got %+v", initial)
	}

	ctx := context.Background()
	attempt, err := service.Start(ctx, "quiz-1", "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.RecordAnswer(ctx, attempt.ID, "q1", "o2"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := service.Submit(ctx, attempt.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	update := readLeaderboard(t, conn)
	if len(update.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", update)
	}
	if got := update.Entries[0]; got.Participant != "alice" || got.Rank != 1 || got.Score != 0.5 {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestWebSocketUnknownQuizRejected(t *testing.T) {
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewAttemptService(memory.NewAttemptStore(), quizRepo)
	server := httptest.NewServer(NewRouter(service, nil))
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/leaderboard/ws?quizId=missing"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 response, got %+v", resp)
	}
}

func readLeaderboard(t *testing.T, conn *websocket.Conn) domain.Leaderboard {
	t.Helper()
	var msg outboundMessage[domain.Leaderboard]
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "leaderboard" {
		t.Fatalf("expected leaderboard message, got %s", msg.Type)
	}
	return msg.Payload
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Arithmetic",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID:     "q2",
					Prompt: "What is 3 * 3?",
					Options: []domain.Option{
						{ID: "o1", Text: "9", Correct: true},
						{ID: "o2", Text: "6"},
						{ID: "o3", Text: "12"},
					},
				},
			},
		},
	}
}

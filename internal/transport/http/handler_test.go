package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewAttemptService(memory.NewAttemptStore(), quizRepo)
	return NewRouter(service, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func startAttempt(t *testing.T, h http.Handler, participant string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/attempts/start", startAttemptRequest{QuizID: "quiz-1", Participant: participant})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[attemptResponse](t, rec).ID
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Healthy", decode[map[string]string](t, rec)["message"])

	rec = doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuizEndpointsHideCorrectAnswers(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/quizzes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decode[[]domain.QuizSummary](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].TotalQuestions)

	rec = doJSON(t, h, http.MethodGet, "/quizzes/quiz-1/questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"correct"`)
	questions := decode[questionsResponse](t, rec)
	assert.Equal(t, "quiz-1", questions.QuizID)
	assert.Len(t, questions.Questions, 2)

	rec = doJSON(t, h, http.MethodGet, "/quizzes/missing/questions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorResponse](t, rec).Code)
}

func TestAttemptFlow(t *testing.T) {
	h := newTestRouter(t)
	id := startAttempt(t, h, "alice")

	rec := doJSON(t, h, http.MethodPost, "/attempts/"+id+"/answer", answerRequest{QuestionID: "q1", ChosenOption: "o2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	rec = doJSON(t, h, http.MethodGet, "/attempts/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	open := decode[attemptResponse](t, rec)
	assert.Equal(t, "open", open.State)
	assert.Equal(t, 1, open.AnswersCount)
	assert.Nil(t, open.Score)

	took := 42
	rec = doJSON(t, h, http.MethodPost, "/attempts/"+id+"/submit", submitRequest{TimeTakenSeconds: &took})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[attemptResponse](t, rec)
	assert.Equal(t, "submitted", done.State)
	require.NotNil(t, done.Score)
	assert.InDelta(t, 0.5, *done.Score, 1e-9)
	assert.Equal(t, 1, *done.Correct)
	assert.Equal(t, 2, *done.TotalQuestions)
	assert.Equal(t, 42, *done.TimeTakenSeconds)
	assert.NotNil(t, done.SubmittedAt)

	rec = doJSON(t, h, http.MethodPost, "/attempts/"+id+"/submit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode[errorResponse](t, rec).Code)

	rec = doJSON(t, h, http.MethodPost, "/attempts/"+id+"/answer", answerRequest{QuestionID: "q2", ChosenOption: "o1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitWithoutBody(t *testing.T) {
	h := newTestRouter(t)
	id := startAttempt(t, h, "bob")

	req := httptest.NewRequest(http.MethodPost, "/attempts/"+id+"/submit", http.NoBody)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[attemptResponse](t, rec)
	assert.Equal(t, 0.0, *done.Score)
	assert.Nil(t, done.TimeTakenSeconds)
}

func TestErrorMapping(t *testing.T) {
	h := newTestRouter(t)
	id := startAttempt(t, h, "carol")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown quiz", http.MethodPost, "/attempts/start", startAttemptRequest{QuizID: "nope", Participant: "x"}, http.StatusNotFound, "not_found"},
		{"missing quiz id", http.MethodPost, "/attempts/start", startAttemptRequest{Participant: "x"}, http.StatusBadRequest, "invalid_input"},
		{"blank participant", http.MethodPost, "/attempts/start", startAttemptRequest{QuizID: "quiz-1", Participant: "  "}, http.StatusBadRequest, "invalid_input"},
		{"unknown attempt", http.MethodGet, "/attempts/missing", nil, http.StatusNotFound, "not_found"},
		{"foreign question", http.MethodPost, "/attempts/" + id + "/answer", answerRequest{QuestionID: "zz", ChosenOption: "o1"}, http.StatusUnprocessableEntity, "invalid_reference"},
		{"unknown option", http.MethodPost, "/attempts/" + id + "/answer", answerRequest{QuestionID: "q1", ChosenOption: "o9"}, http.StatusUnprocessableEntity, "invalid_option"},
		{"negative duration", http.MethodPost, "/attempts/" + id + "/submit", map[string]int{"timeTakenSeconds": -1}, http.StatusBadRequest, "invalid_input"},
		{"bad limit", http.MethodGet, "/leaderboard?limit=0", nil, http.StatusBadRequest, "invalid_input"},
		{"limit too large", http.MethodGet, "/leaderboard?limit=101", nil, http.StatusBadRequest, "invalid_input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decode[errorResponse](t, rec).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/attempts/start", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	h := newTestRouter(t)

	play := func(participant string, answers map[string]string) {
		id := startAttempt(t, h, participant)
		for q, o := range answers {
			rec := doJSON(t, h, http.MethodPost, "/attempts/"+id+"/answer", answerRequest{QuestionID: q, ChosenOption: o})
			require.Equal(t, http.StatusOK, rec.Code)
		}
		rec := doJSON(t, h, http.MethodPost, "/attempts/"+id+"/submit", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	play("alice", map[string]string{"q1": "o2"})
	play("bob", map[string]string{"q1": "o2", "q2": "o1"})
	play("alice", map[string]string{"q1": "o1"})

	rec := doJSON(t, h, http.MethodGet, "/leaderboard?quizId=quiz-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lb := decode[leaderboardResponse](t, rec)
	assert.Equal(t, "quiz-1", lb.QuizID)
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, "bob", lb.Entries[0].Participant)
	assert.Equal(t, 1, lb.Entries[0].Rank)
	assert.Equal(t, "alice", lb.Entries[1].Participant)
	assert.InDelta(t, 0.5, lb.Entries[1].Score, 1e-9)

	rec = doJSON(t, h, http.MethodGet, "/leaderboard?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[leaderboardResponse](t, rec).Entries, 1)

	rec = doJSON(t, h, http.MethodGet, "/leaderboard?quizId=unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[leaderboardResponse](t, rec).Entries)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodOptions, "/attempts/start", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverReturns500(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Recover(zap.NewNop()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decode[errorResponse](t, rec).Code)
}

func TestPanicsAreStillAccessLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := withMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), zap.New(core))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/attempts/a1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	access := logs.FilterMessage("http request").All()
	require.Len(t, access, 1)
	assert.Equal(t, int64(http.StatusInternalServerError), access[0].ContextMap()["status"])
	assert.Equal(t, "/attempts/a1", access[0].ContextMap()["path"])
	assert.Equal(t, 1, logs.FilterMessage("handler panic").Len())
}

func TestLeaderboardDefaultLimit(t *testing.T) {
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewAttemptService(memory.NewAttemptStore(), quizRepo)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		attempt, err := service.Start(ctx, "quiz-1", fmt.Sprintf("player-%02d", i))
		require.NoError(t, err)
		_, err = service.Submit(ctx, attempt.ID, nil)
		require.NoError(t, err)
	}
	h := NewRouter(service, nil)

	rec := doJSON(t, h, http.MethodGet, "/leaderboard?quizId=quiz-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[leaderboardResponse](t, rec).Entries, 20)

	rec = doJSON(t, h, http.MethodGet, "/leaderboard?quizId=quiz-1&limit=100", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[leaderboardResponse](t, rec).Entries, 25)
}

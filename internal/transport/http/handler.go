package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

const (
	defaultLeaderboardLimit = 20
	maxLeaderboardLimit     = 100
)

// Handler serves the REST API over the attempt service.
type Handler struct {
	service *app.AttemptService
	logger  *zap.Logger
}

func NewHandler(service *app.AttemptService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// NewRouter wires every route, including the websocket feed, behind the
// logging, recovery and CORS middleware.
func NewRouter(service *app.AttemptService, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewHandler(service, logger)
	ws := NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Health)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /quizzes", h.ListQuizzes)
	mux.HandleFunc("GET /quizzes/{quiz_id}/questions", h.QuizQuestions)
	mux.HandleFunc("POST /attempts/start", h.StartAttempt)
	mux.HandleFunc("POST /attempts/{attempt_id}/answer", h.RecordAnswer)
	mux.HandleFunc("POST /attempts/{attempt_id}/submit", h.SubmitAttempt)
	mux.HandleFunc("GET /attempts/{attempt_id}", h.GetAttempt)
	mux.HandleFunc("GET /leaderboard", h.Leaderboard)
	mux.HandleFunc("GET /leaderboard/ws", ws.ServeWS)

	return withMiddleware(mux, logger)
}

// withMiddleware logs outermost so recovered panics still get an access line.
func withMiddleware(h http.Handler, logger *zap.Logger) http.Handler {
	return Chain(h, RequestLogger(logger), Recover(logger), CORS)
}

type startAttemptRequest struct {
	QuizID      string `json:"quizId"`
	Participant string `json:"participant"`
}

type answerRequest struct {
	QuestionID   string `json:"questionId"`
	ChosenOption string `json:"chosenOption"`
}

type submitRequest struct {
	TimeTakenSeconds *int `json:"timeTakenSeconds"`
}

type attemptResponse struct {
	ID               string            `json:"id"`
	QuizID           string            `json:"quizId"`
	Participant      string            `json:"participant"`
	State            string            `json:"state"`
	Answers          map[string]string `json:"answers"`
	AnswersCount     int               `json:"answersCount"`
	CreatedAt        time.Time         `json:"createdAt"`
	SubmittedAt      *time.Time        `json:"submittedAt,omitempty"`
	Score            *float64          `json:"score,omitempty"`
	Correct          *int              `json:"correct,omitempty"`
	TotalQuestions   *int              `json:"totalQuestions,omitempty"`
	TimeTakenSeconds *int              `json:"timeTakenSeconds,omitempty"`
}

type questionsResponse struct {
	QuizID    string                  `json:"quizId"`
	Questions []domain.PublicQuestion `json:"questions"`
}

type leaderboardResponse struct {
	QuizID  string                    `json:"quizId,omitempty"`
	Entries []domain.LeaderboardEntry `json:"entries"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Healthy"})
}

func (h *Handler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.service.ListQuizzes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *Handler) QuizQuestions(w http.ResponseWriter, r *http.Request) {
	quizID := strings.TrimSpace(r.PathValue("quiz_id"))
	questions, err := h.service.QuizQuestions(r.Context(), quizID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questionsResponse{QuizID: quizID, Questions: questions})
}

func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	var req startAttemptRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.QuizID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "quizId is required", Code: "invalid_input"})
		return
	}
	attempt, err := h.service.Start(r.Context(), strings.TrimSpace(req.QuizID), req.Participant)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttemptResponse(attempt))
}

func (h *Handler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	err := h.service.RecordAnswer(r.Context(), r.PathValue("attempt_id"), req.QuestionID, req.ChosenOption)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	attempt, err := h.service.Submit(r.Context(), r.PathValue("attempt_id"), req.TimeTakenSeconds)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.Get(r.Context(), r.PathValue("attempt_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(attempt))
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	quizID := strings.TrimSpace(r.URL.Query().Get("quizId"))
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_input"})
		return
	}
	entries, err := h.service.Leaderboard(r.Context(), quizID, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{QuizID: quizID, Entries: entries})
}

// parseLimit defaults to 20 when absent and otherwise requires 1..100.
func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultLeaderboardLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxLeaderboardLimit {
		return 0, errors.New("limit must be an integer between 1 and 100")
	}
	return limit, nil
}

func toAttemptResponse(a domain.Attempt) attemptResponse {
	answers := a.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	resp := attemptResponse{
		ID:           a.ID,
		QuizID:       a.QuizID,
		Participant:  a.Participant,
		State:        string(a.State),
		Answers:      answers,
		AnswersCount: len(answers),
		CreatedAt:    a.CreatedAt,
		SubmittedAt:  a.SubmittedAt,
	}
	if a.Result != nil {
		score, correct, total := a.Result.Score, a.Result.Correct, a.Result.Total
		resp.Score = &score
		resp.Correct = &correct
		resp.TotalQuestions = &total
		resp.TimeTakenSeconds = a.Result.TimeTakenSeconds
	}
	return resp
}

// decodeJSON writes a 400 and returns false on malformed input. allowEmpty
// accepts a missing body for endpoints whose payload is optional.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: "invalid_input"})
	return false
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "request failed"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInvalidReference):
		return http.StatusUnprocessableEntity, "invalid_reference"
	case errors.Is(err, domain.ErrInvalidOption):
		return http.StatusUnprocessableEntity, "invalid_option"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/provafacil/simulado-backend/internal/middleware"
	"github.com/provafacil/simulado-backend/internal/model"
	"github.com/provafacil/simulado-backend/internal/repository"
	"github.com/provafacil/simulado-backend/internal/response"
	"github.com/provafacil/simulado-backend/internal/service"
	"github.com/provafacil/simulado-backend/internal/session"
	"github.com/provafacil/simulado-backend/internal/validator"
)

// ParticipantHandler handles participant-facing endpoints: lobby, attempt
// lifecycle, answers, state reload and results.
type ParticipantHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
}

// NewParticipantHandler creates a new ParticipantHandler.
func NewParticipantHandler(attemptService *service.AttemptService, examService *service.ExamService) *ParticipantHandler {
	return &ParticipantHandler{
		attemptService: attemptService,
		examService:    examService,
	}
}

// GetLobby godoc
// GET /api/v1/participant/lobby
// Returns published exams with the participant's attempt state overlaid.
func (h *ParticipantHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.attemptService.GetLobby(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if lobby == nil {
		lobby = []service.LobbyExam{}
	}
	response.Success(c, http.StatusOK, gin.H{"exams": lobby})
}

// StartAttempt godoc
// POST /api/v1/participant/exams/:exam_id/start
// Creates or resumes the attempt (idempotent). A finished attempt is returned
// with finished=true so the client can redirect to results.
func (h *ParticipantHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.StartAttempt(c.Request.Context(), examID, claims.UserID)
	if errors.Is(err, session.ErrAlreadyFinished) {
		response.Success(c, http.StatusOK, gin.H{"session": attempt, "finished": true})
		return
	}
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": attempt, "finished": false})
}

// GetPaper godoc
// GET /api/v1/participant/exams/:exam_id/paper
// Returns the exam questions without correct answers. Requires a started
// attempt — participants cannot download papers they have not begun.
func (h *ParticipantHandler) GetPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	if err := h.attemptService.VerifyAttempt(c.Request.Context(), examID, claims.UserID); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	paper, err := h.examService.GetPaper(c.Request.Context(), examID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// GetState godoc
// GET /api/v1/participant/exams/:exam_id/state
// Reload endpoint: recorded answers plus remaining time recomputed from the
// persisted start.
func (h *ParticipantHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// RecordAnswer godoc
// POST /api/v1/participant/exams/:exam_id/answers
// Durably stores one answer. Overwrites any previous answer for the question.
func (h *ParticipantHandler) RecordAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.attemptService.RecordAnswer(c.Request.Context(), examID, claims.UserID, req.QuestionID, req.Label)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// Submit godoc
// POST /api/v1/participant/exams/:exam_id/submit
// Grades and finalizes the attempt. Idempotent: a duplicate submit returns
// the terminal state unchanged.
func (h *ParticipantHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Submit(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": attempt})
}

// GetResult godoc
// GET /api/v1/participant/exams/:exam_id/result
// Returns the finished attempt with the per-question review.
func (h *ParticipantHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// ─── internals ──────────────────────────────────────────────────────

// failAttempt maps attempt lifecycle errors to response codes.
func failAttempt(c *gin.Context, err error) {
	var verr *session.ValidationError
	var cerr *session.CorruptSessionError

	switch {
	case errors.Is(err, repository.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, session.ErrAlreadyFinished):
		response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrExamNotPublished)
	case errors.As(err, &verr):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{verr.Field: verr.Reason})
	case errors.As(err, &cerr):
		response.Fail(c, http.StatusInternalServerError, response.ErrAttemptCorrupt)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

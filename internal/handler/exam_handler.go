package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/middleware"
	"github.com/provafacil/simulado-backend/internal/model"
	"github.com/provafacil/simulado-backend/internal/repository"
	"github.com/provafacil/simulado-backend/internal/response"
	"github.com/provafacil/simulado-backend/internal/service"
	"github.com/provafacil/simulado-backend/internal/validator"
)

// ExamHandler handles teacher-facing exam authoring endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// ListExams godoc
// GET /api/v1/teacher/exams?status=DRAFT|PUBLISHED
func (h *ExamHandler) ListExams(c *gin.Context) {
	var status *model.ExamStatus
	if raw := c.Query("status"); raw != "" {
		st := model.ExamStatus(raw)
		if st != model.ExamStatusDraft && st != model.ExamStatusPublished {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		}
		status = &st
	}

	exams, err := h.examService.ListExams(c.Request.Context(), status)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/teacher/exams/:exam_id
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	exam, err := h.examService.GetExam(c.Request.Context(), examID)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// CreateExam godoc
// POST /api/v1/teacher/exams
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.CreateExam(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// UpdateExam godoc
// PATCH /api/v1/teacher/exams/:exam_id
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.UpdateExam(c.Request.Context(), examID, req)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/v1/teacher/exams/:exam_id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	if err := h.examService.DeleteExam(c.Request.Context(), examID); err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// ListQuestions godoc
// GET /api/v1/teacher/exams/:exam_id/questions
// Returns the full questions, correct answers included.
func (h *ExamHandler) ListQuestions(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	questions, err := h.examService.ListQuestions(c.Request.Context(), examID)
	if err != nil {
		failExam(c, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// AddQuestion godoc
// POST /api/v1/teacher/exams/:exam_id/questions
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.examService.AddQuestion(c.Request.Context(), examID, req)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// ReplaceQuestions godoc
// PUT /api/v1/teacher/exams/:exam_id/questions
// Swaps the full question list of a draft exam in request order.
func (h *ExamHandler) ReplaceQuestions(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.examService.ReplaceQuestions(c.Request.Context(), examID, req)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// DeleteQuestion godoc
// DELETE /api/v1/teacher/exams/:exam_id/questions/:question_id
func (h *ExamHandler) DeleteQuestion(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.DeleteQuestion(c.Request.Context(), examID, questionID); err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Publish godoc
// POST /api/v1/teacher/exams/:exam_id/publish
// Validates every question, flips the exam to PUBLISHED and warms the paper cache.
func (h *ExamHandler) Publish(c *gin.Context) {
	examID, ok := parseExamID(c)
	if !ok {
		return
	}

	exam, err := h.examService.Publish(c.Request.Context(), examID)
	if err != nil {
		failExam(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ─── internals ──────────────────────────────────────────────────────

func parseExamID(c *gin.Context) (uuid.UUID, bool) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return examID, true
}

// failExam maps authoring errors to response codes. Question invariant
// violations surface as validation failures with the reason in detail.
func failExam(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrExamNotDraft)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrExamNotPublished)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusBadRequest, response.ErrNoQuestions)
	case errors.Is(err, service.ErrInvalidQuestion):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"detail": err.Error()})
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

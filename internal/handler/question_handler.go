package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/response"
	"github.com/roadready/theory-backend/internal/service"
	"github.com/roadready/theory-backend/internal/validator"
	"github.com/rs/zerolog"
)

// QuestionHandler handles question bank endpoints.
type QuestionHandler struct {
	questionService *service.QuestionService
	log             zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		log:             log.With().Str("component", "question_handler").Logger(),
	}
}

// ListQuestions godoc
// GET /api/v1/questions?category=&search=&page=&per_page=
// Learners get questions without answer keys; admins get the full records.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	page, perPage := pageParams(c)
	category, search := c.Query("category"), c.Query("search")

	if claims.IsAdmin {
		questions, pagination, err := h.questionService.List(c.Request.Context(), category, search, page, perPage)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		response.SuccessWithPagination(c, http.StatusOK, gin.H{"questions": questions}, pagination)
		return
	}

	questions, pagination, err := h.questionService.ListForCandidate(c.Request.Context(), category, search, page, perPage)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"questions": questions}, pagination)
}

// ListCategories godoc
// GET /api/v1/questions/categories
func (h *QuestionHandler) ListCategories(c *gin.Context) {
	categories, err := h.questionService.Categories(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"categories": categories})
}

// GetQuestion godoc
// GET /api/v1/admin/questions/:question_id
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id, ok := intParam(c, "question_id")
	if !ok {
		return
	}

	q, err := h.questionService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// CreateQuestion godoc
// POST /api/v1/admin/questions
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	var req model.QuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q := req.ToQuestion()
	if err := h.questionService.Create(c.Request.Context(), q); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// UpdateQuestion godoc
// PUT /api/v1/admin/questions/:question_id
// Edits apply to future exams; papers of running exams are snapshots.
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	id, ok := intParam(c, "question_id")
	if !ok {
		return
	}

	var req model.QuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q := req.ToQuestion()
	q.ID = id
	if err := h.questionService.Update(c.Request.Context(), q); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// DeleteQuestion godoc
// DELETE /api/v1/admin/questions/:question_id
// Refused while any exam or simulation references the question.
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id, ok := intParam(c, "question_id")
	if !ok {
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

func (h *QuestionHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidQuestion) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"correct_answer": "correct_answer must index one of the options",
		})
		return
	}
	respondError(c, h.log, err)
}

package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/response"
	"github.com/roadready/theory-backend/internal/service"
	"github.com/roadready/theory-backend/internal/validator"
	"github.com/rs/zerolog"
)

// ExamHandler handles timed exam endpoints.
type ExamHandler struct {
	examService   *service.ExamService
	reportService *service.ReportService
	log           zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, reportService *service.ReportService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		examService:   examService,
		reportService: reportService,
		log:           log.With().Str("component", "exam_handler").Logger(),
	}
}

// StartExam godoc
// POST /api/v1/exams
// Draws a new paper for the learner. Requires an active payment and no exam in progress.
func (h *ExamHandler) StartExam(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	view, err := h.examService.Start(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"exam": view})
}

// CurrentExam godoc
// GET /api/v1/exams/current
// Returns the exam in progress with the remaining time.
func (h *ExamHandler) CurrentExam(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	view, err := h.examService.Current(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": view})
}

// ListExams godoc
// GET /api/v1/exams?page=&per_page=
// Lists finished exams, newest first.
func (h *ExamHandler) ListExams(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	page, perPage := pageParams(c)
	exams, pagination, err := h.examService.History(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
// Answer keys are included only once the exam is finished.
func (h *ExamHandler) GetExam(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	view, err := h.examService.Get(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": view})
}

// SaveAnswer godoc
// PUT /api/v1/exams/:exam_id/answers/:index
// Persists one answer slot; -1 clears it.
func (h *ExamHandler) SaveAnswer(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}
	index, ok := intParam(c, "index")
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.examService.RecordAnswer(c.Request.Context(), claims.UserID, examID, index, *req.Answer); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// SubmitExam godoc
// POST /api/v1/exams/:exam_id/submit
// Grades the exam. An empty body submits the answers saved so far.
func (h *ExamHandler) SubmitExam(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.SubmitExamRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	result, err := h.examService.Submit(c.Request.Context(), claims.UserID, examID, req.Answers)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// DownloadReport godoc
// GET /api/v1/exams/:exam_id/report
// Returns the PDF result slip of a finished exam.
func (h *ExamHandler) DownloadReport(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	pdf, name, err := h.reportService.ExamReport(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

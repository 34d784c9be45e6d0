package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/roadready/theory-backend/internal/middleware"
	"github.com/roadready/theory-backend/internal/repository"
	"github.com/roadready/theory-backend/internal/response"
	"github.com/roadready/theory-backend/internal/service"
	"github.com/rs/zerolog"
)

type errorMapping struct {
	target error
	status int
	code   response.ErrCode
}

// serviceErrors maps domain errors to HTTP responses. Anything not listed is
// an internal error.
var serviceErrors = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrSessionInvalidated, http.StatusUnauthorized, response.ErrSessionInvalidated},
	{repository.ErrDuplicateEmail, http.StatusConflict, response.ErrEmailTaken},
	{service.ErrNotEntitled, http.StatusPaymentRequired, response.ErrNotEntitled},

	{service.ErrNoActiveExam, http.StatusNotFound, response.ErrNoActiveExam},
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrExamAlreadySubmitted, http.StatusConflict, response.ErrExamAlreadySubmitted},
	{service.ErrExamNotFinished, http.StatusConflict, response.ErrExamNotFinished},
	{service.ErrAnswerCountMismatch, http.StatusBadRequest, response.ErrAnswerCountMismatch},
	{service.ErrInvalidAnswer, http.StatusBadRequest, response.ErrInvalidAnswer},
	{service.ErrNotEnoughQuestions, http.StatusUnprocessableEntity, response.ErrNotEnoughQuestions},

	{service.ErrNoActiveSimulation, http.StatusNotFound, response.ErrNoActiveSimulation},
	{service.ErrSimulationNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrSimulationExpired, http.StatusGone, response.ErrSimulationExpired},
	{service.ErrSimulationCompleted, http.StatusConflict, response.ErrSimulationCompleted},
	{service.ErrSimulationNotFinished, http.StatusConflict, response.ErrSimulationNotFinished},
	{service.ErrRecoveryTokenExpired, http.StatusGone, response.ErrRecoveryTokenExpired},
	{service.ErrNotCurrentQuestion, http.StatusConflict, response.ErrNotCurrentQuestion},
	{service.ErrReviewNotAllowed, http.StatusConflict, response.ErrReviewNotAllowed},
	{service.ErrSkipNotAllowed, http.StatusConflict, response.ErrSkipNotAllowed},
	{service.ErrQuestionTimeUp, http.StatusConflict, response.ErrQuestionTimeUp},
	{service.ErrUnknownQuestion, http.StatusBadRequest, response.ErrUnknownQuestion},
	{service.ErrCursorMoved, http.StatusConflict, response.ErrConflict},

	{service.ErrQuestionNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrQuestionInUse, http.StatusConflict, response.ErrDependencyExists},

	{service.ErrUnknownPackage, http.StatusBadRequest, response.ErrUnknownPackage},
	{service.ErrPaymentNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrPaymentNotRetryable, http.StatusConflict, response.ErrPaymentNotRetryable},
	{service.ErrPaymentNotRefundable, http.StatusConflict, response.ErrPaymentNotRefundable},
	{service.ErrInvalidSignature, http.StatusUnauthorized, response.ErrInvalidSignature},
	{service.ErrGateway, http.StatusBadGateway, response.ErrGatewayUnavailable},

	{service.ErrUnsupportedFileType, http.StatusBadRequest, response.ErrUnsupportedFile},
	{service.ErrFileTooLarge, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},

	{pgx.ErrNoRows, http.StatusNotFound, response.ErrNotFound},
}

// respondError logs err with the caller's identity and writes the matching
// error envelope.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	ev := log.With().Str("route", c.FullPath())
	if claims := middleware.GetClaims(c); claims != nil {
		ev = ev.Int("user_id", claims.UserID)
	}
	ev = ev.Str("request_id", response.RequestID(c))
	reqLog := ev.Logger()

	var active *service.ActiveSessionError
	if errors.As(err, &active) {
		reqLog.Warn().Err(err).Str("active_id", active.ID.String()).Msg("Active session exists")
		if errors.Is(err, service.ErrActiveSimulationExists) {
			response.FailWithData(c, http.StatusConflict, response.ErrActiveSimulationExists, gin.H{"simulation_id": active.ID})
			return
		}
		response.FailWithData(c, http.StatusConflict, response.ErrActiveExamExists, gin.H{"exam_id": active.ID})
		return
	}

	if m, ok := lookupError(err); ok {
		reqLog.Warn().Err(err).Int("status", m.status).Msg("Request rejected")
		response.Fail(c, m.status, m.code)
		return
	}

	reqLog.Error().Err(err).Msg("Request failed")
	response.Internal(c, err)
}

func lookupError(err error) (errorMapping, bool) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			return m, true
		}
	}
	return errorMapping{}, false
}

// requireClaims returns the caller's claims or writes a 401.
func requireClaims(c *gin.Context) (*service.Claims, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}
	return claims, true
}

// uuidParam parses a UUID path parameter or writes a 400.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// intParam parses a non-negative integer path parameter or writes a 400.
func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil || n < 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return n, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	return page, perPage
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/response"
	"github.com/roadready/theory-backend/internal/service"
	"github.com/roadready/theory-backend/internal/validator"
	"github.com/rs/zerolog"
)

// SimulationHandler handles practice simulation endpoints.
type SimulationHandler struct {
	simulationService *service.SimulationService
	log               zerolog.Logger
}

// NewSimulationHandler creates a new SimulationHandler.
func NewSimulationHandler(simulationService *service.SimulationService, log zerolog.Logger) *SimulationHandler {
	return &SimulationHandler{
		simulationService: simulationService,
		log:               log.With().Str("component", "simulation_handler").Logger(),
	}
}

// CreateSimulation godoc
// POST /api/v1/simulations
// Starts a practice session from explicit question ids or a category draw.
// The response carries the recovery token; keep it to resume after a disconnect.
func (h *SimulationHandler) CreateSimulation(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req model.CreateSimulationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.simulationService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, state)
}

// GetActiveSimulation godoc
// GET /api/v1/simulations/active
func (h *SimulationHandler) GetActiveSimulation(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	state, err := h.simulationService.GetActive(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// CheckActiveSimulation godoc
// GET /api/v1/simulations/active-check
func (h *SimulationHandler) CheckActiveSimulation(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	check, err := h.simulationService.ActiveCheck(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, check)
}

// AnswerQuestion godoc
// POST /api/v1/simulations/:simulation_id/answer
func (h *SimulationHandler) AnswerQuestion(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	simID, ok := uuidParam(c, "simulation_id")
	if !ok {
		return
	}

	var req model.SimulationAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.simulationService.Answer(c.Request.Context(), claims.UserID, simID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// AdvanceQuestion godoc
// POST /api/v1/simulations/:simulation_id/advance
// Moves to the next question. Past the last question the session completes.
func (h *SimulationHandler) AdvanceQuestion(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	simID, ok := uuidParam(c, "simulation_id")
	if !ok {
		return
	}

	sim, err := h.simulationService.Advance(c.Request.Context(), claims.UserID, simID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"simulation": sim})
}

// CompleteSimulation godoc
// POST /api/v1/simulations/:simulation_id/complete
func (h *SimulationHandler) CompleteSimulation(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	simID, ok := uuidParam(c, "simulation_id")
	if !ok {
		return
	}

	sim, err := h.simulationService.Complete(c.Request.Context(), claims.UserID, simID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"simulation": sim})
}

// Heartbeat godoc
// POST /api/v1/simulations/:simulation_id/heartbeat
// Keeps the session alive. Stale sessions are finalized and reported as expired.
func (h *SimulationHandler) Heartbeat(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	simID, ok := uuidParam(c, "simulation_id")
	if !ok {
		return
	}

	var req model.HeartbeatRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sim, err := h.simulationService.Heartbeat(c.Request.Context(), claims.UserID, simID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"simulation": sim})
}

// RecoverSimulation godoc
// POST /api/v1/simulations/recover
// Resumes a session with its recovery token. The token is rotated on success.
func (h *SimulationHandler) RecoverSimulation(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	var req model.RecoverRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.simulationService.Recover(c.Request.Context(), claims.UserID, req.RecoveryToken)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// SimulationLogs godoc
// GET /api/v1/simulations/:simulation_id/logs
// Per-question review: selected answer, correctness and time spent.
func (h *SimulationHandler) SimulationLogs(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	simID, ok := uuidParam(c, "simulation_id")
	if !ok {
		return
	}

	logs, err := h.simulationService.Logs(c.Request.Context(), claims.UserID, simID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"logs": logs})
}

// CategoryStats godoc
// GET /api/v1/simulations/stats/categories
func (h *SimulationHandler) CategoryStats(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}

	stats, err := h.simulationService.CategoryStats(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"categories": stats})
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/roadready/theory-backend/internal/response"
	"github.com/roadready/theory-backend/internal/service"
	ws "github.com/roadready/theory-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams exam autosave and submit over a WebSocket.
type WSHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(examService *service.ExamService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		examService: examService,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/v1/exams/:exam_id/stream
// Upgrades to WebSocket for autosave and submit of an exam in progress.
// Answers go through the same ExamService calls as the HTTP endpoints.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	// Reject before upgrading so the client sees a normal HTTP error.
	view, err := h.examService.Get(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if !view.InProgress() {
		response.Fail(c, http.StatusConflict, response.ErrExamAlreadySubmitted)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	userID := claims.UserID
	wsLog := h.log.With().
		Int("user_id", userID).
		Str("exam_id", examID.String()).
		Logger()

	wsLog.Info().Msg("Candidate connected")

	// The request context ends with the hijacked connection, so calls use
	// a context that lives as long as this loop.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, wsLog, userID, examID, &msg)
		case ws.ActionSubmit:
			if h.handleSubmit(ctx, conn, wsLog, userID, examID, &msg) {
				return
			}
		case ws.ActionPing:
			h.handlePing(ctx, conn, wsLog, userID, examID)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave persists a single answer slot.
func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, userID int, examID uuid.UUID, msg *ws.Request) {
	if msg.Index == nil || msg.Answer == nil {
		_ = ws.WriteError(conn, string(response.ErrInvalidPayload), "index and answer are required")
		return
	}

	if err := h.examService.RecordAnswer(ctx, userID, examID, *msg.Index, *msg.Answer); err != nil {
		h.writeServiceError(conn, wsLog, err)
		return
	}
	_ = ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Index: *msg.Index})
}

// handleSubmit grades the exam. It reports whether the stream is finished.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, userID int, examID uuid.UUID, msg *ws.Request) bool {
	result, err := h.examService.Submit(ctx, userID, examID, msg.Answers)
	if err != nil {
		h.writeServiceError(conn, wsLog, err)
		return errors.Is(err, service.ErrExamAlreadySubmitted)
	}

	wsLog.Info().
		Int("score", result.Score).
		Int("correct", result.CorrectCount).
		Int("total", result.QuestionCount).
		Msg("Exam submitted and graded")

	_ = ws.WriteTyped(conn, ws.GradedResponse{Event: ws.EventGraded, Result: result})
	return true
}

// handlePing answers with the remaining time so clients can resync their clock.
func (h *WSHandler) handlePing(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, userID int, examID uuid.UUID) {
	view, err := h.examService.Get(ctx, userID, examID)
	if err != nil {
		h.writeServiceError(conn, wsLog, err)
		return
	}
	_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, RemainingSeconds: view.RemainingSeconds})
}

func (h *WSHandler) writeServiceError(conn *websocket.Conn, wsLog zerolog.Logger, err error) {
	if m, ok := lookupError(err); ok {
		wsLog.Warn().Err(err).Msg("Stream action rejected")
		_ = ws.WriteError(conn, string(m.code), response.GetMessage(m.code))
		return
	}
	wsLog.Error().Err(err).Msg("Stream action failed")
	_ = ws.WriteError(conn, string(response.ErrInternal), response.GetMessage(response.ErrInternal))
}

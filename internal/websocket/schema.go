package websocket

import "github.com/roadready/theory-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// Request is a client message. Fields beyond Action depend on the action.
type Request struct {
	Action Action `json:"action"`
	// Index and Answer are used by autosave. Answer -1 clears the slot.
	Index  *int `json:"index,omitempty"`
	Answer *int `json:"answer,omitempty"`
	// Answers is an optional full sheet for submit.
	Answers []int `json:"answers,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventSaved  Event = "saved"
	EventGraded Event = "graded"
	EventPong   Event = "pong"
)

type SavedResponse struct {
	Event Event `json:"event"`
	Index int   `json:"index"`
}

type GradedResponse struct {
	Event  Event             `json:"event"`
	Result *model.ExamResult `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

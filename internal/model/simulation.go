package model

import (
	"time"

	"github.com/google/uuid"
)

// SimulationStatus enumerates practice simulation states.
type SimulationStatus string

const (
	SimulationStatusNotStarted SimulationStatus = "not_started"
	SimulationStatusActive     SimulationStatus = "active"
	SimulationStatusCompleted  SimulationStatus = "completed"
)

// SimulationConfig holds the per-session settings chosen at creation.
type SimulationConfig struct {
	TimePerQuestion int  `json:"time_per_question" binding:"required,min=5,max=600"`
	ShowFeedback    bool `json:"show_feedback"`
	ShowTimer       bool `json:"show_timer"`
	AllowSkip       bool `json:"allow_skip"`
	AllowReview     bool `json:"allow_review"`
}

// Simulation is a configurable practice session. Unlike an Exam, progress
// through the questions follows a server-confirmed cursor.
type Simulation struct {
	ID                   uuid.UUID        `json:"id"`
	UserID               int              `json:"user_id"`
	Status               SimulationStatus `json:"status"`
	Config               SimulationConfig `json:"config"`
	QuestionIDs          []int            `json:"question_ids"`
	Answers              []int            `json:"answers"`
	CurrentQuestionIndex int              `json:"current_question_index"`
	QuestionStartedAt    time.Time        `json:"question_started_at"`
	StartTime            time.Time        `json:"start_time"`
	EndTime              *time.Time       `json:"end_time,omitempty"`
	Score                *int             `json:"score,omitempty"`
	TimeRemaining        *int             `json:"time_remaining,omitempty"`
	LastActiveAt         time.Time        `json:"last_active_at"`
	RecoveryToken        string           `json:"-"`
	RecoveryAttempts     int              `json:"recovery_attempts"`
}

// IsCompleted reports whether the session has been finalized.
func (s *Simulation) IsCompleted() bool {
	return s.Status == SimulationStatusCompleted
}

// IsStale reports whether the client has been silent for longer than staleAfter.
func (s *Simulation) IsStale(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(s.LastActiveAt) > staleAfter
}

// CurrentQuestionID returns the question under the cursor, or false once the
// cursor has moved past the last question.
func (s *Simulation) CurrentQuestionID() (int, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.QuestionIDs) {
		return 0, false
	}
	return s.QuestionIDs[s.CurrentQuestionIndex], true
}

// QuestionTimerExpired reports whether the per-question timer ran out.
// Always false when the timer is disabled.
func (s *Simulation) QuestionTimerExpired(now time.Time, grace time.Duration) bool {
	if !s.Config.ShowTimer {
		return false
	}
	limit := time.Duration(s.Config.TimePerQuestion)*time.Second + grace
	return now.Sub(s.QuestionStartedAt) > limit
}

// SimulationLog records one answered question of a simulation.
type SimulationLog struct {
	ID               int64     `json:"id"`
	SimulationID     uuid.UUID `json:"simulation_id"`
	UserID           int       `json:"user_id"`
	QuestionID       int       `json:"question_id"`
	Category         string    `json:"category"`
	QuestionIndex    int       `json:"question_index"`
	SelectedAnswer   int       `json:"selected_answer"`
	IsCorrect        bool      `json:"is_correct"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateSimulationRequest starts a practice session. QuestionIDs may be left
// empty to let the server draw QuestionCount questions, optionally from a
// single category.
type CreateSimulationRequest struct {
	Config        SimulationConfig `json:"config" binding:"required"`
	QuestionIDs   []int            `json:"question_ids" binding:"omitempty,max=100,dive,min=1"`
	QuestionCount int              `json:"question_count" binding:"omitempty,min=1,max=100"`
	Category      string           `json:"category" binding:"omitempty,max=100"`
}

// SimulationAnswerRequest submits an answer for the current question.
type SimulationAnswerRequest struct {
	QuestionID     int  `json:"question_id" binding:"required,min=1"`
	SelectedAnswer *int `json:"selected_answer" binding:"required,min=0"`
	TimeSpent      int  `json:"time_spent" binding:"min=0,max=3600"`
}

// SimulationAnswerResult is returned after an answer. Correctness details are
// only filled when the session shows feedback.
type SimulationAnswerResult struct {
	Recorded      bool    `json:"recorded"`
	QuestionIndex int     `json:"question_index"`
	IsCorrect     *bool   `json:"is_correct,omitempty"`
	CorrectAnswer *int    `json:"correct_answer,omitempty"`
	Explanation   *string `json:"explanation,omitempty"`
}

// HeartbeatRequest is sent periodically by the client.
type HeartbeatRequest struct {
	TimeRemaining *int   `json:"time_remaining" binding:"omitempty,min=0"`
	RecoveryToken string `json:"recovery_token" binding:"required"`
}

// RecoverRequest resumes an interrupted simulation.
type RecoverRequest struct {
	RecoveryToken string `json:"recovery_token" binding:"required"`
}

// SimulationState is the full session state handed to the client on create,
// fetch and recovery.
type SimulationState struct {
	Simulation    Simulation             `json:"simulation"`
	Questions     []QuestionForCandidate `json:"questions"`
	RecoveryToken string                 `json:"recovery_token,omitempty"`
}

// ActiveSimulationCheck is the lightweight answer to "do I have a session to resume?".
type ActiveSimulationCheck struct {
	HasActive            bool             `json:"has_active"`
	SimulationID         *uuid.UUID       `json:"simulation_id,omitempty"`
	Status               SimulationStatus `json:"status,omitempty"`
	CurrentQuestionIndex int              `json:"current_question_index"`
	QuestionCount        int              `json:"question_count"`
	LastActiveAt         *time.Time       `json:"last_active_at,omitempty"`
}

// CategoryStat aggregates simulation log rows per question category.
type CategoryStat struct {
	Category       string  `json:"category"`
	Attempted      int     `json:"attempted"`
	Correct        int     `json:"correct"`
	Accuracy       float64 `json:"accuracy"`
	AvgTimeSeconds float64 `json:"avg_time_seconds"`
}

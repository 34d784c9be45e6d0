package model

import (
	"time"

	"github.com/google/uuid"
)

// Unanswered marks an answer slot the candidate has not filled.
const Unanswered = -1

// Exam is a single timed attempt over a fixed, ordered set of questions.
// A nil EndTime means the exam is still in progress.
type Exam struct {
	ID          uuid.UUID  `json:"id"`
	UserID      int        `json:"user_id"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	QuestionIDs []int      `json:"question_ids"`
	Answers     []int      `json:"answers"`
	Score       *int       `json:"score,omitempty"`
}

// InProgress reports whether the exam has not been finalized.
func (e *Exam) InProgress() bool {
	return e.EndTime == nil
}

// Deadline is the moment the exam's countdown reaches zero.
func (e *Exam) Deadline(duration time.Duration) time.Time {
	return e.StartTime.Add(duration)
}

// NewAnswerSheet returns n unanswered slots.
func NewAnswerSheet(n int) []int {
	answers := make([]int, n)
	for i := range answers {
		answers[i] = Unanswered
	}
	return answers
}

// ExamView is what a candidate sees of an exam. Correct answers are only
// populated once the exam is finalized.
type ExamView struct {
	Exam
	Questions        []QuestionForCandidate `json:"questions"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	Passed           *bool                  `json:"passed,omitempty"`
	CorrectAnswers   []int                  `json:"correct_answers,omitempty"`
}

// ExamResult is returned after a submit.
type ExamResult struct {
	ExamID         uuid.UUID `json:"exam_id"`
	Score          int       `json:"score"`
	Passed         bool      `json:"passed"`
	CorrectCount   int       `json:"correct_count"`
	QuestionCount  int       `json:"question_count"`
	AnsweredCount  int       `json:"answered_count"`
	EndTime        time.Time `json:"end_time"`
	CorrectAnswers []int     `json:"correct_answers"`
}

// SubmitExamRequest carries the full answer sheet. When Answers is omitted the
// server-persisted answers are submitted.
type SubmitExamRequest struct {
	Answers []int `json:"answers" binding:"omitempty,dive,min=-1"`
}

// RecordAnswerRequest saves a single answer slot.
type RecordAnswerRequest struct {
	Answer *int `json:"answer" binding:"required,min=-1"`
}

// ExamSummary is a row of the exam history.
type ExamSummary struct {
	ID            uuid.UUID  `json:"id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Score         *int       `json:"score,omitempty"`
	Passed        bool       `json:"passed"`
	QuestionCount int        `json:"question_count"`
	AnsweredCount int        `json:"answered_count"`
}

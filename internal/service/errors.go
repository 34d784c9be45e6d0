package service

import "errors"

// Auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalidated = errors.New("session invalidated")
)

// Entitlement errors.
var ErrNotEntitled = errors.New("no active payment")

// Exam errors.
var (
	ErrActiveExamExists     = errors.New("an exam is already in progress")
	ErrNoActiveExam         = errors.New("no exam in progress")
	ErrExamNotFound         = errors.New("exam not found")
	ErrExamAlreadySubmitted = errors.New("exam already submitted")
	ErrExamNotFinished      = errors.New("exam not finished")
	ErrAnswerCountMismatch  = errors.New("answer count does not match question count")
	ErrInvalidAnswer        = errors.New("answer is not a valid option index")
	ErrNotEnoughQuestions   = errors.New("question bank does not hold enough questions")
)

// Simulation errors.
var (
	ErrActiveSimulationExists = errors.New("a simulation is already in progress")
	ErrNoActiveSimulation     = errors.New("no simulation in progress")
	ErrSimulationNotFound     = errors.New("simulation not found")
	ErrSimulationExpired      = errors.New("simulation expired")
	ErrSimulationCompleted    = errors.New("simulation already completed")
	ErrSimulationNotFinished  = errors.New("simulation answers are hidden until it is completed")
	ErrRecoveryTokenExpired   = errors.New("recovery token expired")
	ErrNotCurrentQuestion     = errors.New("question is not the current question")
	ErrReviewNotAllowed       = errors.New("changing answers is not allowed")
	ErrSkipNotAllowed         = errors.New("skipping questions is not allowed")
	ErrQuestionTimeUp         = errors.New("question time is up")
	ErrUnknownQuestion        = errors.New("unknown or duplicate question id")
	ErrCursorMoved            = errors.New("simulation cursor already moved")
)

// Question bank errors.
var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrQuestionInUse    = errors.New("question is referenced by an exam or simulation")
	ErrInvalidQuestion  = errors.New("correct answer is out of range")
)

// Payment errors.
var (
	ErrUnknownPackage       = errors.New("unknown package")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentNotRetryable  = errors.New("payment cannot be retried")
	ErrPaymentNotRefundable = errors.New("payment cannot be refunded")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrGateway              = errors.New("payment gateway error")
)

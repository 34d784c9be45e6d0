package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/repository"
	"github.com/rs/zerolog"
)

// SimulationService runs practice simulations:
// not_started → active → completed, one open simulation per user.
type SimulationService struct {
	cfg         config.SimulationConfig
	sims        SimulationStore
	questions   QuestionStore
	entitlement EntitlementChecker
	journey     JourneyTracker
	log         zerolog.Logger
	now         func() time.Time
}

// NewSimulationService creates a new SimulationService.
func NewSimulationService(
	cfg config.SimulationConfig,
	sims SimulationStore,
	questions QuestionStore,
	entitlement EntitlementChecker,
	journey JourneyTracker,
	log zerolog.Logger,
) *SimulationService {
	return &SimulationService{
		cfg:         cfg,
		sims:        sims,
		questions:   questions,
		entitlement: entitlement,
		journey:     journey,
		log:         log.With().Str("component", "simulation_service").Logger(),
		now:         time.Now,
	}
}

// Create starts a simulation over the given questions, or over questions drawn
// by the server when none are given.
func (s *SimulationService) Create(ctx context.Context, userID int, req *model.CreateSimulationRequest) (*model.SimulationState, error) {
	if err := s.entitlement.Check(ctx, userID); err != nil {
		return nil, err
	}

	open, err := s.sims.GetOpenByUser(ctx, userID)
	switch {
	case err == nil:
		if err := s.settleIfOver(ctx, open); err != nil {
			return nil, err
		}
		if !open.IsCompleted() {
			return nil, &ActiveSessionError{ID: open.ID, err: ErrActiveSimulationExists}
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("get open simulation: %w", err)
	}

	questions, err := s.pickQuestions(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ids := make([]int, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	sim := &model.Simulation{
		ID:                   uuid.New(),
		UserID:               userID,
		Status:               model.SimulationStatusNotStarted,
		Config:               req.Config,
		QuestionIDs:          ids,
		Answers:              model.NewAnswerSheet(len(ids)),
		CurrentQuestionIndex: 0,
		QuestionStartedAt:    now,
		StartTime:            now,
		LastActiveAt:         now,
		RecoveryToken:        newRecoveryToken(),
	}
	if err := s.sims.Create(ctx, sim); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			if open, getErr := s.sims.GetOpenByUser(ctx, userID); getErr == nil {
				return nil, &ActiveSessionError{ID: open.ID, err: ErrActiveSimulationExists}
			}
			return nil, ErrActiveSimulationExists
		}
		return nil, fmt.Errorf("create simulation: %w", err)
	}

	s.log.Info().
		Int("user_id", userID).
		Str("simulation_id", sim.ID.String()).
		Int("questions", len(ids)).
		Msg("Simulation created")

	return &model.SimulationState{
		Simulation:    *sim,
		Questions:     forCandidate(questions),
		RecoveryToken: sim.RecoveryToken,
	}, nil
}

// GetActive returns the user's open simulation with its questions.
func (s *SimulationService) GetActive(ctx context.Context, userID int) (*model.SimulationState, error) {
	sim, err := s.openByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	questions, err := s.orderedQuestions(ctx, sim.QuestionIDs)
	if err != nil {
		return nil, err
	}
	return &model.SimulationState{Simulation: *sim, Questions: forCandidate(questions)}, nil
}

// ActiveCheck reports whether the user has a simulation to resume. Stale
// simulations found here are finalized.
func (s *SimulationService) ActiveCheck(ctx context.Context, userID int) (*model.ActiveSimulationCheck, error) {
	sim, err := s.openByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoActiveSimulation) {
			return &model.ActiveSimulationCheck{HasActive: false}, nil
		}
		return nil, err
	}
	lastActive := sim.LastActiveAt
	return &model.ActiveSimulationCheck{
		HasActive:            true,
		SimulationID:         &sim.ID,
		Status:               sim.Status,
		CurrentQuestionIndex: sim.CurrentQuestionIndex,
		QuestionCount:        len(sim.QuestionIDs),
		LastActiveAt:         &lastActive,
	}, nil
}

// Answer records the answer to the current question. The log row and the
// answer slot are written atomically.
func (s *SimulationService) Answer(ctx context.Context, userID int, simID uuid.UUID, req *model.SimulationAnswerRequest) (*model.SimulationAnswerResult, error) {
	sim, err := s.loadOpen(ctx, userID, simID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	idx := sim.CurrentQuestionIndex
	currentID, ok := sim.CurrentQuestionID()
	if !ok {
		return nil, ErrSimulationCompleted
	}
	if req.QuestionID != currentID {
		return nil, ErrNotCurrentQuestion
	}
	if sim.Answers[idx] != model.Unanswered && !sim.Config.AllowReview {
		return nil, ErrReviewNotAllowed
	}
	if sim.QuestionTimerExpired(now, s.cfg.TimerGrace) {
		return nil, ErrQuestionTimeUp
	}

	q, err := s.questions.GetByID(ctx, currentID)
	if err != nil {
		return nil, fmt.Errorf("get question %d: %w", currentID, err)
	}
	selected := *req.SelectedAnswer
	if !q.IsValidAnswer(selected) {
		return nil, ErrInvalidAnswer
	}

	timeSpent := req.TimeSpent
	if timeSpent <= 0 {
		timeSpent = int(now.Sub(sim.QuestionStartedAt).Seconds())
	}

	entry := &model.SimulationLog{
		SimulationID:     sim.ID,
		UserID:           userID,
		QuestionID:       q.ID,
		Category:         q.Category,
		QuestionIndex:    idx,
		SelectedAnswer:   selected,
		IsCorrect:        selected == q.CorrectAnswer,
		TimeSpentSeconds: timeSpent,
	}
	if err := s.sims.RecordAnswer(ctx, entry, now); err != nil {
		if errors.Is(err, repository.ErrConcurrentUpdate) {
			return nil, ErrCursorMoved
		}
		return nil, fmt.Errorf("record answer: %w", err)
	}

	result := &model.SimulationAnswerResult{Recorded: true, QuestionIndex: idx}
	if sim.Config.ShowFeedback {
		correct := q.CorrectAnswer
		explanation := q.Explanation
		result.IsCorrect = &entry.IsCorrect
		result.CorrectAnswer = &correct
		result.Explanation = &explanation
	}
	return result, nil
}

// Advance moves the cursor forward by exactly one question. Leaving a
// question unanswered requires allow_skip, unless its timer ran out. Moving
// past the last question completes the simulation.
func (s *SimulationService) Advance(ctx context.Context, userID int, simID uuid.UUID) (*model.Simulation, error) {
	sim, err := s.loadOpen(ctx, userID, simID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	idx := sim.CurrentQuestionIndex
	if idx >= len(sim.QuestionIDs) {
		if err := s.finalize(ctx, sim, now); err != nil {
			return nil, err
		}
		return sim, nil
	}

	// The client auto-advances when its countdown hits zero, so the timer
	// counts as expired slightly early to absorb clock drift. The allowance
	// never exceeds half the timer.
	timedOut := sim.QuestionTimerExpired(now, -s.earlyExpiry(sim))
	if sim.Answers[idx] == model.Unanswered && !sim.Config.AllowSkip && !timedOut {
		return nil, ErrSkipNotAllowed
	}

	if err := s.sims.Advance(ctx, sim.ID, idx, now); err != nil {
		if errors.Is(err, repository.ErrConcurrentUpdate) {
			return nil, ErrCursorMoved
		}
		return nil, fmt.Errorf("advance simulation: %w", err)
	}
	sim.CurrentQuestionIndex = idx + 1
	sim.Status = model.SimulationStatusActive
	sim.QuestionStartedAt = now
	sim.LastActiveAt = now

	if sim.CurrentQuestionIndex >= len(sim.QuestionIDs) {
		if err := s.finalize(ctx, sim, now); err != nil {
			return nil, err
		}
	}
	return sim, nil
}

// Complete finishes the simulation early.
func (s *SimulationService) Complete(ctx context.Context, userID int, simID uuid.UUID) (*model.Simulation, error) {
	sim, err := s.loadOpen(ctx, userID, simID)
	if err != nil {
		return nil, err
	}
	if err := s.finalize(ctx, sim, s.now().UTC()); err != nil {
		return nil, err
	}
	return sim, nil
}

// Heartbeat stamps the simulation as alive. The current recovery token must be presented.
func (s *SimulationService) Heartbeat(ctx context.Context, userID int, simID uuid.UUID, req *model.HeartbeatRequest) (*model.Simulation, error) {
	sim, err := s.loadOpen(ctx, userID, simID)
	if err != nil {
		return nil, err
	}
	if sim.RecoveryToken != req.RecoveryToken {
		return nil, ErrRecoveryTokenExpired
	}

	now := s.now().UTC()
	if err := s.sims.Touch(ctx, sim.ID, req.RecoveryToken, req.TimeRemaining, now); err != nil {
		if errors.Is(err, repository.ErrConcurrentUpdate) {
			return nil, ErrRecoveryTokenExpired
		}
		return nil, fmt.Errorf("touch simulation: %w", err)
	}
	sim.LastActiveAt = now
	sim.Status = model.SimulationStatusActive
	if req.TimeRemaining != nil {
		sim.TimeRemaining = req.TimeRemaining
	}
	return sim, nil
}

// Recover resumes the user's open simulation. A successful recovery always
// rotates the token, so the presented token cannot be used again.
func (s *SimulationService) Recover(ctx context.Context, userID int, token string) (*model.SimulationState, error) {
	sim, err := s.sims.GetOpenByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecoveryTokenExpired
		}
		return nil, fmt.Errorf("get open simulation: %w", err)
	}
	// A recovery attempt settles an abandoned session whether or not the
	// token matches.
	stale := sim.IsStale(s.now(), s.cfg.StaleAfter)
	if err := s.settleIfOver(ctx, sim); err != nil {
		return nil, err
	}
	if stale {
		return nil, ErrSimulationExpired
	}
	if token == "" || sim.RecoveryToken != token {
		return nil, ErrRecoveryTokenExpired
	}
	if sim.IsCompleted() {
		return nil, ErrSimulationCompleted
	}

	now := s.now().UTC()
	fresh := newRecoveryToken()
	if err := s.sims.RotateRecoveryToken(ctx, sim.ID, token, fresh, now); err != nil {
		if errors.Is(err, repository.ErrConcurrentUpdate) {
			return nil, ErrRecoveryTokenExpired
		}
		return nil, fmt.Errorf("rotate recovery token: %w", err)
	}
	sim.RecoveryToken = fresh
	sim.RecoveryAttempts++
	sim.LastActiveAt = now

	questions, err := s.orderedQuestions(ctx, sim.QuestionIDs)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("user_id", userID).
		Str("simulation_id", sim.ID.String()).
		Int("attempt", sim.RecoveryAttempts).
		Msg("Simulation recovered")

	return &model.SimulationState{
		Simulation:    *sim,
		Questions:     forCandidate(questions),
		RecoveryToken: fresh,
	}, nil
}

// Logs returns the answer log of one of the user's simulations: which answer
// was picked for each question, whether it was right and how long it took.
// While a session is open the log is only shown when it gives feedback
// anyway.
func (s *SimulationService) Logs(ctx context.Context, userID int, simID uuid.UUID) ([]model.SimulationLog, error) {
	sim, err := s.sims.GetByID(ctx, simID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSimulationNotFound
		}
		return nil, fmt.Errorf("get simulation: %w", err)
	}
	if sim.UserID != userID {
		return nil, ErrSimulationNotFound
	}
	if err := s.settleIfOver(ctx, sim); err != nil {
		return nil, err
	}
	if !sim.IsCompleted() && !sim.Config.ShowFeedback {
		return nil, ErrSimulationNotFinished
	}

	logs, err := s.sims.ListLogs(ctx, sim.ID)
	if err != nil {
		return nil, fmt.Errorf("list simulation logs: %w", err)
	}
	if logs == nil {
		logs = []model.SimulationLog{}
	}
	return logs, nil
}

// CategoryStats returns the user's per-category practice performance.
func (s *SimulationService) CategoryStats(ctx context.Context, userID int) ([]model.CategoryStat, error) {
	stats, err := s.sims.CategoryStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []model.CategoryStat{}
	}
	return stats, nil
}

// SweepStale finalizes open simulations whose client went silent. Returns the
// number finalized.
func (s *SimulationService) SweepStale(ctx context.Context, limit int) (int, error) {
	sims, err := s.sims.ListStale(ctx, s.now().Add(-s.cfg.StaleAfter), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale simulations: %w", err)
	}

	swept := 0
	for i := range sims {
		if err := s.finalize(ctx, &sims[i], sims[i].LastActiveAt); err != nil {
			s.log.Error().Err(err).Str("simulation_id", sims[i].ID.String()).Msg("Failed to expire simulation")
			continue
		}
		swept++
	}
	return swept, nil
}

// openByUser returns the user's open simulation after settling staleness.
func (s *SimulationService) openByUser(ctx context.Context, userID int) (*model.Simulation, error) {
	sim, err := s.sims.GetOpenByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveSimulation
		}
		return nil, fmt.Errorf("get open simulation: %w", err)
	}
	if err := s.settleIfOver(ctx, sim); err != nil {
		return nil, err
	}
	if sim.IsCompleted() {
		return nil, ErrNoActiveSimulation
	}
	return sim, nil
}

// loadOpen returns one of the user's simulations that can still be played.
func (s *SimulationService) loadOpen(ctx context.Context, userID int, simID uuid.UUID) (*model.Simulation, error) {
	sim, err := s.sims.GetByID(ctx, simID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSimulationNotFound
		}
		return nil, fmt.Errorf("get simulation: %w", err)
	}
	if sim.UserID != userID {
		return nil, ErrSimulationNotFound
	}
	if sim.IsCompleted() {
		return nil, ErrSimulationCompleted
	}
	stale := sim.IsStale(s.now(), s.cfg.StaleAfter)
	if err := s.settleIfOver(ctx, sim); err != nil {
		return nil, err
	}
	if stale {
		return nil, ErrSimulationExpired
	}
	if sim.IsCompleted() {
		return nil, ErrSimulationCompleted
	}
	return sim, nil
}

// earlyExpiry is how much sooner than its nominal length a question timer
// may be treated as expired.
func (s *SimulationService) earlyExpiry(sim *model.Simulation) time.Duration {
	return min(s.cfg.TimerGrace, time.Duration(sim.Config.TimePerQuestion)*time.Second/2)
}

// settleIfOver finalizes an open simulation that is stale (ended at its last
// sign of life) or whose cursor already passed the last question.
func (s *SimulationService) settleIfOver(ctx context.Context, sim *model.Simulation) error {
	if sim.IsCompleted() {
		return nil
	}
	now := s.now().UTC()
	switch {
	case sim.IsStale(now, s.cfg.StaleAfter):
		s.log.Info().
			Int("user_id", sim.UserID).
			Str("simulation_id", sim.ID.String()).
			Time("last_active_at", sim.LastActiveAt).
			Msg("Simulation abandoned")
		return s.finalize(ctx, sim, sim.LastActiveAt)
	case sim.CurrentQuestionIndex >= len(sim.QuestionIDs):
		return s.finalize(ctx, sim, now)
	}
	return nil
}

// finalize scores the simulation positionally and marks it completed at endTime.
func (s *SimulationService) finalize(ctx context.Context, sim *model.Simulation, endTime time.Time) error {
	questions, err := s.orderedQuestions(ctx, sim.QuestionIDs)
	if err != nil {
		return err
	}
	tally := Grade(questions, sim.Answers)

	if err := s.sims.Finalize(ctx, sim.ID, tally.Score, endTime); err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			sim.Status = model.SimulationStatusCompleted
			return nil
		}
		return fmt.Errorf("finalize simulation: %w", err)
	}

	sim.Status = model.SimulationStatusCompleted
	sim.EndTime = &endTime
	sim.Score = &tally.Score

	if err := s.journey.Track(ctx, model.JourneyEvent{
		UserID:             sim.UserID,
		Stage:              model.JourneyPracticeCompleted,
		QuestionsAttempted: tally.Answered,
		CorrectAnswers:     tally.Correct,
		MinutesSpent:       minutesBetween(sim.StartTime, endTime),
		OccurredAt:         endTime,
	}); err != nil {
		s.log.Warn().Err(err).Int("user_id", sim.UserID).Msg("Failed to track journey event")
	}

	s.log.Info().
		Int("user_id", sim.UserID).
		Str("simulation_id", sim.ID.String()).
		Int("score", tally.Score).
		Msg("Simulation completed")
	return nil
}

func (s *SimulationService) pickQuestions(ctx context.Context, req *model.CreateSimulationRequest) ([]model.Question, error) {
	if len(req.QuestionIDs) > 0 {
		seen := make(map[int]struct{}, len(req.QuestionIDs))
		for _, id := range req.QuestionIDs {
			if _, dup := seen[id]; dup {
				return nil, ErrUnknownQuestion
			}
			seen[id] = struct{}{}
		}
		questions, err := s.questions.GetByIDs(ctx, req.QuestionIDs)
		if err != nil {
			return nil, fmt.Errorf("get questions: %w", err)
		}
		if len(questions) != len(req.QuestionIDs) {
			return nil, ErrUnknownQuestion
		}
		return questions, nil
	}

	count := req.QuestionCount
	if count <= 0 {
		count = s.cfg.DefaultQuestionCount
	}
	ids, err := s.questions.ListIDs(ctx, strings.TrimSpace(req.Category))
	if err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
	}
	drawn, err := drawQuestions(ids, count)
	if err != nil {
		return nil, err
	}
	return s.orderedQuestions(ctx, drawn)
}

func (s *SimulationService) orderedQuestions(ctx context.Context, ids []int) ([]model.Question, error) {
	questions, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	if len(questions) != len(ids) {
		return nil, fmt.Errorf("simulation references %d questions, found %d", len(ids), len(questions))
	}
	return questions, nil
}

func newRecoveryToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

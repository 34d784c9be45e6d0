package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/repository"
	"github.com/roadready/theory-backend/internal/response"
	"github.com/rs/zerolog"
)

// EntitlementChecker is implemented by EntitlementService.
type EntitlementChecker interface {
	Check(ctx context.Context, userID int) error
}

// ActiveSessionError reports the session a user should resume instead of
// starting a new one. It unwraps to ErrActiveExamExists or ErrActiveSimulationExists.
type ActiveSessionError struct {
	ID  uuid.UUID
	err error
}

func (e *ActiveSessionError) Error() string { return e.err.Error() }
func (e *ActiveSessionError) Unwrap() error { return e.err }

// ExamService runs timed exams: drawing the paper, saving answers, and
// finalizing on submit or expiry.
type ExamService struct {
	cfg         config.ExamConfig
	exams       ExamStore
	questions   QuestionStore
	entitlement EntitlementChecker
	cache       Cache
	journey     JourneyTracker
	log         zerolog.Logger
	now         func() time.Time
}

// NewExamService creates a new ExamService.
func NewExamService(
	cfg config.ExamConfig,
	exams ExamStore,
	questions QuestionStore,
	entitlement EntitlementChecker,
	cache Cache,
	journey JourneyTracker,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		cfg:         cfg,
		exams:       exams,
		questions:   questions,
		entitlement: entitlement,
		cache:       cache,
		journey:     journey,
		log:         log.With().Str("component", "exam_service").Logger(),
		now:         time.Now,
	}
}

// Start creates a new exam of QuestionCount questions drawn at random without
// replacement from the whole bank.
func (s *ExamService) Start(ctx context.Context, userID int) (*model.ExamView, error) {
	if err := s.entitlement.Check(ctx, userID); err != nil {
		return nil, err
	}

	// An overdue exam left behind by a closed tab must not block a new one.
	if active, err := s.exams.GetActiveByUser(ctx, userID); err == nil {
		if !s.overdue(active) {
			return nil, &ActiveSessionError{ID: active.ID, err: ErrActiveExamExists}
		}
		if err := s.expire(ctx, active); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get active exam: %w", err)
	}

	ids, err := s.questions.ListIDs(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
	}
	drawn, err := drawQuestions(ids, s.cfg.QuestionCount)
	if err != nil {
		return nil, err
	}

	exam := &model.Exam{
		ID:          uuid.New(),
		UserID:      userID,
		StartTime:   s.now().UTC(),
		QuestionIDs: drawn,
		Answers:     model.NewAnswerSheet(len(drawn)),
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			// Lost a race with a concurrent start.
			if active, getErr := s.exams.GetActiveByUser(ctx, userID); getErr == nil {
				return nil, &ActiveSessionError{ID: active.ID, err: ErrActiveExamExists}
			}
			return nil, ErrActiveExamExists
		}
		return nil, fmt.Errorf("create exam: %w", err)
	}

	paper, err := s.loadPaper(ctx, exam)
	if err != nil {
		return nil, err
	}

	s.track(ctx, model.JourneyEvent{UserID: userID, Stage: model.JourneyExamStarted, OccurredAt: exam.StartTime})

	s.log.Info().
		Int("user_id", userID).
		Str("exam_id", exam.ID.String()).
		Int("questions", len(drawn)).
		Msg("Exam started")

	return &model.ExamView{
		Exam:             *exam,
		Questions:        paper,
		RemainingSeconds: s.remainingSeconds(exam),
	}, nil
}

// Current returns the user's in-progress exam.
func (s *ExamService) Current(ctx context.Context, userID int) (*model.ExamView, error) {
	exam, err := s.exams.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveExam
		}
		return nil, fmt.Errorf("get active exam: %w", err)
	}

	if s.overdue(exam) {
		if err := s.expire(ctx, exam); err != nil {
			return nil, err
		}
		return nil, ErrNoActiveExam
	}

	paper, err := s.loadPaper(ctx, exam)
	if err != nil {
		return nil, err
	}
	return &model.ExamView{
		Exam:             *exam,
		Questions:        paper,
		RemainingSeconds: s.remainingSeconds(exam),
	}, nil
}

// Get returns one of the user's exams. Finalized exams include the score,
// pass flag and answer key.
func (s *ExamService) Get(ctx context.Context, userID int, examID uuid.UUID) (*model.ExamView, error) {
	exam, err := s.owned(ctx, userID, examID)
	if err != nil {
		return nil, err
	}

	if exam.InProgress() && s.overdue(exam) {
		if err := s.expire(ctx, exam); err != nil {
			return nil, err
		}
		if exam, err = s.owned(ctx, userID, examID); err != nil {
			return nil, err
		}
	}

	if exam.InProgress() {
		paper, err := s.loadPaper(ctx, exam)
		if err != nil {
			return nil, err
		}
		return &model.ExamView{Exam: *exam, Questions: paper, RemainingSeconds: s.remainingSeconds(exam)}, nil
	}

	questions, err := s.orderedQuestions(ctx, exam.QuestionIDs)
	if err != nil {
		return nil, err
	}
	passed := exam.Score != nil && *exam.Score >= s.cfg.PassThreshold
	return &model.ExamView{
		Exam:           *exam,
		Questions:      forCandidate(questions),
		Passed:         &passed,
		CorrectAnswers: CorrectAnswers(questions),
	}, nil
}

// RecordAnswer saves a single answer of an in-progress exam. Writing the same
// answer twice is harmless.
func (s *ExamService) RecordAnswer(ctx context.Context, userID int, examID uuid.UUID, index, answer int) error {
	exam, err := s.owned(ctx, userID, examID)
	if err != nil {
		return err
	}
	if !exam.InProgress() {
		return ErrExamAlreadySubmitted
	}
	if s.overdue(exam) {
		if err := s.expire(ctx, exam); err != nil {
			return err
		}
		return ErrExamAlreadySubmitted
	}
	if index < 0 || index >= len(exam.QuestionIDs) {
		return ErrInvalidAnswer
	}

	paper, err := s.loadPaper(ctx, exam)
	if err != nil {
		return err
	}
	if answer != model.Unanswered && (answer < 0 || answer >= len(paper[index].Options)) {
		return ErrInvalidAnswer
	}

	if err := s.exams.SetAnswer(ctx, examID, index, answer); err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			return ErrExamAlreadySubmitted
		}
		return fmt.Errorf("set answer: %w", err)
	}
	return nil
}

// Submit finalizes the exam with the given answer sheet. A nil sheet submits
// the answers saved so far. The sheet must have exactly one slot per question;
// otherwise the exam is left untouched.
func (s *ExamService) Submit(ctx context.Context, userID int, examID uuid.UUID, answers []int) (*model.ExamResult, error) {
	exam, err := s.owned(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if !exam.InProgress() {
		return nil, ErrExamAlreadySubmitted
	}
	// Past the grace period only the saved answers count.
	if s.overdue(exam) {
		if err := s.expire(ctx, exam); err != nil {
			return nil, err
		}
		return nil, ErrExamAlreadySubmitted
	}
	if answers == nil {
		answers = exam.Answers
	}
	if len(answers) != len(exam.QuestionIDs) {
		return nil, ErrAnswerCountMismatch
	}

	questions, err := s.orderedQuestions(ctx, exam.QuestionIDs)
	if err != nil {
		return nil, err
	}
	// An index that no longer names an option (the question was edited after
	// the answer was saved) is graded as wrong rather than blocking submit.
	for _, a := range answers {
		if a < model.Unanswered {
			return nil, ErrInvalidAnswer
		}
	}

	tally := Grade(questions, answers)
	endTime := s.now().UTC()
	if err := s.exams.Finalize(ctx, exam.ID, answers, tally.Score, endTime); err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			return nil, ErrExamAlreadySubmitted
		}
		return nil, fmt.Errorf("finalize exam: %w", err)
	}

	s.afterFinalize(ctx, exam, tally, endTime)

	s.log.Info().
		Int("user_id", userID).
		Str("exam_id", exam.ID.String()).
		Int("score", tally.Score).
		Msg("Exam submitted")

	return &model.ExamResult{
		ExamID:         exam.ID,
		Score:          tally.Score,
		Passed:         tally.Score >= s.cfg.PassThreshold,
		CorrectCount:   tally.Correct,
		QuestionCount:  tally.Total,
		AnsweredCount:  tally.Answered,
		EndTime:        endTime,
		CorrectAnswers: CorrectAnswers(questions),
	}, nil
}

// History lists the user's finished exams, newest first.
func (s *ExamService) History(ctx context.Context, userID, page, perPage int) ([]model.ExamSummary, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)
	exams, total, err := s.exams.ListFinishedByUser(ctx, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}

	summaries := make([]model.ExamSummary, 0, len(exams))
	for _, e := range exams {
		answered := 0
		for _, a := range e.Answers {
			if a != model.Unanswered {
				answered++
			}
		}
		summaries = append(summaries, model.ExamSummary{
			ID:            e.ID,
			StartTime:     e.StartTime,
			EndTime:       e.EndTime,
			Score:         e.Score,
			Passed:        e.Score != nil && *e.Score >= s.cfg.PassThreshold,
			QuestionCount: len(e.QuestionIDs),
			AnsweredCount: answered,
		})
	}
	return summaries, buildPagination(page, perPage, total), nil
}

// SweepOverdue finalizes in-progress exams whose countdown and grace period
// have elapsed. Returns the number finalized.
func (s *ExamService) SweepOverdue(ctx context.Context, limit int) (int, error) {
	cutoff := s.now().Add(-(s.cfg.Duration + s.cfg.Grace))
	exams, err := s.exams.ListOverdue(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list overdue exams: %w", err)
	}

	swept := 0
	for i := range exams {
		if err := s.expire(ctx, &exams[i]); err != nil {
			s.log.Error().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Failed to expire exam")
			continue
		}
		swept++
	}
	return swept, nil
}

// expire finalizes an abandoned exam with its saved answers, ending it at the
// moment the countdown reached zero.
func (s *ExamService) expire(ctx context.Context, exam *model.Exam) error {
	questions, err := s.orderedQuestions(ctx, exam.QuestionIDs)
	if err != nil {
		return err
	}
	tally := Grade(questions, exam.Answers)
	endTime := exam.Deadline(s.cfg.Duration)

	if err := s.exams.Finalize(ctx, exam.ID, exam.Answers, tally.Score, endTime); err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			return nil
		}
		return fmt.Errorf("expire exam: %w", err)
	}

	s.afterFinalize(ctx, exam, tally, endTime)
	s.log.Info().
		Int("user_id", exam.UserID).
		Str("exam_id", exam.ID.String()).
		Int("score", tally.Score).
		Msg("Exam expired")
	return nil
}

func (s *ExamService) afterFinalize(ctx context.Context, exam *model.Exam, tally Tally, endTime time.Time) {
	if err := s.cache.Del(ctx, config.CacheKey.ExamPaperKey(exam.ID.String())); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to drop cached paper")
	}
	s.track(ctx, model.JourneyEvent{
		UserID:             exam.UserID,
		Stage:              model.JourneyExamCompleted,
		QuestionsAttempted: tally.Answered,
		CorrectAnswers:     tally.Correct,
		MinutesSpent:       minutesBetween(exam.StartTime, endTime),
		OccurredAt:         endTime,
	})
}

func (s *ExamService) owned(ctx context.Context, userID int, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.UserID != userID {
		return nil, ErrExamNotFound
	}
	return exam, nil
}

// loadPaper returns the candidate-facing questions of an exam. The paper is
// cached on first load and kept for the exam's lifetime.
func (s *ExamService) loadPaper(ctx context.Context, exam *model.Exam) ([]model.QuestionForCandidate, error) {
	key := config.CacheKey.ExamPaperKey(exam.ID.String())
	if raw, found, err := s.cache.Get(ctx, key); err == nil && found {
		var paper []model.QuestionForCandidate
		if err := json.Unmarshal([]byte(raw), &paper); err == nil && len(paper) == len(exam.QuestionIDs) {
			return paper, nil
		}
	} else if err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Paper cache read failed")
	}

	questions, err := s.orderedQuestions(ctx, exam.QuestionIDs)
	if err != nil {
		return nil, err
	}
	paper := forCandidate(questions)

	if raw, err := json.Marshal(paper); err == nil {
		if err := s.cache.Set(ctx, key, string(raw), s.cfg.PaperCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Paper cache write failed")
		}
	}
	return paper, nil
}

// orderedQuestions fetches questions in the stored id order and fails if any is missing.
func (s *ExamService) orderedQuestions(ctx context.Context, ids []int) ([]model.Question, error) {
	questions, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	if len(questions) != len(ids) {
		return nil, fmt.Errorf("exam references %d questions, found %d", len(ids), len(questions))
	}
	return questions, nil
}

func (s *ExamService) overdue(exam *model.Exam) bool {
	return s.now().After(exam.Deadline(s.cfg.Duration).Add(s.cfg.Grace))
}

func (s *ExamService) remainingSeconds(exam *model.Exam) int {
	left := exam.Deadline(s.cfg.Duration).Sub(s.now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

func (s *ExamService) track(ctx context.Context, ev model.JourneyEvent) {
	if err := s.journey.Track(ctx, ev); err != nil {
		s.log.Warn().Err(err).Int("user_id", ev.UserID).Str("stage", string(ev.Stage)).Msg("Failed to track journey event")
	}
}

// drawQuestions picks n distinct ids uniformly at random.
func drawQuestions(ids []int, n int) ([]int, error) {
	if n <= 0 || len(ids) < n {
		return nil, ErrNotEnoughQuestions
	}
	pool := make([]int, len(ids))
	copy(pool, ids)
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:n], nil
}

func minutesBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

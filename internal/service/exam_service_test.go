package service

import (
	"sync"
	"testing"
	"time"

	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExamStartDrawsDistinctQuestions(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 30)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)

	assert.Len(t, view.QuestionIDs, 20)
	assert.Len(t, view.Questions, 20)
	assert.Equal(t, model.NewAnswerSheet(20), view.Answers)
	assert.Nil(t, view.EndTime)
	assert.Equal(t, 20*60, view.RemainingSeconds)

	seen := make(map[int]bool)
	for i, id := range view.QuestionIDs {
		assert.False(t, seen[id], "question %d drawn twice", id)
		seen[id] = true
		assert.Equal(t, id, view.Questions[i].ID)
	}
	assert.Equal(t, []model.JourneyStage{model.JourneyExamStarted}, f.journey.Stages())
}

func TestExamSubmitAllCorrectScoresHundred(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 25)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)

	f.tick(10 * time.Minute)
	result, err := f.examSvc.Submit(t.Context(), f.userID, view.ID, f.correctSheet(t, view.QuestionIDs))
	require.NoError(t, err)

	assert.Equal(t, 100, result.Score)
	assert.True(t, result.Passed)
	assert.Equal(t, 20, result.CorrectCount)
	assert.Equal(t, f.now, result.EndTime)

	stored, err := f.exams.GetByID(t.Context(), view.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Score)
	assert.Equal(t, 100, *stored.Score)
	assert.Len(t, stored.Answers, len(stored.QuestionIDs))

	events := f.journey.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.JourneyExamCompleted, events[1].Stage)
	assert.Equal(t, 20, events[1].CorrectAnswers)
	assert.Equal(t, 10, events[1].MinutesSpent)
}

func TestExamSubmitRejectsWrongAnswerCount(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)

	sheet := f.correctSheet(t, view.QuestionIDs)[:19]
	_, err = f.examSvc.Submit(t.Context(), f.userID, view.ID, sheet)
	assert.ErrorIs(t, err, ErrAnswerCountMismatch)

	stored, err := f.exams.GetByID(t.Context(), view.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EndTime)
	assert.Nil(t, stored.Score)
}

func TestExamResubmitKeepsScoreAndEndTime(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)

	sheet := model.NewAnswerSheet(20)
	copy(sheet, f.correctSheet(t, view.QuestionIDs)[:14])
	first, err := f.examSvc.Submit(t.Context(), f.userID, view.ID, sheet)
	require.NoError(t, err)
	assert.Equal(t, 70, first.Score)
	assert.True(t, first.Passed)

	f.tick(time.Minute)
	_, err = f.examSvc.Submit(t.Context(), f.userID, view.ID, f.correctSheet(t, view.QuestionIDs))
	assert.ErrorIs(t, err, ErrExamAlreadySubmitted)

	stored, err := f.exams.GetByID(t.Context(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, *stored.Score)
	assert.Equal(t, first.EndTime, *stored.EndTime)
}

func TestExamSubmitWithoutSheetUsesSavedAnswers(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)
	key := f.correctSheet(t, view.QuestionIDs)

	for i := 0; i < 10; i++ {
		require.NoError(t, f.examSvc.RecordAnswer(t.Context(), f.userID, view.ID, i, key[i]))
	}
	// Saving the same answer twice is harmless.
	require.NoError(t, f.examSvc.RecordAnswer(t.Context(), f.userID, view.ID, 0, key[0]))

	result, err := f.examSvc.Submit(t.Context(), f.userID, view.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 50, result.Score)
	assert.False(t, result.Passed)
	assert.Equal(t, 10, result.AnsweredCount)
}

func TestExamSubmitAfterQuestionLostSavedOption(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)
	key := f.correctSheet(t, view.QuestionIDs)
	for i := 1; i < len(key); i++ {
		require.NoError(t, f.examSvc.RecordAnswer(t.Context(), f.userID, view.ID, i, key[i]))
	}
	require.NoError(t, f.examSvc.RecordAnswer(t.Context(), f.userID, view.ID, 0, 2))

	// An admin drops the third option of the first question mid-exam.
	q, err := f.questions.GetByID(t.Context(), view.QuestionIDs[0])
	require.NoError(t, err)
	q.Options = q.Options[:2]
	q.CorrectAnswer = 0
	require.NoError(t, f.questions.Update(t.Context(), q))

	result, err := f.examSvc.Submit(t.Context(), f.userID, view.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 19, result.CorrectCount)
	assert.Equal(t, 95, result.Score)
	assert.Equal(t, 20, result.AnsweredCount)

	_, err = f.examSvc.Submit(t.Context(), f.userID, view.ID, nil)
	assert.ErrorIs(t, err, ErrExamAlreadySubmitted)
}

func TestExamSubmitRejectsMalformedSlot(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)
	sheet := model.NewAnswerSheet(20)
	sheet[3] = -7

	_, err = f.examSvc.Submit(t.Context(), f.userID, view.ID, sheet)
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	current, err := f.examSvc.Current(t.Context(), f.userID)
	require.NoError(t, err)
	assert.True(t, current.InProgress())
}

func TestExamRecordAnswerValidatesInput(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.examSvc.RecordAnswer(t.Context(), f.userID, view.ID, 20, 0), ErrInvalidAnswer)
	assert.ErrorIs(t, f.examSvc.RecordAnswer(t.Context(), f.userID, view.ID, 0, 3), ErrInvalidAnswer)
	assert.NoError(t, f.examSvc.RecordAnswer(t.Context(), f.userID, view.ID, 0, model.Unanswered))
	assert.ErrorIs(t, f.examSvc.RecordAnswer(t.Context(), f.userID+1, view.ID, 0, 0), ErrExamNotFound)
}

func TestExamStartRequiresEntitlement(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)

	_, err := f.examSvc.Start(t.Context(), f.userID)
	assert.ErrorIs(t, err, ErrNotEntitled)

	// Expired pass.
	f.payments.Grant(f.userID, model.PackageDaily, f.now.Add(-time.Minute))
	_, err = f.examSvc.Start(t.Context(), f.userID)
	assert.ErrorIs(t, err, ErrNotEntitled)
}

func TestExamStartRejectsSecondActiveExam(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 40)
	f.entitle()

	first, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)

	_, err = f.examSvc.Start(t.Context(), f.userID)
	require.ErrorIs(t, err, ErrActiveExamExists)

	var active *ActiveSessionError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, first.ID, active.ID)
}

func TestExamConcurrentStartsLeaveOneActive(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 40)
	f.entitle()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.examSvc.Start(t.Context(), f.userID)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrActiveExamExists)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	_, err := f.exams.GetActiveByUser(t.Context(), f.userID)
	assert.NoError(t, err)
}

func TestExamStartFailsOnSmallBank(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 19)
	f.entitle()

	_, err := f.examSvc.Start(t.Context(), f.userID)
	assert.ErrorIs(t, err, ErrNotEnoughQuestions)
}

func TestExamExpiresAfterDeadlineAndGrace(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 40)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)
	key := f.correctSheet(t, view.QuestionIDs)
	for i := 0; i < 5; i++ {
		require.NoError(t, f.examSvc.RecordAnswer(t.Context(), f.userID, view.ID, i, key[i]))
	}

	// Inside the grace period the client's own submit still counts.
	f.tick(20*time.Minute + 30*time.Second)
	current, err := f.examSvc.Current(t.Context(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 0, current.RemainingSeconds)

	f.tick(time.Minute)
	_, err = f.examSvc.Submit(t.Context(), f.userID, view.ID, key)
	assert.ErrorIs(t, err, ErrExamAlreadySubmitted)

	stored, err := f.exams.GetByID(t.Context(), view.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EndTime)
	assert.Equal(t, view.StartTime.Add(20*time.Minute), *stored.EndTime)
	assert.Equal(t, 25, *stored.Score)

	_, err = f.examSvc.Current(t.Context(), f.userID)
	assert.ErrorIs(t, err, ErrNoActiveExam)

	// A new exam can start once the old one expired.
	_, err = f.examSvc.Start(t.Context(), f.userID)
	assert.NoError(t, err)
}

func TestExamSweepOverdue(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)

	n, err := f.examSvc.SweepOverdue(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.tick(22 * time.Minute)
	n, err = f.examSvc.SweepOverdue(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.exams.GetByID(t.Context(), view.ID)
	require.NoError(t, err)
	assert.False(t, stored.InProgress())
	assert.Equal(t, 0, *stored.Score)

	_, found, _ := f.cache.Get(t.Context(), config.CacheKey.ExamPaperKey(view.ID.String()))
	assert.False(t, found)
}

func TestExamGetRevealsKeyOnlyWhenFinished(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)
	f.entitle()

	view, err := f.examSvc.Start(t.Context(), f.userID)
	require.NoError(t, err)

	got, err := f.examSvc.Get(t.Context(), f.userID, view.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CorrectAnswers)
	assert.Nil(t, got.Passed)

	_, err = f.examSvc.Submit(t.Context(), f.userID, view.ID, nil)
	require.NoError(t, err)

	got, err = f.examSvc.Get(t.Context(), f.userID, view.ID)
	require.NoError(t, err)
	assert.Equal(t, f.correctSheet(t, view.QuestionIDs), got.CorrectAnswers)
	require.NotNil(t, got.Passed)
	assert.False(t, *got.Passed)
}

func TestExamHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 20)
	f.entitle()

	var ids []string
	for i := 0; i < 3; i++ {
		view, err := f.examSvc.Start(t.Context(), f.userID)
		require.NoError(t, err)
		f.tick(time.Minute)
		_, err = f.examSvc.Submit(t.Context(), f.userID, view.ID, nil)
		require.NoError(t, err)
		ids = append(ids, view.ID.String())
	}

	history, p, err := f.examSvc.History(t.Context(), f.userID, 1, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[2], history[0].ID.String())
	assert.Equal(t, ids[1], history[1].ID.String())
	assert.Equal(t, 3, p.TotalItems)
	assert.Equal(t, 2, p.TotalPages)
}

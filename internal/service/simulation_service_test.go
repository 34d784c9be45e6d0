package service

import (
	"testing"
	"time"

	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func (f *fixture) createSimulation(t *testing.T, cfg model.SimulationConfig, ids []int) *model.SimulationState {
	t.Helper()
	state, err := f.simSvc.Create(t.Context(), f.userID, &model.CreateSimulationRequest{Config: cfg, QuestionIDs: ids})
	require.NoError(t, err)
	return state
}

func TestSimulationCreate(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 5)
	f.entitle()

	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)

	assert.Equal(t, model.SimulationStatusNotStarted, state.Simulation.Status)
	assert.Equal(t, ids, state.Simulation.QuestionIDs)
	assert.Equal(t, model.NewAnswerSheet(5), state.Simulation.Answers)
	assert.Equal(t, 0, state.Simulation.CurrentQuestionIndex)
	assert.Len(t, state.RecoveryToken, 32)
	require.Len(t, state.Questions, 5)
	assert.Equal(t, ids[0], state.Questions[0].ID)
}

func TestSimulationCreateDrawsFromCategory(t *testing.T) {
	f := newFixture(t)
	f.questions.Seed("signs", 10)
	rules := f.questions.Seed("right-of-way", 10)
	f.entitle()

	state, err := f.simSvc.Create(t.Context(), f.userID, &model.CreateSimulationRequest{
		Config:        model.SimulationConfig{TimePerQuestion: 30},
		QuestionCount: 4,
		Category:      "right-of-way",
	})
	require.NoError(t, err)

	assert.Len(t, state.Simulation.QuestionIDs, 4)
	assert.Subset(t, rules, state.Simulation.QuestionIDs)
}

func TestSimulationCreateRejectsUnknownOrDuplicateIDs(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()

	cfg := model.SimulationConfig{TimePerQuestion: 30}
	_, err := f.simSvc.Create(t.Context(), f.userID, &model.CreateSimulationRequest{Config: cfg, QuestionIDs: []int{ids[0], 999}})
	assert.ErrorIs(t, err, ErrUnknownQuestion)

	_, err = f.simSvc.Create(t.Context(), f.userID, &model.CreateSimulationRequest{Config: cfg, QuestionIDs: []int{ids[0], ids[0]}})
	assert.ErrorIs(t, err, ErrUnknownQuestion)
}

func TestSimulationCreateRequiresEntitlement(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)

	_, err := f.simSvc.Create(t.Context(), f.userID, &model.CreateSimulationRequest{
		Config:      model.SimulationConfig{TimePerQuestion: 30},
		QuestionIDs: ids,
	})
	assert.ErrorIs(t, err, ErrNotEntitled)
}

func TestSimulationSingleOpenSession(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()

	first := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)

	_, err := f.simSvc.Create(t.Context(), f.userID, &model.CreateSimulationRequest{
		Config:      model.SimulationConfig{TimePerQuestion: 30},
		QuestionIDs: ids,
	})
	require.ErrorIs(t, err, ErrActiveSimulationExists)
	var active *ActiveSessionError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, first.Simulation.ID, active.ID)

	// Once the first one is completed a new one may start.
	_, err = f.simSvc.Complete(t.Context(), f.userID, first.Simulation.ID)
	require.NoError(t, err)
	f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)
}

func TestSimulationAnswerWithFeedback(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30, ShowFeedback: true}, ids)
	simID := state.Simulation.ID

	q, err := f.questions.GetByID(t.Context(), ids[0])
	require.NoError(t, err)

	_, err = f.simSvc.Answer(t.Context(), f.userID, simID, &model.SimulationAnswerRequest{QuestionID: ids[1], SelectedAnswer: intPtr(0)})
	assert.ErrorIs(t, err, ErrNotCurrentQuestion)

	_, err = f.simSvc.Answer(t.Context(), f.userID, simID, &model.SimulationAnswerRequest{QuestionID: ids[0], SelectedAnswer: intPtr(7)})
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	f.tick(12 * time.Second)
	res, err := f.simSvc.Answer(t.Context(), f.userID, simID, &model.SimulationAnswerRequest{QuestionID: ids[0], SelectedAnswer: intPtr(wrong(*q))})
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	require.NotNil(t, res.IsCorrect)
	assert.False(t, *res.IsCorrect)
	assert.Equal(t, q.CorrectAnswer, *res.CorrectAnswer)

	logs := f.sims.Logs(simID)
	require.Len(t, logs, 1)
	assert.Equal(t, 12, logs[0].TimeSpentSeconds)
	assert.Equal(t, "signs", logs[0].Category)

	stored, err := f.sims.GetByID(t.Context(), simID)
	require.NoError(t, err)
	assert.Equal(t, model.SimulationStatusActive, stored.Status)
	assert.Equal(t, wrong(*q), stored.Answers[0])

	// Changing the answer needs allow_review.
	_, err = f.simSvc.Answer(t.Context(), f.userID, simID, &model.SimulationAnswerRequest{QuestionID: ids[0], SelectedAnswer: intPtr(q.CorrectAnswer)})
	assert.ErrorIs(t, err, ErrReviewNotAllowed)
	assert.Len(t, f.sims.Logs(simID), 1)
}

func TestSimulationAnswerHidesFeedback(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 2)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30, AllowReview: true}, ids)

	res, err := f.simSvc.Answer(t.Context(), f.userID, state.Simulation.ID, &model.SimulationAnswerRequest{QuestionID: ids[0], SelectedAnswer: intPtr(1), TimeSpent: 4})
	require.NoError(t, err)
	assert.Nil(t, res.IsCorrect)
	assert.Nil(t, res.CorrectAnswer)
	assert.Nil(t, res.Explanation)

	_, err = f.simSvc.Answer(t.Context(), f.userID, state.Simulation.ID, &model.SimulationAnswerRequest{QuestionID: ids[0], SelectedAnswer: intPtr(2), TimeSpent: 3})
	require.NoError(t, err)
	assert.Len(t, f.sims.Logs(state.Simulation.ID), 2)
}

func TestSimulationTimerExpiryAllowsAdvanceWithoutLog(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 60, ShowTimer: true}, ids)
	simID := state.Simulation.ID

	// Skipping is off and the timer still runs.
	f.tick(30 * time.Second)
	_, err := f.simSvc.Advance(t.Context(), f.userID, simID)
	assert.ErrorIs(t, err, ErrSkipNotAllowed)

	f.tick(36 * time.Second)
	_, err = f.simSvc.Answer(t.Context(), f.userID, simID, &model.SimulationAnswerRequest{QuestionID: ids[0], SelectedAnswer: intPtr(0)})
	assert.ErrorIs(t, err, ErrQuestionTimeUp)

	sim, err := f.simSvc.Advance(t.Context(), f.userID, simID)
	require.NoError(t, err)
	assert.Equal(t, 1, sim.CurrentQuestionIndex)
	assert.Equal(t, model.Unanswered, sim.Answers[0])
	assert.Empty(t, f.sims.Logs(simID))

	stored, err := f.sims.GetByID(t.Context(), simID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentQuestionIndex)
	assert.Equal(t, f.now, stored.QuestionStartedAt)
}

func TestSimulationShortTimerStillEnforcesSkip(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 5, ShowTimer: true}, ids)
	simID := state.Simulation.ID

	f.tick(time.Second)
	_, err := f.simSvc.Advance(t.Context(), f.userID, simID)
	assert.ErrorIs(t, err, ErrSkipNotAllowed)

	// Half the timer is the most that counts as early expiry.
	f.tick(2 * time.Second)
	sim, err := f.simSvc.Advance(t.Context(), f.userID, simID)
	require.NoError(t, err)
	assert.Equal(t, 1, sim.CurrentQuestionIndex)
}

func TestSimulationAdvanceIsMonotonicAndCompletes(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30, AllowSkip: true}, ids)
	simID := state.Simulation.ID
	key := f.correctSheet(t, ids)

	_, err := f.simSvc.Answer(t.Context(), f.userID, simID, &model.SimulationAnswerRequest{QuestionID: ids[0], SelectedAnswer: intPtr(key[0])})
	require.NoError(t, err)

	for want := 1; want <= 2; want++ {
		sim, err := f.simSvc.Advance(t.Context(), f.userID, simID)
		require.NoError(t, err)
		assert.Equal(t, want, sim.CurrentQuestionIndex)
		assert.False(t, sim.IsCompleted())
	}

	// A stale cursor can no longer move the simulation.
	assert.ErrorIs(t, f.sims.Advance(t.Context(), simID, 0, f.now), repository.ErrConcurrentUpdate)

	sim, err := f.simSvc.Advance(t.Context(), f.userID, simID)
	require.NoError(t, err)
	assert.Equal(t, 3, sim.CurrentQuestionIndex)
	assert.True(t, sim.IsCompleted())
	require.NotNil(t, sim.Score)
	assert.Equal(t, 33, *sim.Score)

	_, err = f.simSvc.Advance(t.Context(), f.userID, simID)
	assert.ErrorIs(t, err, ErrSimulationCompleted)

	stages := f.journey.Stages()
	assert.Equal(t, []model.JourneyStage{model.JourneyPracticeCompleted}, stages)
}

func TestSimulationStaleSessionEndsAtLastActivity(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)
	simID := state.Simulation.ID

	f.tick(time.Minute)
	_, err := f.simSvc.Heartbeat(t.Context(), f.userID, simID, &model.HeartbeatRequest{RecoveryToken: state.RecoveryToken, TimeRemaining: intPtr(25)})
	require.NoError(t, err)
	lastActive := f.now

	f.tick(6 * time.Minute)
	check, err := f.simSvc.ActiveCheck(t.Context(), f.userID)
	require.NoError(t, err)
	assert.False(t, check.HasActive)

	stored, err := f.sims.GetByID(t.Context(), simID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted())
	require.NotNil(t, stored.EndTime)
	assert.Equal(t, lastActive, *stored.EndTime)
}

func TestSimulationHeartbeatOnStaleSessionExpires(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)

	f.tick(6 * time.Minute)
	_, err := f.simSvc.Heartbeat(t.Context(), f.userID, state.Simulation.ID, &model.HeartbeatRequest{RecoveryToken: state.RecoveryToken})
	assert.ErrorIs(t, err, ErrSimulationExpired)
}

func TestSimulationRecoverRotatesToken(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)
	oldToken := state.RecoveryToken

	_, err := f.simSvc.Recover(t.Context(), f.userID, "not-the-token")
	assert.ErrorIs(t, err, ErrRecoveryTokenExpired)

	f.tick(2 * time.Minute)
	recovered, err := f.simSvc.Recover(t.Context(), f.userID, oldToken)
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, recovered.RecoveryToken)
	assert.Equal(t, 1, recovered.Simulation.RecoveryAttempts)
	assert.Len(t, recovered.Questions, 3)

	_, err = f.simSvc.Recover(t.Context(), f.userID, oldToken)
	assert.ErrorIs(t, err, ErrRecoveryTokenExpired)

	_, err = f.simSvc.Heartbeat(t.Context(), f.userID, state.Simulation.ID, &model.HeartbeatRequest{RecoveryToken: oldToken})
	assert.ErrorIs(t, err, ErrRecoveryTokenExpired)

	_, err = f.simSvc.Heartbeat(t.Context(), f.userID, state.Simulation.ID, &model.HeartbeatRequest{RecoveryToken: recovered.RecoveryToken})
	assert.NoError(t, err)
}

func TestSimulationRecoverStaleSession(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)

	f.tick(10 * time.Minute)
	_, err := f.simSvc.Recover(t.Context(), f.userID, state.RecoveryToken)
	assert.ErrorIs(t, err, ErrSimulationExpired)

	stored, err := f.sims.GetByID(t.Context(), state.Simulation.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCompleted())
}

func TestSimulationRecoverWithWrongTokenSettlesStaleSession(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)

	f.tick(10 * time.Minute)
	_, err := f.simSvc.Recover(t.Context(), f.userID, "stale-or-wrong")
	assert.ErrorIs(t, err, ErrSimulationExpired)

	stored, err := f.sims.GetByID(t.Context(), state.Simulation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SimulationStatusCompleted, stored.Status)
	require.NotNil(t, stored.EndTime)
	assert.Equal(t, state.Simulation.LastActiveAt, *stored.EndTime)
}

func TestSimulationGetActiveOmitsToken(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)

	state, err := f.simSvc.GetActive(t.Context(), f.userID)
	require.NoError(t, err)
	assert.Empty(t, state.RecoveryToken)
	assert.Len(t, state.Questions, 3)
}

func TestSimulationSweepStale(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 3)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)
	created := f.now

	f.tick(4 * time.Minute)
	n, err := f.simSvc.SweepStale(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.tick(2 * time.Minute)
	n, err = f.simSvc.SweepStale(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.sims.GetByID(t.Context(), state.Simulation.ID)
	require.NoError(t, err)
	assert.Equal(t, created, *stored.EndTime)
}

func TestSimulationCategoryStats(t *testing.T) {
	f := newFixture(t)
	signs := f.questions.Seed("signs", 2)
	rules := f.questions.Seed("rules", 1)
	f.entitle()
	ids := append(append([]int{}, signs...), rules...)
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30}, ids)
	key := f.correctSheet(t, ids)

	answers := []int{key[0], (key[1] + 1) % 3, key[2]}
	for i, id := range ids {
		_, err := f.simSvc.Answer(t.Context(), f.userID, state.Simulation.ID, &model.SimulationAnswerRequest{
			QuestionID: id, SelectedAnswer: intPtr(answers[i]), TimeSpent: 10 * (i + 1),
		})
		require.NoError(t, err)
		_, err = f.simSvc.Advance(t.Context(), f.userID, state.Simulation.ID)
		require.NoError(t, err)
	}

	stats, err := f.simSvc.CategoryStats(t.Context(), f.userID)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "rules", stats[0].Category)
	assert.Equal(t, 1, stats[0].Attempted)
	assert.InDelta(t, 100.0, stats[0].Accuracy, 0.001)

	assert.Equal(t, "signs", stats[1].Category)
	assert.Equal(t, 2, stats[1].Attempted)
	assert.Equal(t, 1, stats[1].Correct)
	assert.InDelta(t, 50.0, stats[1].Accuracy, 0.001)
	assert.InDelta(t, 15.0, stats[1].AvgTimeSeconds, 0.001)
}

func TestSimulationLogs(t *testing.T) {
	f := newFixture(t)
	ids := f.questions.Seed("signs", 2)
	f.entitle()
	state := f.createSimulation(t, model.SimulationConfig{TimePerQuestion: 30, AllowSkip: true}, ids)
	simID := state.Simulation.ID
	key := f.correctSheet(t, ids)

	f.tick(12 * time.Second)
	_, err := f.simSvc.Answer(t.Context(), f.userID, simID, &model.SimulationAnswerRequest{QuestionID: ids[0], SelectedAnswer: intPtr(key[0])})
	require.NoError(t, err)

	// Without feedback the log would give the answers away mid-session.
	_, err = f.simSvc.Logs(t.Context(), f.userID, simID)
	assert.ErrorIs(t, err, ErrSimulationNotFinished)

	_, err = f.simSvc.Complete(t.Context(), f.userID, simID)
	require.NoError(t, err)

	logs, err := f.simSvc.Logs(t.Context(), f.userID, simID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ids[0], logs[0].QuestionID)
	assert.True(t, logs[0].IsCorrect)
	assert.Equal(t, 12, logs[0].TimeSpentSeconds)

	_, err = f.simSvc.Logs(t.Context(), f.userID+1, simID)
	assert.ErrorIs(t, err, ErrSimulationNotFound)
}

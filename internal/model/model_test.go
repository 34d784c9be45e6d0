package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPackageValidUntil(t *testing.T) {
	from := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, from.Add(time.Hour), PackageSingle.ValidUntil(from))
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), PackageDaily.ValidUntil(from))
	assert.Equal(t, time.Date(2026, 2, 7, 10, 0, 0, 0, time.UTC), PackageWeekly.ValidUntil(from))
	// One calendar month from January 31st normalizes past February.
	assert.Equal(t, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC), PackageMonthly.ValidUntil(from))
}

func TestLookupPackage(t *testing.T) {
	p, ok := LookupPackage(PackageWeekly)
	assert.True(t, ok)
	assert.Equal(t, "5000", p.Price.String())

	_, ok = LookupPackage("yearly")
	assert.False(t, ok)
}

func TestPaymentGrantsAccessAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		status PaymentStatus
		until  time.Time
		want   bool
	}{
		{"completed and valid", PaymentStatusCompleted, now.Add(time.Minute), true},
		{"completed but expired", PaymentStatusCompleted, now.Add(-time.Minute), false},
		{"expires exactly now", PaymentStatusCompleted, now, false},
		{"pending", PaymentStatusPending, now.Add(time.Hour), false},
		{"refunded", PaymentStatusRefunded, now.Add(time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Payment{Status: tt.status, ValidUntil: tt.until}
			assert.Equal(t, tt.want, p.GrantsAccessAt(now))
		})
	}
}

func TestJourneyApply(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	j := NewJourney(t0)

	j.Apply(JourneyEvent{Stage: JourneyExamStarted, OccurredAt: t0.Add(time.Minute)})
	j.Apply(JourneyEvent{Stage: JourneyExamCompleted, QuestionsAttempted: 20, CorrectAnswers: 15, MinutesSpent: 18, OccurredAt: t0.Add(20 * time.Minute)})
	j.Apply(JourneyEvent{Stage: JourneyPracticeCompleted, QuestionsAttempted: 5, CorrectAnswers: 5, MinutesSpent: 3, OccurredAt: t0.Add(30 * time.Minute)})
	j.Apply(JourneyEvent{Stage: JourneyExamStarted, OccurredAt: t0.Add(40 * time.Minute)})

	assert.Equal(t, JourneyExamCompleted, j.Stage)
	assert.Equal(t, 25, j.QuestionsAttempted)
	assert.Equal(t, 20, j.CorrectAnswers)
	assert.Equal(t, 21, j.MinutesSpent)
	assert.Equal(t, t0.Add(time.Minute), j.StageTimestamps[JourneyExamStarted])
	assert.Equal(t, t0.Add(30*time.Minute), j.StageTimestamps[JourneyPracticeCompleted])
	assert.Len(t, j.StageTimestamps, 4)
}

func TestJourneyApplyOnZeroValue(t *testing.T) {
	var j Journey
	j.Apply(JourneyEvent{Stage: JourneyExamStarted, OccurredAt: time.Unix(0, 0)})
	assert.Equal(t, JourneyExamStarted, j.Stage)

	j.Apply(JourneyEvent{Stage: "unknown", QuestionsAttempted: 1})
	assert.Equal(t, JourneyExamStarted, j.Stage)
	assert.NotContains(t, j.StageTimestamps, JourneyStage("unknown"))
	assert.Equal(t, 1, j.QuestionsAttempted)
}

func TestSimulationTimers(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := Simulation{
		Config:            SimulationConfig{TimePerQuestion: 60, ShowTimer: true},
		QuestionIDs:       []int{4, 8},
		QuestionStartedAt: start,
		LastActiveAt:      start,
	}

	assert.False(t, s.QuestionTimerExpired(start.Add(64*time.Second), 5*time.Second))
	assert.True(t, s.QuestionTimerExpired(start.Add(66*time.Second), 5*time.Second))
	assert.False(t, s.IsStale(start.Add(5*time.Minute), 5*time.Minute))
	assert.True(t, s.IsStale(start.Add(6*time.Minute), 5*time.Minute))

	s.Config.ShowTimer = false
	assert.False(t, s.QuestionTimerExpired(start.Add(time.Hour), 0))

	id, ok := s.CurrentQuestionID()
	assert.True(t, ok)
	assert.Equal(t, 4, id)
	s.CurrentQuestionIndex = 2
	_, ok = s.CurrentQuestionID()
	assert.False(t, ok)
}

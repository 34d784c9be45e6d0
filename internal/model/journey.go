package model

import "time"

// JourneyStage is a step of the purchase funnel.
type JourneyStage string

const (
	JourneyInitial           JourneyStage = "initial"
	JourneyExamStarted       JourneyStage = "exam_started"
	JourneyPracticeCompleted JourneyStage = "practice_completed"
	JourneyExamCompleted     JourneyStage = "exam_completed"
)

var journeyOrder = map[JourneyStage]int{
	JourneyInitial:           0,
	JourneyExamStarted:       1,
	JourneyPracticeCompleted: 2,
	JourneyExamCompleted:     3,
}

// Journey tracks what a paying user has done with their access.
type Journey struct {
	Stage              JourneyStage               `json:"stage"`
	StageTimestamps    map[JourneyStage]time.Time `json:"stage_timestamps"`
	QuestionsAttempted int                        `json:"questions_attempted"`
	CorrectAnswers     int                        `json:"correct_answers"`
	MinutesSpent       int                        `json:"minutes_spent"`
}

// NewJourney returns a journey at its initial stage.
func NewJourney(at time.Time) Journey {
	return Journey{
		Stage:           JourneyInitial,
		StageTimestamps: map[JourneyStage]time.Time{JourneyInitial: at},
	}
}

// JourneyEvent is emitted by the exam and simulation managers.
type JourneyEvent struct {
	UserID             int          `json:"user_id"`
	Stage              JourneyStage `json:"stage"`
	QuestionsAttempted int          `json:"questions_attempted"`
	CorrectAnswers     int          `json:"correct_answers"`
	MinutesSpent       int          `json:"minutes_spent"`
	OccurredAt         time.Time    `json:"occurred_at"`
}

// Apply folds an event into the journey. The stage only moves forward and
// each stage keeps the timestamp of its first occurrence; counters always
// accumulate.
func (j *Journey) Apply(ev JourneyEvent) {
	if j.StageTimestamps == nil {
		j.StageTimestamps = make(map[JourneyStage]time.Time)
	}
	if j.Stage == "" {
		j.Stage = JourneyInitial
	}

	if _, seen := j.StageTimestamps[ev.Stage]; !seen {
		if _, known := journeyOrder[ev.Stage]; known {
			j.StageTimestamps[ev.Stage] = ev.OccurredAt
		}
	}
	if rank, ok := journeyOrder[ev.Stage]; ok && rank > journeyOrder[j.Stage] {
		j.Stage = ev.Stage
	}

	j.QuestionsAttempted += ev.QuestionsAttempted
	j.CorrectAnswers += ev.CorrectAnswers
	j.MinutesSpent += ev.MinutesSpent
}

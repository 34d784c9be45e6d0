package service

import (
	"testing"

	"github.com/roadready/theory-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func questionsWithKey(key ...int) []model.Question {
	qs := make([]model.Question, len(key))
	for i, k := range key {
		qs[i] = model.Question{ID: 100 + i, Options: []string{"a", "b", "c", "d"}, CorrectAnswer: k}
	}
	return qs
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name    string
		key     []int
		answers []int
		want    Tally
	}{
		{
			name:    "all correct",
			key:     []int{0, 1, 2},
			answers: []int{0, 1, 2},
			want:    Tally{Correct: 3, Answered: 3, Total: 3, Score: 100},
		},
		{
			name:    "unanswered slots count as wrong",
			key:     []int{0, 1, 2},
			answers: []int{0, 1, model.Unanswered},
			want:    Tally{Correct: 2, Answered: 2, Total: 3, Score: 67},
		},
		{
			name:    "nothing answered",
			key:     []int{3, 3},
			answers: []int{model.Unanswered, model.Unanswered},
			want:    Tally{Correct: 0, Answered: 0, Total: 2, Score: 0},
		},
		{
			name:    "empty sheet",
			key:     nil,
			answers: nil,
			want:    Tally{},
		},
		{
			name:    "rounds half up",
			key:     []int{0, 0, 0, 0, 0, 0, 0, 0},
			answers: []int{0, 0, 0, 1, 1, 1, 1, 1},
			want:    Tally{Correct: 3, Answered: 8, Total: 8, Score: 38},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Grade(questionsWithKey(tt.key...), tt.answers))
		})
	}
}

func TestGradeIsPositional(t *testing.T) {
	// Same answer values, different order: only position decides.
	qs := questionsWithKey(0, 1, 2, 3)
	assert.Equal(t, 100, Grade(qs, []int{0, 1, 2, 3}).Score)
	assert.Equal(t, 0, Grade(qs, []int{3, 2, 1, 0}).Score)
}

func TestNormalizePage(t *testing.T) {
	page, perPage := normalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 10, perPage)

	page, perPage = normalizePage(3, 500)
	assert.Equal(t, 3, page)
	assert.Equal(t, 100, perPage)

	p := buildPagination(2, 10, 21)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 21, p.TotalItems)
}

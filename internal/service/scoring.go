package service

import (
	"math"

	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/response"
)

// PassThreshold is the default minimum score counted as a pass.
const PassThreshold = 70

// Tally is the outcome of grading an answer sheet.
type Tally struct {
	Correct  int
	Answered int
	Total    int
	Score    int
}

// Grade scores answers positionally: answers[i] is compared with the correct
// answer of questions[i], never matched by question id. Score is
// round(100 * correct / total); an empty sheet scores 0.
func Grade(questions []model.Question, answers []int) Tally {
	t := Tally{Total: len(questions)}
	for i, q := range questions {
		if i >= len(answers) {
			break
		}
		if answers[i] != model.Unanswered {
			t.Answered++
		}
		if answers[i] == q.CorrectAnswer {
			t.Correct++
		}
	}
	if t.Total > 0 {
		t.Score = int(math.Round(100 * float64(t.Correct) / float64(t.Total)))
	}
	return t
}

// CorrectAnswers lists the answer key in question order.
func CorrectAnswers(questions []model.Question) []int {
	key := make([]int, len(questions))
	for i, q := range questions {
		key[i] = q.CorrectAnswer
	}
	return key
}

func forCandidate(questions []model.Question) []model.QuestionForCandidate {
	out := make([]model.QuestionForCandidate, len(questions))
	for i := range questions {
		out[i] = questions[i].ForCandidate()
	}
	return out
}

// normalizePage clamps page to >= 1 and perPage to 1..100 (default 10).
func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

func buildPagination(page, perPage, total int) *response.Pagination {
	return &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
}

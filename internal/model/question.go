package model

import "time"

// Question is a single multiple-choice item of the question bank.
// CorrectAnswer is a zero-based index into Options.
type Question struct {
	ID            int       `json:"id"`
	Category      string    `json:"category"`
	Prompt        string    `json:"prompt"`
	Options       []string  `json:"options"`
	CorrectAnswer int       `json:"correct_answer"`
	ImageURL      *string   `json:"image_url,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ForCandidate strips the answer key.
func (q *Question) ForCandidate() QuestionForCandidate {
	return QuestionForCandidate{
		ID:       q.ID,
		Category: q.Category,
		Prompt:   q.Prompt,
		Options:  q.Options,
		ImageURL: q.ImageURL,
	}
}

// IsValidAnswer reports whether answer is a selectable option index.
func (q *Question) IsValidAnswer(answer int) bool {
	return answer >= 0 && answer < len(q.Options)
}

// QuestionForCandidate is a question without its correct answer, sent while
// an exam or simulation is in progress.
type QuestionForCandidate struct {
	ID       int      `json:"id"`
	Category string   `json:"category"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
	ImageURL *string  `json:"image_url,omitempty"`
}

// QuestionRequest is the payload for creating or updating a question.
// The yaml tags let seed files reuse it.
type QuestionRequest struct {
	Category      string   `json:"category" yaml:"category" binding:"required,notblank,min=2,max=100"`
	Prompt        string   `json:"prompt" yaml:"prompt" binding:"required,notblank,max=2000"`
	Options       []string `json:"options" yaml:"options" binding:"required,min=2,max=6,dive,required,notblank,max=500"`
	CorrectAnswer *int     `json:"correct_answer" yaml:"correct_answer" binding:"required,min=0"`
	ImageURL      *string  `json:"image_url" yaml:"image_url" binding:"omitempty,max=500"`
	Explanation   string   `json:"explanation" yaml:"explanation" binding:"omitempty,max=2000"`
}

// ToQuestion maps the request onto a Question.
func (r *QuestionRequest) ToQuestion() *Question {
	q := &Question{
		Category:    r.Category,
		Prompt:      r.Prompt,
		Options:     r.Options,
		ImageURL:    r.ImageURL,
		Explanation: r.Explanation,
	}
	if r.CorrectAnswer != nil {
		q.CorrectAnswer = *r.CorrectAnswer
	}
	return q
}

// QuestionFilter narrows question listings.
type QuestionFilter struct {
	Category string
	Search   string
	Limit    int
	Offset   int
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/roadready/theory-backend/internal/model"
)

const examColumns = `id, user_id, start_time, end_time, question_ids, answers, score`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.UserID, &e.StartTime, &e.EndTime, &e.QuestionIDs, &e.Answers, &e.Score)
}

// Create inserts a new in-progress exam. The partial unique index on
// (user_id) WHERE end_time IS NULL turns a concurrent second start into
// ErrActiveSessionExists.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exams (id, user_id, start_time, question_ids, answers)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.UserID, e.StartTime, e.QuestionIDs, e.Answers,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrActiveSessionExists
		}
		return err
	}
	return nil
}

// GetByID retrieves an exam by ID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	if err := scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetActiveByUser retrieves the user's in-progress exam.
func (r *ExamRepository) GetActiveByUser(ctx context.Context, userID int) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE user_id = $1 AND end_time IS NULL`, userID), e)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListFinishedByUser retrieves finalized exams, newest first.
func (r *ExamRepository) ListFinishedByUser(ctx context.Context, userID, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE user_id = $1 AND end_time IS NOT NULL`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE user_id = $1 AND end_time IS NOT NULL
		 ORDER BY end_time DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// SetAnswer writes one answer slot of an in-progress exam. Postgres arrays
// are one-based, hence index+1.
func (r *ExamRepository) SetAnswer(ctx context.Context, id uuid.UUID, index, answer int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET answers[$2] = $3
		 WHERE id = $1 AND end_time IS NULL AND $2 <= cardinality(answers)`,
		id, index+1, answer,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

// Finalize stores the final answers and score. Only the first finalization
// wins; later calls get ErrAlreadyFinalized and change nothing.
func (r *ExamRepository) Finalize(ctx context.Context, id uuid.UUID, answers []int, score int, endTime time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET answers = $2, score = $3, end_time = $4
		 WHERE id = $1 AND end_time IS NULL`,
		id, answers, score, endTime,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

// ListOverdue retrieves in-progress exams started before the cutoff.
func (r *ExamRepository) ListOverdue(ctx context.Context, startedBefore time.Time, limit int) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE end_time IS NULL AND start_time < $1
		 ORDER BY start_time
		 LIMIT $2`, startedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/roadready/theory-backend/internal/model"
)

const simulationColumns = `id, user_id, status, config, question_ids, answers, current_question_index,
	question_started_at, start_time, end_time, score, time_remaining, last_active_at,
	recovery_token, recovery_attempts`

// SimulationRepository handles practice simulation data access.
type SimulationRepository struct {
	pool *pgxpool.Pool
}

// NewSimulationRepository creates a new SimulationRepository.
func NewSimulationRepository(pool *pgxpool.Pool) *SimulationRepository {
	return &SimulationRepository{pool: pool}
}

func scanSimulation(row pgx.Row, s *model.Simulation) error {
	return row.Scan(
		&s.ID, &s.UserID, &s.Status, &s.Config, &s.QuestionIDs, &s.Answers, &s.CurrentQuestionIndex,
		&s.QuestionStartedAt, &s.StartTime, &s.EndTime, &s.Score, &s.TimeRemaining, &s.LastActiveAt,
		&s.RecoveryToken, &s.RecoveryAttempts,
	)
}

// Create inserts a new simulation. A second open simulation for the same user
// violates the partial unique index and yields ErrActiveSessionExists.
func (r *SimulationRepository) Create(ctx context.Context, s *model.Simulation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_simulations
		   (id, user_id, status, config, question_ids, answers, current_question_index,
		    question_started_at, start_time, last_active_at, recovery_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.UserID, s.Status, s.Config, s.QuestionIDs, s.Answers, s.CurrentQuestionIndex,
		s.QuestionStartedAt, s.StartTime, s.LastActiveAt, s.RecoveryToken,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrActiveSessionExists
		}
		return err
	}
	return nil
}

// GetByID retrieves a simulation by ID.
func (r *SimulationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Simulation, error) {
	s := &model.Simulation{}
	if err := scanSimulation(r.pool.QueryRow(ctx,
		`SELECT `+simulationColumns+` FROM exam_simulations WHERE id = $1`, id), s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetOpenByUser retrieves the user's simulation that is not completed.
func (r *SimulationRepository) GetOpenByUser(ctx context.Context, userID int) (*model.Simulation, error) {
	s := &model.Simulation{}
	if err := scanSimulation(r.pool.QueryRow(ctx,
		`SELECT `+simulationColumns+` FROM exam_simulations
		 WHERE user_id = $1 AND status <> 'completed'`, userID), s); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordAnswer stores the answer at the log's question index and appends the
// log row in one transaction. The update is guarded on the cursor still
// pointing at that index.
func (r *SimulationRepository) RecordAnswer(ctx context.Context, l *model.SimulationLog, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE exam_simulations
		 SET answers[$2] = $3, status = 'active', last_active_at = $4
		 WHERE id = $1 AND status <> 'completed' AND current_question_index = $5`,
		l.SimulationID, l.QuestionIndex+1, l.SelectedAnswer, now, l.QuestionIndex,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO exam_simulation_logs
		   (simulation_id, user_id, question_id, category, question_index, selected_answer, is_correct, time_spent_seconds, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		l.SimulationID, l.UserID, l.QuestionID, l.Category, l.QuestionIndex, l.SelectedAnswer, l.IsCorrect, l.TimeSpentSeconds, now,
	).Scan(&l.ID)
	if err != nil {
		return err
	}
	l.CreatedAt = now

	return tx.Commit(ctx)
}

// Advance moves the cursor from fromIndex to fromIndex+1. It fails with
// ErrConcurrentUpdate when the cursor has already moved.
func (r *SimulationRepository) Advance(ctx context.Context, id uuid.UUID, fromIndex int, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_simulations
		 SET current_question_index = $2 + 1, question_started_at = $3, last_active_at = $3, status = 'active'
		 WHERE id = $1 AND current_question_index = $2 AND status <> 'completed'`,
		id, fromIndex, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// Touch records a heartbeat presenting the current recovery token.
func (r *SimulationRepository) Touch(ctx context.Context, id uuid.UUID, token string, timeRemaining *int, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_simulations
		 SET last_active_at = $3, time_remaining = COALESCE($4, time_remaining), status = 'active'
		 WHERE id = $1 AND recovery_token = $2 AND status <> 'completed'`,
		id, token, now, timeRemaining,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// RotateRecoveryToken swaps oldToken for newToken. Only one caller presenting
// oldToken can succeed.
func (r *SimulationRepository) RotateRecoveryToken(ctx context.Context, id uuid.UUID, oldToken, newToken string, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_simulations
		 SET recovery_token = $3, recovery_attempts = recovery_attempts + 1, last_active_at = $4
		 WHERE id = $1 AND recovery_token = $2 AND status <> 'completed'`,
		id, oldToken, newToken, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

// Finalize completes the simulation with its score.
func (r *SimulationRepository) Finalize(ctx context.Context, id uuid.UUID, score int, endTime time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_simulations SET status = 'completed', score = $2, end_time = $3
		 WHERE id = $1 AND status <> 'completed'`,
		id, score, endTime,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

// ListStale retrieves open simulations whose last heartbeat is older than the cutoff.
func (r *SimulationRepository) ListStale(ctx context.Context, activeBefore time.Time, limit int) ([]model.Simulation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+simulationColumns+` FROM exam_simulations
		 WHERE status <> 'completed' AND last_active_at < $1
		 ORDER BY last_active_at
		 LIMIT $2`, activeBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sims []model.Simulation
	for rows.Next() {
		var s model.Simulation
		if err := scanSimulation(rows, &s); err != nil {
			return nil, err
		}
		sims = append(sims, s)
	}
	return sims, rows.Err()
}

// ListLogs retrieves the answer log of a simulation in answer order.
func (r *SimulationRepository) ListLogs(ctx context.Context, simulationID uuid.UUID) ([]model.SimulationLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, simulation_id, user_id, question_id, category, question_index, selected_answer,
		        is_correct, time_spent_seconds, created_at
		 FROM exam_simulation_logs
		 WHERE simulation_id = $1
		 ORDER BY id`, simulationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []model.SimulationLog
	for rows.Next() {
		var l model.SimulationLog
		if err := rows.Scan(&l.ID, &l.SimulationID, &l.UserID, &l.QuestionID, &l.Category, &l.QuestionIndex,
			&l.SelectedAnswer, &l.IsCorrect, &l.TimeSpentSeconds, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CategoryStats aggregates the user's simulation answers per category.
func (r *SimulationRepository) CategoryStats(ctx context.Context, userID int) ([]model.CategoryStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT category,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE is_correct),
		        COALESCE(AVG(time_spent_seconds), 0)::float8
		 FROM exam_simulation_logs
		 WHERE user_id = $1
		 GROUP BY category
		 ORDER BY category`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []model.CategoryStat
	for rows.Next() {
		var s model.CategoryStat
		if err := rows.Scan(&s.Category, &s.Attempted, &s.Correct, &s.AvgTimeSeconds); err != nil {
			return nil, err
		}
		if s.Attempted > 0 {
			s.Accuracy = float64(s.Correct) / float64(s.Attempted) * 100
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

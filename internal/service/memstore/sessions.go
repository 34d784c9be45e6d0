package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/repository"
)

// Exams is an in-memory exams table with the one-active-exam-per-user index.
type Exams struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Exam
}

func NewExams() *Exams {
	return &Exams{rows: make(map[uuid.UUID]model.Exam)}
}

func (s *Exams) Create(_ context.Context, e *model.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.UserID == e.UserID && existing.EndTime == nil {
			return repository.ErrActiveSessionExists
		}
	}
	s.rows[e.ID] = cloneExam(*e)
	return nil
}

func (s *Exams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := cloneExam(e)
	return &out, nil
}

func (s *Exams) GetActiveByUser(_ context.Context, userID int) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.rows {
		if e.UserID == userID && e.EndTime == nil {
			out := cloneExam(e)
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *Exams) ListFinishedByUser(_ context.Context, userID, limit, offset int) ([]model.Exam, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var finished []model.Exam
	for _, e := range s.rows {
		if e.UserID == userID && e.EndTime != nil {
			finished = append(finished, cloneExam(e))
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].EndTime.After(*finished[j].EndTime) })
	total := len(finished)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return finished[offset:end], total, nil
}

func (s *Exams) SetAnswer(_ context.Context, id uuid.UUID, index, answer int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok || e.EndTime != nil || index < 0 || index >= len(e.Answers) {
		return repository.ErrAlreadyFinalized
	}
	e.Answers[index] = answer
	s.rows[id] = e
	return nil
}

func (s *Exams) Finalize(_ context.Context, id uuid.UUID, answers []int, score int, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok || e.EndTime != nil {
		return repository.ErrAlreadyFinalized
	}
	e.Answers = append([]int(nil), answers...)
	e.Score = &score
	e.EndTime = &endTime
	s.rows[id] = e
	return nil
}

func (s *Exams) ListOverdue(_ context.Context, startedBefore time.Time, limit int) ([]model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Exam
	for _, e := range s.rows {
		if e.EndTime == nil && e.StartTime.Before(startedBefore) {
			out = append(out, cloneExam(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneExam(e model.Exam) model.Exam {
	e.QuestionIDs = append([]int(nil), e.QuestionIDs...)
	e.Answers = append([]int(nil), e.Answers...)
	if e.EndTime != nil {
		t := *e.EndTime
		e.EndTime = &t
	}
	if e.Score != nil {
		v := *e.Score
		e.Score = &v
	}
	return e
}

// Simulations is an in-memory exam_simulations table plus its log table.
type Simulations struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]model.Simulation
	logs    []model.SimulationLog
	nextLog int64
}

func NewSimulations() *Simulations {
	return &Simulations{rows: make(map[uuid.UUID]model.Simulation), nextLog: 1}
}

func (s *Simulations) Create(_ context.Context, sim *model.Simulation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.UserID == sim.UserID && !existing.IsCompleted() {
			return repository.ErrActiveSessionExists
		}
	}
	s.rows[sim.ID] = cloneSimulation(*sim)
	return nil
}

func (s *Simulations) GetByID(_ context.Context, id uuid.UUID) (*model.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := cloneSimulation(sim)
	return &out, nil
}

func (s *Simulations) GetOpenByUser(_ context.Context, userID int) (*model.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sim := range s.rows {
		if sim.UserID == userID && !sim.IsCompleted() {
			out := cloneSimulation(sim)
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *Simulations) RecordAnswer(_ context.Context, l *model.SimulationLog, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.rows[l.SimulationID]
	if !ok || sim.IsCompleted() || sim.CurrentQuestionIndex != l.QuestionIndex {
		return repository.ErrConcurrentUpdate
	}
	sim.Answers[l.QuestionIndex] = l.SelectedAnswer
	sim.Status = model.SimulationStatusActive
	sim.LastActiveAt = now
	s.rows[sim.ID] = sim

	l.ID = s.nextLog
	l.CreatedAt = now
	s.nextLog++
	s.logs = append(s.logs, *l)
	return nil
}

func (s *Simulations) Advance(_ context.Context, id uuid.UUID, fromIndex int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.rows[id]
	if !ok || sim.IsCompleted() || sim.CurrentQuestionIndex != fromIndex {
		return repository.ErrConcurrentUpdate
	}
	sim.CurrentQuestionIndex = fromIndex + 1
	sim.QuestionStartedAt = now
	sim.LastActiveAt = now
	sim.Status = model.SimulationStatusActive
	s.rows[id] = sim
	return nil
}

func (s *Simulations) Touch(_ context.Context, id uuid.UUID, token string, timeRemaining *int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.rows[id]
	if !ok || sim.IsCompleted() || sim.RecoveryToken != token {
		return repository.ErrConcurrentUpdate
	}
	if timeRemaining != nil {
		v := *timeRemaining
		sim.TimeRemaining = &v
	}
	sim.LastActiveAt = now
	sim.Status = model.SimulationStatusActive
	s.rows[id] = sim
	return nil
}

func (s *Simulations) RotateRecoveryToken(_ context.Context, id uuid.UUID, oldToken, newToken string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.rows[id]
	if !ok || sim.IsCompleted() || sim.RecoveryToken != oldToken {
		return repository.ErrConcurrentUpdate
	}
	sim.RecoveryToken = newToken
	sim.RecoveryAttempts++
	sim.LastActiveAt = now
	s.rows[id] = sim
	return nil
}

func (s *Simulations) Finalize(_ context.Context, id uuid.UUID, score int, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.rows[id]
	if !ok || sim.IsCompleted() {
		return repository.ErrAlreadyFinalized
	}
	sim.Status = model.SimulationStatusCompleted
	sim.Score = &score
	sim.EndTime = &endTime
	s.rows[id] = sim
	return nil
}

func (s *Simulations) ListStale(_ context.Context, activeBefore time.Time, limit int) ([]model.Simulation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Simulation
	for _, sim := range s.rows {
		if !sim.IsCompleted() && sim.LastActiveAt.Before(activeBefore) {
			out = append(out, cloneSimulation(sim))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.Before(out[j].LastActiveAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Simulations) CategoryStats(_ context.Context, userID int) ([]model.CategoryStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCategory := make(map[string]*model.CategoryStat)
	totalTime := make(map[string]int)
	for _, l := range s.logs {
		if l.UserID != userID {
			continue
		}
		st, ok := byCategory[l.Category]
		if !ok {
			st = &model.CategoryStat{Category: l.Category}
			byCategory[l.Category] = st
		}
		st.Attempted++
		if l.IsCorrect {
			st.Correct++
		}
		totalTime[l.Category] += l.TimeSpentSeconds
	}

	var out []model.CategoryStat
	for cat, st := range byCategory {
		st.Accuracy = float64(st.Correct) / float64(st.Attempted) * 100
		st.AvgTimeSeconds = float64(totalTime[cat]) / float64(st.Attempted)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// Logs returns the log rows written for a simulation.
func (s *Simulations) Logs(id uuid.UUID) []model.SimulationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SimulationLog
	for _, l := range s.logs {
		if l.SimulationID == id {
			out = append(out, l)
		}
	}
	return out
}

func (s *Simulations) ListLogs(_ context.Context, id uuid.UUID) ([]model.SimulationLog, error) {
	return s.Logs(id), nil
}

// SetLastActive backdates a simulation's last sign of life.
func (s *Simulations) SetLastActive(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sim, ok := s.rows[id]; ok {
		sim.LastActiveAt = at
		s.rows[id] = sim
	}
}

func cloneSimulation(sim model.Simulation) model.Simulation {
	sim.QuestionIDs = append([]int(nil), sim.QuestionIDs...)
	sim.Answers = append([]int(nil), sim.Answers...)
	if sim.EndTime != nil {
		t := *sim.EndTime
		sim.EndTime = &t
	}
	if sim.Score != nil {
		v := *sim.Score
		sim.Score = &v
	}
	if sim.TimeRemaining != nil {
		v := *sim.TimeRemaining
		sim.TimeRemaining = &v
	}
	return sim
}

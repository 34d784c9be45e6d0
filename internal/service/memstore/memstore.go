// Package memstore holds in-memory implementations of the service stores.
// They follow the repositories' contracts (pgx.ErrNoRows for missing rows,
// repository sentinels for guarded writes) and are used by the service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/repository"
)

// Users is an in-memory user table.
type Users struct {
	mu     sync.Mutex
	rows   map[int]model.User
	nextID int
}

func NewUsers() *Users {
	return &Users{rows: make(map[int]model.User), nextID: 1}
}

func (s *Users) GetByID(_ context.Context, id int) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.rows {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *Users) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	u.ID = s.nextID
	s.nextID++
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	s.rows[u.ID] = *u
	return nil
}

// Questions is an in-memory question bank.
type Questions struct {
	mu     sync.Mutex
	rows   map[int]model.Question
	nextID int
	// InUse marks question ids that exams or simulations refer to.
	InUse map[int]bool
}

func NewQuestions() *Questions {
	return &Questions{rows: make(map[int]model.Question), nextID: 1, InUse: make(map[int]bool)}
}

// Seed adds n questions to category, each with three options. The i-th
// question's correct answer is option i mod 3. It returns the new ids.
func (s *Questions) Seed(category string, n int) []int {
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		q := &model.Question{
			Category:      category,
			Prompt:        category + " question",
			Options:       []string{"a", "b", "c"},
			CorrectAnswer: i % 3,
		}
		_ = s.Create(context.Background(), q)
		ids = append(ids, q.ID)
	}
	return ids
}

func (s *Questions) GetByID(_ context.Context, id int) (*model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneQuestion(q), nil
}

func (s *Questions) GetByIDs(_ context.Context, ids []int) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := s.rows[id]; ok {
			out = append(out, *cloneQuestion(q))
		}
	}
	return out, nil
}

func (s *Questions) ListIDs(_ context.Context, category string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int
	for id, q := range s.rows {
		if category == "" || q.Category == category {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *Questions) List(_ context.Context, f model.QuestionFilter) ([]model.Question, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []model.Question
	for _, q := range s.rows {
		if f.Category != "" && q.Category != f.Category {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(q.Prompt), strings.ToLower(f.Search)) {
			continue
		}
		matched = append(matched, *cloneQuestion(q))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (s *Questions) Categories(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, q := range s.rows {
		if !seen[q.Category] {
			seen[q.Category] = true
			out = append(out, q.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Questions) Create(_ context.Context, q *model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.ID = s.nextID
	s.nextID++
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	s.rows[q.ID] = *cloneQuestion(*q)
	return nil
}

func (s *Questions) Update(_ context.Context, q *model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rows[q.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	q.CreatedAt = existing.CreatedAt
	q.UpdatedAt = time.Now()
	s.rows[q.ID] = *cloneQuestion(*q)
	return nil
}

func (s *Questions) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return pgx.ErrNoRows
	}
	if s.InUse[id] {
		return repository.ErrQuestionInUse
	}
	delete(s.rows, id)
	return nil
}

func cloneQuestion(q model.Question) *model.Question {
	q.Options = append([]string(nil), q.Options...)
	return &q
}

// Cache is an in-memory Cache. Expiry is not modelled.
type Cache struct {
	mu   sync.Mutex
	data map[string]string
}

func NewCache() *Cache {
	return &Cache{data: make(map[string]string)}
}

func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *Cache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *Cache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

// Journey records tracked events.
type Journey struct {
	mu     sync.Mutex
	events []model.JourneyEvent
}

func (j *Journey) Track(_ context.Context, ev model.JourneyEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

// Events returns the events tracked so far.
func (j *Journey) Events() []model.JourneyEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]model.JourneyEvent(nil), j.events...)
}

// Stages returns the stage of every tracked event, in order.
func (j *Journey) Stages() []model.JourneyStage {
	events := j.Events()
	stages := make([]model.JourneyStage, len(events))
	for i, ev := range events {
		stages[i] = ev.Stage
	}
	return stages
}

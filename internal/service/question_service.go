package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/repository"
	"github.com/roadready/theory-backend/internal/response"
	"github.com/rs/zerolog"
)

const categoriesCacheTTL = 10 * time.Minute

// QuestionService handles question bank business logic.
type QuestionService struct {
	questions QuestionStore
	cache     Cache
	log       zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questions QuestionStore, cache Cache, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questions: questions,
		cache:     cache,
		log:       log.With().Str("component", "question_service").Logger(),
	}
}

// List returns a page of questions, answer keys included. Admin use only.
func (s *QuestionService) List(ctx context.Context, category, search string, page, perPage int) ([]model.Question, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)
	questions, total, err := s.questions.List(ctx, model.QuestionFilter{
		Category: strings.TrimSpace(category),
		Search:   strings.TrimSpace(search),
		Limit:    perPage,
		Offset:   (page - 1) * perPage,
	})
	if err != nil {
		return nil, nil, err
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, buildPagination(page, perPage, total), nil
}

// ListForCandidate returns a page of questions without answer keys.
func (s *QuestionService) ListForCandidate(ctx context.Context, category, search string, page, perPage int) ([]model.QuestionForCandidate, *response.Pagination, error) {
	questions, p, err := s.List(ctx, category, search, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	return forCandidate(questions), p, nil
}

// Get retrieves one question.
func (s *QuestionService) Get(ctx context.Context, id int) (*model.Question, error) {
	q, err := s.questions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	return q, nil
}

// Categories returns the distinct categories, served from cache when possible.
func (s *QuestionService) Categories(ctx context.Context) ([]string, error) {
	key := config.CacheKey.QuestionCategoriesKey()
	if raw, found, err := s.cache.Get(ctx, key); err == nil && found {
		var cached []string
		if json.Unmarshal([]byte(raw), &cached) == nil {
			return cached, nil
		}
	} else if err != nil {
		s.log.Warn().Err(err).Msg("Category cache read failed")
	}

	categories, err := s.questions.Categories(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []string{}
	}

	if raw, err := json.Marshal(categories); err == nil {
		if err := s.cache.Set(ctx, key, string(raw), categoriesCacheTTL); err != nil {
			s.log.Warn().Err(err).Msg("Category cache write failed")
		}
	}
	return categories, nil
}

// Create adds a question to the bank.
func (s *QuestionService) Create(ctx context.Context, q *model.Question) error {
	if !q.IsValidAnswer(q.CorrectAnswer) {
		return ErrInvalidQuestion
	}
	if err := s.questions.Create(ctx, q); err != nil {
		return err
	}
	s.invalidateCategories(ctx)
	s.log.Info().Int("question_id", q.ID).Str("category", q.Category).Msg("Question created")
	return nil
}

// Update edits a question in place. Exams already in progress keep the paper
// they were started with.
func (s *QuestionService) Update(ctx context.Context, q *model.Question) error {
	if !q.IsValidAnswer(q.CorrectAnswer) {
		return ErrInvalidQuestion
	}
	if err := s.questions.Update(ctx, q); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrQuestionNotFound
		}
		return err
	}
	s.invalidateCategories(ctx)
	s.log.Info().Int("question_id", q.ID).Msg("Question updated")
	return nil
}

// Delete removes a question no exam or simulation refers to.
func (s *QuestionService) Delete(ctx context.Context, id int) error {
	if err := s.questions.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return ErrQuestionNotFound
		case errors.Is(err, repository.ErrQuestionInUse):
			return ErrQuestionInUse
		default:
			return fmt.Errorf("delete question: %w", err)
		}
	}
	s.invalidateCategories(ctx)
	s.log.Info().Int("question_id", id).Msg("Question deleted")
	return nil
}

func (s *QuestionService) invalidateCategories(ctx context.Context) {
	if err := s.cache.Del(ctx, config.CacheKey.QuestionCategoriesKey()); err != nil {
		s.log.Warn().Err(err).Msg("Category cache invalidation failed")
	}
}

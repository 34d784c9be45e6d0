package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/roadready/theory-backend/internal/gateway"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/shopspring/decimal"
)

// The service layer depends on these narrow views of the repositories so the
// business rules can be exercised against in-memory implementations.

// UserStore is implemented by repository.UserRepository.
type UserStore interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
}

// QuestionStore is implemented by repository.QuestionRepository.
type QuestionStore interface {
	GetByID(ctx context.Context, id int) (*model.Question, error)
	GetByIDs(ctx context.Context, ids []int) ([]model.Question, error)
	ListIDs(ctx context.Context, category string) ([]int, error)
	List(ctx context.Context, f model.QuestionFilter) ([]model.Question, int, error)
	Categories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, q *model.Question) error
	Update(ctx context.Context, q *model.Question) error
	Delete(ctx context.Context, id int) error
}

// ExamStore is implemented by repository.ExamRepository.
type ExamStore interface {
	Create(ctx context.Context, e *model.Exam) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetActiveByUser(ctx context.Context, userID int) (*model.Exam, error)
	ListFinishedByUser(ctx context.Context, userID, limit, offset int) ([]model.Exam, int, error)
	SetAnswer(ctx context.Context, id uuid.UUID, index, answer int) error
	Finalize(ctx context.Context, id uuid.UUID, answers []int, score int, endTime time.Time) error
	ListOverdue(ctx context.Context, startedBefore time.Time, limit int) ([]model.Exam, error)
}

// SimulationStore is implemented by repository.SimulationRepository.
type SimulationStore interface {
	Create(ctx context.Context, s *model.Simulation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Simulation, error)
	GetOpenByUser(ctx context.Context, userID int) (*model.Simulation, error)
	RecordAnswer(ctx context.Context, l *model.SimulationLog, now time.Time) error
	Advance(ctx context.Context, id uuid.UUID, fromIndex int, now time.Time) error
	Touch(ctx context.Context, id uuid.UUID, token string, timeRemaining *int, now time.Time) error
	RotateRecoveryToken(ctx context.Context, id uuid.UUID, oldToken, newToken string, now time.Time) error
	Finalize(ctx context.Context, id uuid.UUID, score int, endTime time.Time) error
	ListStale(ctx context.Context, activeBefore time.Time, limit int) ([]model.Simulation, error)
	ListLogs(ctx context.Context, simulationID uuid.UUID) ([]model.SimulationLog, error)
	CategoryStats(ctx context.Context, userID int) ([]model.CategoryStat, error)
}

// PaymentStore is implemented by repository.PaymentRepository.
type PaymentStore interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	GetByTxRef(ctx context.Context, txRef string) (*model.Payment, error)
	ListByUser(ctx context.Context, userID, limit, offset int) ([]model.Payment, int, error)
	FindActive(ctx context.Context, userID int, now time.Time) (*model.Payment, error)
	Transition(ctx context.Context, id uuid.UUID, from, to model.PaymentStatus, meta model.PaymentMetadata) error
	ApplyJourneyEvent(ctx context.Context, ev model.JourneyEvent) error
}

// Cache is a string key/value store with expiry. Get reports found=false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// JourneyTracker receives funnel events. Delivery is asynchronous.
type JourneyTracker interface {
	Track(ctx context.Context, ev model.JourneyEvent) error
}

// PaymentGateway is implemented by gateway.Client.
type PaymentGateway interface {
	Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error)
	Verify(ctx context.Context, txRef string) (*gateway.Verification, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) error
	ValidWebhookSignature(header string) bool
}

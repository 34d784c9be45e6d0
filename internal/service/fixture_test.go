package service

import (
	"testing"
	"time"

	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/service/memstore"
	"github.com/rs/zerolog"
)

type fixture struct {
	now time.Time

	users     *memstore.Users
	questions *memstore.Questions
	exams     *memstore.Exams
	sims      *memstore.Simulations
	payments  *memstore.Payments
	cache     *memstore.Cache
	journey   *memstore.Journey
	gateway   *memstore.Gateway

	entitlement *EntitlementService
	examSvc     *ExamService
	simSvc      *SimulationService
	paymentSvc  *PaymentService
	userID      int
}

var (
	testExamConfig = config.ExamConfig{
		QuestionCount: 20,
		Duration:      20 * time.Minute,
		Grace:         time.Minute,
		PassThreshold: PassThreshold,
		PaperCacheTTL: 30 * time.Minute,
	}
	testSimulationConfig = config.SimulationConfig{
		DefaultQuestionCount: 20,
		StaleAfter:           5 * time.Minute,
		TimerGrace:           5 * time.Second,
		SweepInterval:        time.Minute,
	}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		now:       time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		users:     memstore.NewUsers(),
		questions: memstore.NewQuestions(),
		exams:     memstore.NewExams(),
		sims:      memstore.NewSimulations(),
		payments:  memstore.NewPayments(),
		cache:     memstore.NewCache(),
		journey:   &memstore.Journey{},
		gateway:   memstore.NewGateway(),
	}
	log := zerolog.Nop()

	f.entitlement = NewEntitlementService(f.payments)
	f.entitlement.now = f.clock

	f.examSvc = NewExamService(testExamConfig, f.exams, f.questions, f.entitlement, f.cache, f.journey, log)
	f.examSvc.now = f.clock

	f.simSvc = NewSimulationService(testSimulationConfig, f.sims, f.questions, f.entitlement, f.journey, log)
	f.simSvc.now = f.clock

	f.paymentSvc = NewPaymentService(f.payments, f.users, f.gateway, "NGN", "https://theory.test", log)
	f.paymentSvc.now = f.clock

	u := &model.User{Email: "ada@example.com", Name: "Ada"}
	if err := f.users.Create(t.Context(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	f.userID = u.ID
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) tick(d time.Duration) { f.now = f.now.Add(d) }

// entitle gives the fixture user a weekly pass valid from now.
func (f *fixture) entitle() *model.Payment {
	return f.payments.Grant(f.userID, model.PackageWeekly, f.now.AddDate(0, 0, 7))
}

// correctSheet returns the answer key of ids.
func (f *fixture) correctSheet(t *testing.T, ids []int) []int {
	t.Helper()
	qs, err := f.questions.GetByIDs(t.Context(), ids)
	if err != nil || len(qs) != len(ids) {
		t.Fatalf("load questions: %v", err)
	}
	return CorrectAnswers(qs)
}

func wrong(q model.Question) int {
	return (q.CorrectAnswer + 1) % len(q.Options)
}

package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/handler"
	"github.com/roadready/theory-backend/internal/model"
	"github.com/roadready/theory-backend/internal/service"
	"github.com/roadready/theory-backend/internal/service/memstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestRouter(t *testing.T) (*gin.Engine, *service.AuthService) {
	t.Helper()
	log := zerolog.Nop()
	cfg := &config.Config{
		GinMode:    gin.TestMode,
		JWTSecret:  "router-test",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
		UploadDir:  t.TempDir(),
	}

	users := memstore.NewUsers()
	questions := memstore.NewQuestions()
	payments := memstore.NewPayments()
	cache := memstore.NewCache()
	journey := &memstore.Journey{}

	authSvc := service.NewAuthService(cfg, users, cache, log)
	entitlement := service.NewEntitlementService(payments)
	examSvc := service.NewExamService(config.ExamConfig{QuestionCount: 20, Duration: 20 * time.Minute}, memstore.NewExams(), questions, entitlement, cache, journey, log)
	simSvc := service.NewSimulationService(config.SimulationConfig{DefaultQuestionCount: 20, StaleAfter: 5 * time.Minute}, memstore.NewSimulations(), questions, entitlement, journey, log)
	paymentSvc := service.NewPaymentService(payments, users, memstore.NewGateway(), "NGN", "https://theory.test", log)

	handlers := &Handlers{
		Auth:       handler.NewAuthHandler(authSvc, entitlement, handler.CookieConfig{MaxAge: time.Hour}, log),
		Exam:       handler.NewExamHandler(examSvc, service.NewReportService(examSvc, users, "https://theory.test", log), log),
		Simulation: handler.NewSimulationHandler(simSvc, log),
		Payment:    handler.NewPaymentHandler(paymentSvc, entitlement, "https://theory.test", log),
		Question:   handler.NewQuestionHandler(service.NewQuestionService(questions, cache, log), log),
		Media:      handler.NewMediaHandler(service.NewMediaService(cfg.UploadDir, 1<<20, log), log),
		WS:         handler.NewWSHandler(examSvc, log, nil),
		System:     handler.NewSystemHandler(nil, nil, log),
	}
	return SetupRouter(t.Context(), authSvc, handlers, cfg), authSvc
}

func TestRouteGuards(t *testing.T) {
	r, authSvc := newTestRouter(t)

	student, err := authSvc.GenerateToken(t.Context(), &model.User{ID: 1})
	require.NoError(t, err)
	admin, err := authSvc.GenerateToken(t.Context(), &model.User{ID: 2, IsAdmin: true})
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"packages need a session", http.MethodGet, "/api/v1/payments/packages", "", http.StatusUnauthorized},
		{"packages for learners", http.MethodGet, "/api/v1/payments/packages", student, http.StatusOK},
		{"current exam without one", http.MethodGet, "/api/v1/exams/current", student, http.StatusNotFound},
		{"admin route rejects learners", http.MethodGet, "/api/v1/admin/system/status", student, http.StatusForbidden},
		{"admin route for admins", http.MethodGet, "/api/v1/admin/system/status", admin, http.StatusOK},
		{"ws needs a session", http.MethodGet, "/ws/v1/exams/00000000-0000-0000-0000-000000000000/stream", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthenticatedResponsesAreNotCached(t *testing.T) {
	r, authSvc := newTestRouter(t)
	token, err := authSvc.GenerateToken(t.Context(), &model.User{ID: 1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/packages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

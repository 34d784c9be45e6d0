package router

import (
	"context"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/handler"
	"github.com/roadready/theory-backend/internal/middleware"
	"github.com/roadready/theory-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Exam       *handler.ExamHandler
	Simulation *handler.SimulationHandler
	Payment    *handler.PaymentHandler
	Question   *handler.QuestionHandler
	Media      *handler.MediaHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background helpers such as the rate limiter janitor.
func SetupRouter(
	ctx context.Context,
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all so dev works without extra config. Cookies need
	// an explicit origin list.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skipper: func(c *gin.Context) bool {
			return strings.HasPrefix(c.Request.URL.Path, "/uploads/")
		},
	}))

	// Uploaded road-sign images are immutable (random names), cache for a year.
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	router.GET("/health", handlers.System.Health)
	router.GET("/ready", handlers.System.Ready)

	requireAuth := []gin.HandlerFunc{
		middleware.RequireAuth(auth),
		middleware.CheckSession(auth),
		middleware.NoStore(),
	}

	// Rate limiter for credential routes (10 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(ctx, 10, time.Minute)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	authAPI := router.Group("/api/v1/auth")
	{
		authAPI.POST("/register", authLimiter.Middleware(), handlers.Auth.Register)
		authAPI.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)

		session := authAPI.Group("", requireAuth...)
		session.POST("/logout", handlers.Auth.Logout)
		session.GET("/me", handlers.Auth.Me)
	}

	// ─── 2. Gateway Group (Public, verified server-side) ───────────────
	gatewayAPI := router.Group("/api/v1/payments")
	{
		gatewayAPI.GET("/callback", handlers.Payment.Callback)
		gatewayAPI.POST("/webhook", handlers.Payment.Webhook)
	}

	// ─── 3. Learner Group (JWT + Session) ──────────────────────────────
	api := router.Group("/api/v1")
	api.Use(requireAuth...)
	{
		api.GET("/questions", handlers.Question.ListQuestions)
		api.GET("/questions/categories", handlers.Question.ListCategories)

		api.POST("/exams", handlers.Exam.StartExam)
		api.GET("/exams", handlers.Exam.ListExams)
		api.GET("/exams/current", handlers.Exam.CurrentExam)
		api.GET("/exams/:exam_id", handlers.Exam.GetExam)
		api.PUT("/exams/:exam_id/answers/:index", handlers.Exam.SaveAnswer)
		api.POST("/exams/:exam_id/submit", handlers.Exam.SubmitExam)
		api.GET("/exams/:exam_id/report", handlers.Exam.DownloadReport)

		api.POST("/simulations", handlers.Simulation.CreateSimulation)
		api.GET("/simulations/active", handlers.Simulation.GetActiveSimulation)
		api.GET("/simulations/active-check", handlers.Simulation.CheckActiveSimulation)
		api.POST("/simulations/recover", handlers.Simulation.RecoverSimulation)
		api.GET("/simulations/stats/categories", handlers.Simulation.CategoryStats)
		api.POST("/simulations/:simulation_id/answer", handlers.Simulation.AnswerQuestion)
		api.POST("/simulations/:simulation_id/advance", handlers.Simulation.AdvanceQuestion)
		api.POST("/simulations/:simulation_id/complete", handlers.Simulation.CompleteSimulation)
		api.POST("/simulations/:simulation_id/heartbeat", handlers.Simulation.Heartbeat)
		api.GET("/simulations/:simulation_id/logs", handlers.Simulation.SimulationLogs)

		api.GET("/payments/packages", handlers.Payment.ListPackages)
		api.POST("/payments/checkout", handlers.Payment.Checkout)
		api.GET("/payments", handlers.Payment.ListPayments)
		api.GET("/payments/entitlement", handlers.Payment.GetEntitlement)
		api.POST("/payments/:payment_id/retry", handlers.Payment.RetryPayment)
	}

	// ─── 4. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAuth(auth), middleware.CheckSession(auth))
	{
		ws.GET("/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	// ─── 5. Admin Group (JWT + Session + Admin flag) ───────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(requireAuth...)
	adminAPI.Use(middleware.RequireAdmin())
	{
		adminAPI.GET("/questions/:question_id", handlers.Question.GetQuestion)
		adminAPI.POST("/questions", handlers.Question.CreateQuestion)
		adminAPI.PUT("/questions/:question_id", handlers.Question.UpdateQuestion)
		adminAPI.DELETE("/questions/:question_id", handlers.Question.DeleteQuestion)

		adminAPI.POST("/media/upload", handlers.Media.UploadMedia)

		adminAPI.POST("/payments/:payment_id/refund", handlers.Payment.RefundPayment)

		adminAPI.GET("/system/status", handlers.System.Status)
	}

	return router
}

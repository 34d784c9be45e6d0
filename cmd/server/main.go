package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/roadready/theory-backend/internal/config"
	"github.com/roadready/theory-backend/internal/database"
	"github.com/roadready/theory-backend/internal/gateway"
	"github.com/roadready/theory-backend/internal/handler"
	"github.com/roadready/theory-backend/internal/logger"
	"github.com/roadready/theory-backend/internal/repository"
	"github.com/roadready/theory-backend/internal/router"
	"github.com/roadready/theory-backend/internal/service"
	"github.com/roadready/theory-backend/internal/validator"
	"github.com/roadready/theory-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting theory exam backend")

	if cfg.Payment.SecretKey == "" || cfg.Payment.WebhookSecret == "" {
		log.Warn().Msg("PAYMENT_SECRET_KEY or PAYMENT_WEBHOOK_SECRET is empty; checkout and webhooks will fail")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	simulationRepo := repository.NewSimulationRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)

	cache := service.NewRedisCache(rdb)
	journeyQueue := service.NewRedisJourneyQueue(rdb)
	paymentGateway := gateway.NewClient(cfg.Payment, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo, cache, log)
	entitlementService := service.NewEntitlementService(paymentRepo)
	questionService := service.NewQuestionService(questionRepo, cache, log)
	examService := service.NewExamService(cfg.Exam, examRepo, questionRepo, entitlementService, cache, journeyQueue, log)
	simulationService := service.NewSimulationService(cfg.Simulation, simulationRepo, questionRepo, entitlementService, journeyQueue, log)
	paymentService := service.NewPaymentService(paymentRepo, userRepo, paymentGateway, cfg.Payment.Currency, cfg.PublicBaseURL, log)
	reportService := service.NewReportService(examService, userRepo, cfg.PublicBaseURL, log)
	mediaService := service.NewMediaService(cfg.UploadDir, cfg.MaxUploadBytes, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth: handler.NewAuthHandler(authService, entitlementService, handler.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
			MaxAge: cfg.JWTExpiry,
		}, log),
		Exam:       handler.NewExamHandler(examService, reportService, log),
		Simulation: handler.NewSimulationHandler(simulationService, log),
		Payment:    handler.NewPaymentHandler(paymentService, entitlementService, cfg.PublicBaseURL, log),
		Question:   handler.NewQuestionHandler(questionService, log),
		Media:      handler.NewMediaHandler(mediaService, log),
		WS:         handler.NewWSHandler(examService, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(
			map[string]handler.Check{
				"postgres": pool.Ping,
				"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			},
			map[string]handler.QueueLength{
				config.WorkerKey.JourneyEventsQueue: func(ctx context.Context) (int64, error) {
					return rdb.LLen(ctx, config.WorkerKey.JourneyEventsQueue).Result()
				},
			},
			log,
		),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	journeyWorker := worker.NewJourneyWorker(rdb, paymentService, log)
	expiryWorker := worker.NewExpiryWorker(cfg.Simulation.SweepInterval, map[string]worker.Sweeper{
		"exams":       examService.SweepOverdue,
		"simulations": simulationService.SweepStale,
	}, log)

	workers.Go(func() { journeyWorker.Start(workerCtx) })
	workers.Go(func() { expiryWorker.Start(workerCtx) })

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the journey queue to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

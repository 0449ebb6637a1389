package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mkowalski/dunlin/internal/api"
	"github.com/mkowalski/dunlin/internal/circuitbreaker"
	"github.com/mkowalski/dunlin/internal/clock"
	"github.com/mkowalski/dunlin/internal/config"
	"github.com/mkowalski/dunlin/internal/db"
	"github.com/mkowalski/dunlin/internal/dispatch"
	"github.com/mkowalski/dunlin/internal/metrics"
	"github.com/mkowalski/dunlin/internal/observ"
	"github.com/mkowalski/dunlin/internal/redis"
	"github.com/mkowalski/dunlin/internal/report"
	"github.com/mkowalski/dunlin/internal/scan"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting dunlin scheduler",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("eval_timezone", cfg.EvalTimezone),
	)

	// Initialize database connection
	ctx := context.Background()
	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis backs the run lock and the manual-send rate limiter. Both
	// degrade gracefully when Redis is down.
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, run lock and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var runLock scan.RunLock
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		runLock = redis.NewRunLock(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  30,              // 30 manual sends
			Window: 1 * time.Minute, // per minute per organization
		})
		defer redisClient.Close()
	}

	// Transports
	var emailTransport dispatch.EmailTransport
	var smsTransport dispatch.SMSTransport
	if cfg.Env == "development" {
		emailTransport = dispatch.NewLogEmailTransport(logger)
		smsTransport = dispatch.NewLogSMSTransport(logger)
	} else {
		sesTransport, err := dispatch.NewSESTransport(ctx, dispatch.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SES email transport: %w", err)
		}
		snsTransport, err := dispatch.NewSNSTransport(ctx, dispatch.SNSConfig{
			Region: cfg.SNSRegion,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SNS sms transport: %w", err)
		}

		// Breakers so a dead provider fails fast instead of eating the
		// run's deadline on timeouts.
		emailTransport = dispatch.NewProtectedEmailTransport(sesTransport, circuitbreaker.Config{
			Name:            "ses",
			MaxFailures:     5,
			RecoveryTimeout: 30 * time.Second,
		}, logger)
		smsTransport = dispatch.NewProtectedSMSTransport(snsTransport, circuitbreaker.Config{
			Name:            "sns",
			MaxFailures:     5,
			RecoveryTimeout: 30 * time.Second,
		}, logger)
	}

	dispatcher := dispatch.New(emailTransport, smsTransport, repo, dispatch.Config{
		SendTimeout: 15 * time.Second,
	}, logger)

	// Scanners and runner
	loc := cfg.Location()
	clk := clock.System{}
	reminders := scan.NewReminderScanner(repo, dispatcher, clk, loc, logger)
	statements := scan.NewStatementScanner(repo, dispatcher, clk, loc, logger)

	var publisher scan.ReportPublisher
	if cfg.SQSQueueURL != "" {
		p, err := report.NewPublisher(ctx, report.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, logger)
		if err != nil {
			logger.Warn("run report publisher unavailable", zap.Error(err))
		} else {
			publisher = p
		}
	}

	runner := scan.NewRunner(reminders, statements, runLock, publisher, scan.RunnerConfig{
		Timeout: cfg.RunTimeout,
	}, logger)

	// Optional in-process cron; the HTTP endpoint remains the canonical
	// trigger for deployments with an external cron.
	if cfg.CronSchedule != "" {
		c := cron.New(cron.WithLocation(loc))
		if _, err := c.AddFunc(cfg.CronSchedule, func() {
			logger.Info("in-process cron fired")
			if _, err := runner.Run(context.Background()); err != nil {
				logger.Error("scheduled run failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("invalid CRON_SCHEDULE: %w", err)
		}
		c.Start()
		defer c.Stop()
		logger.Info("in-process cron started", zap.String("schedule", cfg.CronSchedule))
	}

	// Setup router
	handler := api.NewHandler(logger, runner, &scan.Manual{
		Reminders:  reminders,
		Statements: statements,
	}, repo)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	auth := api.BearerAuth(cfg.CronSecret, logger)

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Get("/cron/check-reminders", handler.CheckReminders)
		r.Post("/cron/check-reminders", handler.CheckReminders)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth)
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.OrganizationKeyFunc))

		r.Post("/invoices/{id}/remind", handler.RemindInvoice)
		r.Post("/clients/{id}/statement", handler.SendStatement)
		r.Get("/organizations/{id}/notifications", handler.ListNotifications)
		r.Get("/organizations/{id}/sms-credits", handler.GetSMSCredits)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // the cron trigger waits for the run
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

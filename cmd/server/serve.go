package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/farm-connect/internal/advisor"
	"github.com/ashureev/farm-connect/internal/api"
	"github.com/ashureev/farm-connect/internal/assistant"
	"github.com/ashureev/farm-connect/internal/config"
	"github.com/ashureev/farm-connect/internal/dashboard"
	"github.com/ashureev/farm-connect/internal/health"
	"github.com/ashureev/farm-connect/internal/identity"
	"github.com/ashureev/farm-connect/internal/llm"
	"github.com/ashureev/farm-connect/internal/mediator"
	"github.com/ashureev/farm-connect/internal/middleware"
	"github.com/ashureev/farm-connect/internal/refdata"
	"github.com/ashureev/farm-connect/internal/store"
	"github.com/ashureev/farm-connect/web"
)

const (
	shutdownTimeout = 10 * time.Second
	limiterIdle     = 10 * time.Minute
)

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model", cfg.Gemini.Model)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(parent); err != nil {
		slog.Error("Database health check failed", "error", err)
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	catalog, err := refdata.Default()
	if err != nil {
		slog.Error("Failed to load reference data", "error", err)
		return err
	}

	// A nil Generator interface marks every AI feature unavailable.
	var gen llm.Generator
	if cfg.AIEnabled() {
		g, err := llm.NewGemini(parent, llm.GeminiConfig{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model}, logger)
		if err != nil {
			slog.Warn("Failed to initialize Gemini, AI features will be disabled", "error", err)
		} else {
			gen = g
		}
	} else {
		slog.Info("AI features disabled (GEMINI_API_KEY not set)")
	}
	adv := advisor.New(gen, catalog)

	convLog, err := assistant.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		return err
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation logger", "error", closeErr)
		}
	}()

	broker := assistant.NewBroker(logger)
	conns := assistant.NewConnManager()

	registry := dashboard.NewRegistry(adv,
		dashboard.WithLogger(logger),
		dashboard.WithMediatorOptions(mediator.WithTimeout(cfg.Gemini.Timeout)),
		dashboard.WithConversationTimeout(cfg.Gemini.Timeout),
		dashboard.WithHooks(dashboard.Hooks{
			OnOutcome: api.UsageRecorder(repo, logger),
			OnMessage: assistant.MessageHook(broker, convLog),
			OnEvict:   assistant.EvictHook(broker, conns),
		}),
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	rateLimit := middleware.RateLimit(limiter, identity.UserKey)

	apiHandler := api.NewHandler(api.Options{
		Repo:           repo,
		Registry:       registry,
		Advisor:        adv,
		Model:          cfg.Gemini.Model,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimit:      rateLimit,
		Logger:         logger,
	})
	assistantHandler := assistant.NewHandler(assistant.Options{
		Registry:       registry,
		Repo:           repo,
		Broker:         broker,
		Conns:          conns,
		RateLimit:      rateLimit,
		Allow:          limiter.Allow,
		AllowedOrigins: cfg.AllowedOrigins(),
		IsDev:          cfg.IsDevelopment(),
		Logger:         logger,
	})

	spa, err := web.SPAHandler()
	if err != nil {
		slog.Error("Failed to load embedded dashboard", "error", err)
		return err
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins(), identity.SessionHeaderName))

	// Probes must not mint anonymous users.
	r.Get("/health", apiHandler.Health)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment(), logger))
		apiHandler.RegisterRoutes(r)
		assistantHandler.RegisterRoutes(r)
		r.Handle("/*", spa)
	})

	// SSE streams and websockets stay open, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	sweeperDone := dashboard.StartSweeper(gctx, registry, cfg.DashboardTTL, 0)
	retentionDone := store.StartRetentionWorker(gctx, repo, cfg.UsageRetention)
	limiterDone := limiter.StartEviction(gctx, limiterIdle)
	brokerDone := broker.Start(gctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.GRPCHealthAddr != "" {
		hs := health.NewServer(adv.Available(), logger)
		g.Go(func() error {
			return hs.ListenAndServe(gctx, cfg.GRPCHealthAddr)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	for _, done := range []<-chan struct{}{sweeperDone, retentionDone, limiterDone, brokerDone} {
		<-done
	}
	if err != nil {
		slog.Error("Server stopped with error", "error", err)
		return err
	}

	slog.Info("Server stopped successfully")
	return nil
}

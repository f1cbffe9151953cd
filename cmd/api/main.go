package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dealscope/valuation-engine/internal/api/rest"
	"github.com/dealscope/valuation-engine/internal/api/rest/handlers"
	"github.com/dealscope/valuation-engine/internal/notify"
	"github.com/dealscope/valuation-engine/internal/repository/postgres"
	"github.com/dealscope/valuation-engine/internal/scheduler"
	"github.com/dealscope/valuation-engine/internal/services"
	"github.com/dealscope/valuation-engine/internal/workers"
	"github.com/dealscope/valuation-engine/pkg/auth"
	"github.com/dealscope/valuation-engine/pkg/config"
	"github.com/dealscope/valuation-engine/pkg/database"
	"github.com/dealscope/valuation-engine/pkg/logger"
	"github.com/dealscope/valuation-engine/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("VALUATION_CONFIG"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting valuation engine API",
		logger.String("version", cfg.App.Version),
		logger.String("environment", cfg.App.Environment),
	)

	db, err := database.NewPostgresDB(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db.DB, cfg.Database.MigrationsDir, log); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redis, err := database.NewRedisClient(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	defer redis.Close()

	m := metrics.New()

	// Repositories
	rulesetRepo := postgres.NewRulesetRepository(db.DB)
	listingRepo := postgres.NewListingRepository(db.DB)
	overrideRepo := postgres.NewOverrideRepository(db.DB)
	breakdownRepo := postgres.NewBreakdownRepository(db.DB)
	listingIndex := postgres.NewListingIndex(db.DB)

	// Scheduler reads ruleset state straight from the repository;
	// workers go through the service for the cached snapshot.
	sched := scheduler.New(rulesetRepo, listingIndex, overrideRepo, log, m, cfg.Engine.QueueCapacity)
	rulesetService := services.NewRulesetService(rulesetRepo, sched, redis, cfg.Engine.SnapshotTTL, log)
	valuationService := services.NewValuationService(
		listingRepo, overrideRepo, breakdownRepo, rulesetService, sched, log, m,
	)

	publisher := notify.NewRedisPublisher(redis, cfg.Engine.CompletionChannel, log, m)

	// Worker pool draining the recalculation queue
	pool := workers.NewRecalcWorkerPool(
		sched,
		listingRepo,
		rulesetService,
		overrideRepo,
		breakdownRepo,
		publisher,
		log,
		m,
		cfg.Engine.Workers,
		cfg.Engine.ListingBudget,
	)
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	pool.Start(workerCtx)

	if err := sched.StartSweep(cfg.Engine.SweepSchedule); err != nil {
		return fmt.Errorf("failed to start sweep: %w", err)
	}

	// JWT manager
	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "default-secret-change-this-in-production"
		log.Warn("auth.jwt_secret not set, using default (INSECURE - only for development)")
	}
	jwtManager := auth.NewJWTManager(jwtSecret, cfg.Auth.TokenTTL)

	// HTTP surface
	h := handlers.NewHandlers(
		log,
		rulesetService,
		valuationService,
		&handlers.HealthCheckers{DB: db, Redis: redis},
		cfg.App.Version,
	)
	router := rest.NewRouter(cfg, log, h, jwtManager, m)
	router.SetupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("API server listening", logger.String("address", addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", logger.String("signal", sig.String()))

		// Stop producing and draining work before closing the server
		sched.StopSweep()
		pool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}

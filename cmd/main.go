/**
 * @description
 * This is the main entry point for the settlement-service.
 * It initializes and wires together all the components of the application:
 * configuration, database connection pool, repositories, the plan catalog,
 * the services, the cron scheduler for the time-driven sweeps, and the HTTP
 * router. Finally, it starts the HTTP server and runs until signalled.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/pipomarket/settlement-service/internal/api"
	"github.com/pipomarket/settlement-service/internal/app"
	"github.com/pipomarket/settlement-service/internal/config"
	"github.com/pipomarket/settlement-service/internal/store"
	"github.com/pipomarket/settlement-service/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up channel to listen for OS signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the PostgreSQL database with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Use simple protocol so the service works behind PgBouncer transaction
	// pooling without prepared-statement cache errors.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Set up the event producer; fall back to a no-op publisher so the
	// service still boots (without notifications) when the broker is down.
	var publisher rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("failed to connect to RabbitMQ, notifications disabled", "error", err)
		publisher = &rabbitmq.EventProducerFallback{}
	} else {
		publisher = producer
	}
	defer publisher.Close()

	// Initialize application layers
	catalog := app.DefaultCatalog()
	notifier := app.NewEventNotifier(publisher)

	subRepo := store.NewPostgresSubscriptionRepository(dbpool)
	payRepo := store.NewPostgresPaymentRepository(dbpool)
	rewardRepo := store.NewPostgresRewardRepository(dbpool)

	subService := app.NewSubscriptionService(subRepo, catalog, notifier, logger, cfg)
	quotaService := app.NewQuotaService(subService, subRepo, catalog)
	paymentService := app.NewPaymentService(payRepo, subService, catalog, notifier, publisher, logger, cfg)
	rewardService := app.NewRewardService(rewardRepo, logger, cfg)

	// Start the sweep scheduler
	jobs := app.NewJobs(subService, paymentService, logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()

	handler := api.NewHandler(subService, quotaService, paymentService, rewardService)
	router := api.NewRouter(handler, cfg.JWKSURL)

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	// Let in-flight cron jobs finish before closing shared resources.
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}

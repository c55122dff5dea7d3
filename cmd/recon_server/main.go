package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/practiceledger-recon/internal/api"
	"github.com/practiceledger-recon/internal/api/service"
	"github.com/practiceledger-recon/internal/config"
	"github.com/practiceledger-recon/internal/data/mongo"
	"github.com/practiceledger-recon/internal/data/postgres"
	"github.com/practiceledger-recon/internal/executor"
	"github.com/practiceledger-recon/internal/ledgerapi"
	"github.com/practiceledger-recon/internal/logger"
	"github.com/practiceledger-recon/internal/platform/messaging/producers"
	"github.com/practiceledger-recon/internal/platform/persistence"
	"github.com/practiceledger-recon/internal/reconciler"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("recon_server")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer for audit events
	auditProducer, err := producers.NewAuditEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize audit Kafka producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	paymentRepo := postgres.NewPaymentRepository(log, postgresDB)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())

	// Initialize the remote ledger client with its token provider
	tokens := ledgerapi.NewTokenProvider(&cfg.Ledger)
	ledgerClient := ledgerapi.NewClient(log, &cfg.Ledger, tokens)

	// Initialize engines
	bulkExecutor := executor.New(log, ledgerClient, auditRepo, auditProducer, cfg.Executor)
	reconEngine, err := reconciler.New(log, ledgerClient, paymentRepo, auditRepo, auditProducer, cfg.Ledger, cfg.Reconciler)
	if err != nil {
		log.Error("Failed to initialize reconciler", "error", err)
		os.Exit(1)
	}

	// Initialize services
	cleanupService := service.NewCleanupService(log, ledgerClient, bulkExecutor)
	reconciliationService := service.NewReconciliationService(log, reconEngine)
	auditService := service.NewAuditService(log, auditRepo)

	// Initialize REST server
	server := api.NewServer(log, cfg, cleanupService, reconciliationService, auditService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first so in-flight requests finish against live stores
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Release the reconciler's fetch pool
	reconEngine.Close()

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = auditProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}

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

	"github.com/nexocrm/waroute/internal/platform/config"
	"github.com/nexocrm/waroute/internal/platform/database"
	"github.com/nexocrm/waroute/internal/platform/logger"
	"github.com/nexocrm/waroute/internal/platform/messagebroker"
	"github.com/nexocrm/waroute/internal/routing/app"
	httptransport "github.com/nexocrm/waroute/internal/routing/adapters/http"
	"github.com/nexocrm/waroute/internal/routing/normalizer"
	"github.com/nexocrm/waroute/internal/routing/provider"
	"github.com/nexocrm/waroute/internal/routing/repository/postgres"
)

const serviceName = "routing_service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Routing service starting...", "port", cfg.ServerPort)

	dbPool, err := database.NewDBPool(context.Background(), cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL database")

	var publisher app.EventPublisher = app.NoopEventPublisher{}
	if cfg.NATSUrl != "" {
		natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = app.NewNatsEventPublisher(natsClient, appLogger)
		appLogger.Info("Connected to NATS", "url", cfg.NATSUrl)
	} else {
		appLogger.Warn("NATS URL not configured; domain events will not be published")
	}

	txManager := postgres.NewPgTxManager(dbPool)
	instanceRepo := postgres.NewPgInstanceRepository(dbPool, appLogger)
	conversationRepo := postgres.NewPgConversationRepository(dbPool, appLogger)
	messageRepo := postgres.NewPgMessageRepository(dbPool, appLogger)
	bindingRepo := postgres.NewPgAgentBindingRepository(dbPool, appLogger)
	transferRepo := postgres.NewPgTransferRepository(dbPool, appLogger)
	webhookLogRepo := postgres.NewPgWebhookLogRepository(dbPool, appLogger)
	templateRepo := postgres.NewPgTemplateRepository(dbPool, appLogger)

	authenticator := provider.NewAuthenticator(appLogger)
	adapter := provider.NewAdapter(templateRepo, authenticator, appLogger,
		time.Duration(cfg.ProviderTimeoutSeconds)*time.Second)
	norm := normalizer.New(cfg.DefaultCountryCode)

	ledgerService := app.NewLedgerService(txManager, messageRepo, conversationRepo, publisher, appLogger)
	registryService := app.NewRegistryService(txManager, conversationRepo, bindingRepo, transferRepo, ledgerService, publisher, appLogger)
	assignmentService := app.NewAssignmentService(conversationRepo, bindingRepo, registryService, appLogger)
	webhookService := app.NewWebhookService(instanceRepo, webhookLogRepo, norm, ledgerService, registryService, assignmentService, publisher, appLogger, cfg.AutoAssignBatchSize)
	sendService := app.NewSendService(txManager, conversationRepo, instanceRepo, bindingRepo, messageRepo, ledgerService, adapter, appLogger)
	instanceService := app.NewInstanceService(instanceRepo, templateRepo, adapter, appLogger)
	agentService := app.NewAgentService(bindingRepo, appLogger)

	router := httptransport.NewRouter(
		httptransport.NewWebhookHandler(webhookService, appLogger, cfg.WebhookMaxBodyBytes),
		httptransport.NewConversationHandler(registryService, ledgerService, sendService, appLogger),
		httptransport.NewInstanceHandler(instanceService, registryService, assignmentService, webhookLogRepo, appLogger, cfg.AutoAssignBatchSize),
		httptransport.NewAgentHandler(agentService, appLogger),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("HTTP server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info("Shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Routing service stopped")
}

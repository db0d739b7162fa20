package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/talentflow-ai/be-hr-pipeline/internal/client"
	"github.com/talentflow-ai/be-hr-pipeline/internal/config"
	"github.com/talentflow-ai/be-hr-pipeline/internal/database"
	"github.com/talentflow-ai/be-hr-pipeline/internal/handler"
	"github.com/talentflow-ai/be-hr-pipeline/internal/logger"
	"github.com/talentflow-ai/be-hr-pipeline/internal/middleware"
	"github.com/talentflow-ai/be-hr-pipeline/internal/natsclient"
	"github.com/talentflow-ai/be-hr-pipeline/internal/repository"
	"github.com/talentflow-ai/be-hr-pipeline/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Pipeline Activities Service (HR-2)")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		HealthCheck:     cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	activityRepo := repository.NewActivityRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	auditRepo := repository.NewActivityAuditRepository(db)

	// Initialize downstream clients
	catalogClient := client.NewCatalogClient(cfg.Clients.CatalogURL)
	appCommandClient := client.NewApplicationCommandClient(cfg.Clients.ApplicationCommandURL)

	var natsConn *natsclient.Client
	if cfg.NATS.URL != "" {
		natsConn, err = natsclient.Connect(natsclient.Config{
			URL:  cfg.NATS.URL,
			Name: cfg.Service.Name,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsConn.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS URL not configured, notifications disabled")
	}
	notifier := client.NewNotificationPublisher(natsConn, log.Logger)

	log.Info().
		Str("catalog_url", cfg.Clients.CatalogURL).
		Str("application_command_url", cfg.Clients.ApplicationCommandURL).
		Msg("Service clients initialized")

	// Initialize services
	appStatusService := service.NewApplicationStatusService(activityRepo, applicationRepo, auditRepo, catalogClient, appCommandClient, notifier, log)
	activityService := service.NewActivityService(activityRepo, applicationRepo, auditRepo, catalogClient, appStatusService, notifier, log)
	provisionService := service.NewAutoProvisionService(activityRepo, applicationRepo, auditRepo, catalogClient, appStatusService, notifier, log)
	capacityService := service.NewCapacityService(applicationRepo, log)
	idleService := service.NewIdleService(activityRepo, applicationRepo, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(activityService, appStatusService, provisionService, capacityService, idleService, log)
	mux := http.NewServeMux()

	mux.HandleFunc("/health", httpHandler.HandleHealth)

	mux.HandleFunc("/api/v1/activities", httpHandler.HandleActivities)
	mux.HandleFunc("/api/v1/activities/transition", httpHandler.HandleTransition)
	mux.HandleFunc("/api/v1/activities/schedule", httpHandler.HandleSchedule)
	mux.HandleFunc("/api/v1/activities/schedule/proposal", httpHandler.HandleScheduleProposal)
	mux.HandleFunc("/api/v1/activities/delete", httpHandler.HandleDelete)
	mux.HandleFunc("/api/v1/activities/bulk", httpHandler.HandleBulkDelete)
	mux.HandleFunc("/api/v1/activities/auto-provision", httpHandler.HandleAutoProvision)

	mux.HandleFunc("/api/v1/applications/withdraw", httpHandler.HandleWithdraw)
	mux.HandleFunc("/api/v1/applications/idle", httpHandler.HandleIdleCheck)
	mux.HandleFunc("/api/v1/applications/history", httpHandler.HandleHistory)

	mux.HandleFunc("/api/v1/job-requests/slots", httpHandler.HandleSlots)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server (health checks and reflection)
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}

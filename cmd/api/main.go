package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/outreach/internal/api"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/dispatch"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/repository"
	"github.com/timmy/outreach/internal/service"
	"github.com/timmy/outreach/internal/storage"
)

func main() {
	// Initialize logger first (rotation and level come from LOG_* env vars)
	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	segmentRepo := repository.NewSegmentRepository(db)
	prospectRepo := repository.NewProspectRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	trackingRepo := repository.NewTrackingRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Jobs live in memory, so campaigns still marked running lost their job
	if n, err := campaignRepo.FailInterrupted(ctx); err != nil {
		appLogger.WithError(err).Warn("Failed to reset interrupted campaigns")
	} else if n > 0 {
		appLogger.WithField("count", n).Warn("Marked interrupted campaigns as failed")
	}

	// Optional result mirror (R2, S3, MinIO)
	mirror, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	// Dispatch engine
	registry := dispatch.NewRegistry(dispatch.WithHistoryLimit(cfg.Dispatch.HistoryLimit))
	limiter := dispatch.NewLimiter(cfg.Dispatch.Concurrency, cfg.Dispatch.RatePerSec)
	artifacts := dispatch.NewArtifactStore(mirror, cfg.Storage.Prefix)
	scheduler := dispatch.NewScheduler(ctx, registry, limiter, artifacts)

	defaultBody := ""
	if cfg.Dispatch.DefaultBodyFile != "" {
		body, err := os.ReadFile(cfg.Dispatch.DefaultBodyFile)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to read default body file")
		}
		defaultBody = string(body)
	}

	var observers []dispatch.Observer
	if cfg.Notify.WebhookURL != "" {
		observers = append(observers, service.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout))
		appLogger.WithField("url", cfg.Notify.WebhookURL).Info("Job webhook enabled")
	}

	// Initialize services
	trackingService := service.NewTrackingService(trackingRepo, campaignRepo)
	dispatchService := service.NewDispatchService(
		registry,
		scheduler,
		artifacts,
		campaignRepo,
		prospectRepo,
		trackingService,
		service.DefaultTransportFactory,
		service.DispatchConfig{
			SMTP:            cfg.SMTP,
			BatchSize:       cfg.Dispatch.BatchSize,
			BatchDelay:      cfg.Dispatch.BatchDelay(),
			Location:        cfg.Dispatch.Location(),
			DefaultSubject:  cfg.Dispatch.DefaultSubject,
			DefaultBody:     defaultBody,
			TrackingBaseURL: cfg.Tracking.BaseURL,
		},
		observers...,
	)

	if !cfg.SMTP.Configured() {
		appLogger.Warn("SMTP is not configured; only dry runs can be started")
	}

	sqlDB, err := db.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to get database handle")
	}

	// Setup router
	router := api.SetupRouter(api.Services{
		Dispatch:  dispatchService,
		Campaigns: service.NewCampaignService(campaignRepo, segmentRepo, cfg.SMTP, service.DefaultTransportFactory),
		Segments:  service.NewSegmentService(segmentRepo, prospectRepo),
		Prospects: service.NewProspectService(prospectRepo, segmentRepo),
		Tracking:  trackingService,
		DB:        sqlDB,
	}, api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: cfg.Server.CORS,
	}, appLogger)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// Running jobs stop at their next checkpoint and record their final state
	cancel()
	scheduler.Wait()

	if sqlDB != nil {
		sqlDB.Close()
	}
	appLogger.Info("Server exited")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/repository"
	"github.com/timmy/outreach/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "outreach-import",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	filePath := flag.String("file", "", "Prospect workbook (.xlsx) to import")
	segmentID := flag.String("segment", "", "Existing segment ID to import into")
	createSegment := flag.String("create-segment", "", "Create a segment with this name and import into it")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *filePath == "" || (*segmentID == "") == (*createSegment == "") {
		appLogger.Fatal("Usage: import -file leads.xlsx (-segment ID | -create-segment NAME)")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	segmentRepo := repository.NewSegmentRepository(db)
	prospectRepo := repository.NewProspectRepository(db)
	segmentService := service.NewSegmentService(segmentRepo, prospectRepo)
	prospectService := service.NewProspectService(prospectRepo, segmentRepo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		appLogger.Info("Received shutdown signal, cancelling...")
		cancel()
	}()

	target := *segmentID
	if *createSegment != "" {
		segment, err := segmentService.Create(ctx, *createSegment, "")
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to create segment")
		}
		target = segment.ID
		appLogger.WithFields(logger.Fields{
			"segment_id": segment.ID,
			"name":       segment.Name,
		}).Info("Segment created")
	}

	f, err := os.Open(*filePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to open workbook")
	}
	defer f.Close()

	created, err := prospectService.Import(ctx, target, f)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to import prospects")
	}

	appLogger.WithFields(logger.Fields{
		"file":       *filePath,
		"segment_id": target,
		"imported":   len(created),
	}).Info("Import completed")
}

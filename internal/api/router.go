package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/outreach/internal/api/handler"
	"github.com/timmy/outreach/internal/api/middleware"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/service"
)

// Services bundles the services exposed over HTTP.
type Services struct {
	Dispatch  *service.DispatchService
	Campaigns *service.CampaignService
	Segments  *service.SegmentService
	Prospects *service.ProspectService
	Tracking  *service.TrackingService
	// DB backs the health check; nil skips the ping.
	DB handler.Pinger
}

// RouterConfig holds router settings
type RouterConfig struct {
	Mode string
	CORS config.CORSConfig
	// MaxUploadBytes caps multipart memory; zero keeps Gin's default.
	MaxUploadBytes int64
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc Services, cfg RouterConfig, log *logger.Logger) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	if cfg.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(svc.DB)
	sendHandler := handler.NewSendHandler(svc.Dispatch)
	campaignHandler := handler.NewCampaignHandler(svc.Campaigns, svc.Dispatch)
	segmentHandler := handler.NewSegmentHandler(svc.Segments)
	prospectHandler := handler.NewProspectHandler(svc.Prospects)
	trackHandler := handler.NewTrackHandler(svc.Tracking)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Workbook dispatch jobs
		v1.POST("/send", sendHandler.Start)
		v1.GET("/send/stream", sendHandler.Stream)
		v1.GET("/send/progress", sendHandler.Progress)
		v1.POST("/send/cancel", sendHandler.Cancel)
		v1.GET("/send/history", sendHandler.History)
		v1.GET("/send/result", sendHandler.Result)

		// Campaigns
		v1.GET("/campaigns", campaignHandler.List)
		v1.POST("/campaigns", campaignHandler.Create)
		v1.POST("/campaigns/test", campaignHandler.Test)
		v1.GET("/campaigns/:id", campaignHandler.Get)
		v1.PUT("/campaigns/:id", campaignHandler.Update)
		v1.DELETE("/campaigns/:id", campaignHandler.Delete)
		v1.POST("/campaigns/:id/send", campaignHandler.Send)

		// Segments
		v1.GET("/segments", segmentHandler.List)
		v1.POST("/segments", segmentHandler.Create)
		v1.GET("/segments/:id", segmentHandler.Get)
		v1.DELETE("/segments/:id", segmentHandler.Delete)

		// Prospects
		v1.GET("/prospects", prospectHandler.List)
		v1.POST("/prospects", prospectHandler.Create)
		v1.POST("/prospects/import", prospectHandler.Import)
		v1.PUT("/prospects/:id/segment", prospectHandler.Move)
		v1.DELETE("/prospects/:id", prospectHandler.Delete)

		// Engagement tracking
		v1.GET("/track/:campaign", trackHandler.Track)
	}

	return r
}

package handler

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/service"
)

// 1x1 transparent GIF.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackHandler records email opens and clicks.
type TrackHandler struct {
	tracking *service.TrackingService
}

// NewTrackHandler creates a new tracking handler.
func NewTrackHandler(trackingService *service.TrackingService) *TrackHandler {
	return &TrackHandler{tracking: trackingService}
}

// Track handles GET /api/v1/track/:campaign. Opens answer with a pixel and
// clicks redirect to the original link. Recording is best-effort.
func (h *TrackHandler) Track(c *gin.Context) {
	ctx := c.Request.Context()
	action := c.DefaultQuery("action", service.ActionOpen)
	if err := h.tracking.RecordEvent(ctx, c.Param("campaign"), c.Query("email"), action); err != nil {
		logger.CtxWarn(ctx, "Tracking event not recorded: %v", err)
	}

	if action == service.ActionClick {
		if target, ok := safeRedirect(c.Query("redirect")); ok {
			c.Redirect(http.StatusFound, target)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Data(http.StatusOK, "image/gif", pixelGIF)
}

func safeRedirect(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

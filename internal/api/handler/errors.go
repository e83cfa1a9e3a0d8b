package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/service"
)

// writeError maps service errors onto status codes and messages.
func writeError(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, err.Error()
	switch {
	case errors.Is(err, service.ErrSMTPNotConfigured):
		msg = "SMTP environment variables not configured"
	case errors.Is(err, service.ErrNoRecipients):
		status, msg = http.StatusBadRequest, "No valid recipients found"
	case errors.Is(err, service.ErrCampaignNotFound):
		status, msg = http.StatusNotFound, "Campaign not found"
	case errors.Is(err, service.ErrSegmentNotFound):
		status, msg = http.StatusNotFound, "Segment not found"
	case errors.Is(err, service.ErrProspectNotFound):
		status, msg = http.StatusNotFound, "Prospect not found"
	case errors.Is(err, service.ErrCampaignNotDraft):
		status, msg = http.StatusBadRequest, "Campaign is not in draft status"
	case errors.Is(err, service.ErrJobNotFound):
		status, msg = http.StatusBadRequest, invalidJobID
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		logger.CtxError(c.Request.Context(), "Request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": msg})
}

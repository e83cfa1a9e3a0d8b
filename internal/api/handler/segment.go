package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/outreach/internal/service"
)

// SegmentHandler handles segment endpoints.
type SegmentHandler struct {
	segments *service.SegmentService
}

// NewSegmentHandler creates a new segment handler.
func NewSegmentHandler(segmentService *service.SegmentService) *SegmentHandler {
	return &SegmentHandler{segments: segmentService}
}

// SegmentRequest is the body of POST /api/v1/segments.
type SegmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// List handles GET /api/v1/segments.
func (h *SegmentHandler) List(c *gin.Context) {
	segments, err := h.segments.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segments": segments})
}

// Get handles GET /api/v1/segments/:id.
func (h *SegmentHandler) Get(c *gin.Context) {
	segment, err := h.segments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": segment})
}

// Create handles POST /api/v1/segments.
func (h *SegmentHandler) Create(c *gin.Context) {
	var req SegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	segment, err := h.segments.Create(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": segment})
}

// Delete handles DELETE /api/v1/segments/:id. Prospects of the segment are
// deleted with it.
func (h *SegmentHandler) Delete(c *gin.Context) {
	deleted, err := h.segments.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted_prospects": deleted})
}

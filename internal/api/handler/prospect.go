package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/service"
)

// ProspectHandler handles prospect endpoints.
type ProspectHandler struct {
	prospects *service.ProspectService
}

// NewProspectHandler creates a new prospect handler.
func NewProspectHandler(prospectService *service.ProspectService) *ProspectHandler {
	return &ProspectHandler{prospects: prospectService}
}

// ProspectInput is one prospect in a bulk create call.
type ProspectInput struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	ClientEmail string `json:"client_email"`
	CompanyName string `json:"company_name"`
}

// CreateProspectsRequest is the body of POST /api/v1/prospects.
type CreateProspectsRequest struct {
	SegmentID string          `json:"segment_id"`
	Prospects []ProspectInput `json:"prospects"`
}

// MoveProspectRequest is the body of PUT /api/v1/prospects/:id/segment.
type MoveProspectRequest struct {
	SegmentID string `json:"segment_id" binding:"required"`
}

// List handles GET /api/v1/prospects, optionally filtered by segment_id.
func (h *ProspectHandler) List(c *gin.Context) {
	var (
		prospects []domain.Prospect
		err       error
	)
	if segmentID := c.Query("segment_id"); segmentID != "" {
		prospects, err = h.prospects.ListBySegment(c.Request.Context(), segmentID)
	} else {
		prospects, err = h.prospects.List(c.Request.Context())
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prospects": prospects})
}

// Create handles POST /api/v1/prospects.
func (h *ProspectHandler) Create(c *gin.Context) {
	var req CreateProspectsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Prospects == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid prospects data"})
		return
	}

	prospects := make([]domain.Prospect, len(req.Prospects))
	for i, p := range req.Prospects {
		prospects[i] = domain.Prospect{
			FirstName:   p.FirstName,
			LastName:    p.LastName,
			ClientEmail: p.ClientEmail,
			CompanyName: p.CompanyName,
		}
	}
	created, err := h.prospects.CreateMany(c.Request.Context(), req.SegmentID, prospects)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prospects": created})
}

// Import handles POST /api/v1/prospects/import with a multipart workbook.
func (h *ProspectHandler) Import(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing Excel file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read Excel file: " + err.Error()})
		return
	}
	defer f.Close()

	created, err := h.prospects.Import(c.Request.Context(), c.PostForm("segment_id"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prospects": created, "count": len(created)})
}

// Move handles PUT /api/v1/prospects/:id/segment.
func (h *ProspectHandler) Move(c *gin.Context) {
	var req MoveProspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := h.prospects.Move(c.Request.Context(), c.Param("id"), req.SegmentID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete handles DELETE /api/v1/prospects/:id.
func (h *ProspectHandler) Delete(c *gin.Context) {
	if err := h.prospects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

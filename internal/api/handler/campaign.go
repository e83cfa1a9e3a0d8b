package handler

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/outreach/internal/mailer"
	"github.com/timmy/outreach/internal/service"
)

const defaultAttachmentName = "attachment.pdf"

// CampaignHandler handles campaign endpoints.
type CampaignHandler struct {
	campaigns *service.CampaignService
	dispatch  *service.DispatchService
}

// NewCampaignHandler creates a new campaign handler.
// Parameters:
//   - campaignService: campaign CRUD and preview sends.
//   - dispatchService: starts campaign send jobs.
// Returns:
//   - *CampaignHandler: initialized handler.
func NewCampaignHandler(campaignService *service.CampaignService, dispatchService *service.DispatchService) *CampaignHandler {
	return &CampaignHandler{campaigns: campaignService, dispatch: dispatchService}
}

// CampaignRequest is the body of campaign create and update calls.
type CampaignRequest struct {
	Name        string `json:"name"`
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	Subject     string `json:"subject"`
	Pitch       string `json:"pitch"`
	SegmentID   string `json:"segment_id"`
}

func (r *CampaignRequest) input() service.CampaignInput {
	return service.CampaignInput{
		Name:        r.Name,
		SenderName:  r.SenderName,
		SenderEmail: r.SenderEmail,
		Subject:     r.Subject,
		Pitch:       r.Pitch,
		SegmentID:   r.SegmentID,
	}
}

// CampaignSendRequest is the body of POST /api/v1/campaigns/:id/send.
type CampaignSendRequest struct {
	AttachmentBase64 string `json:"attachment_base64"`
	AttachmentName   string `json:"attachment_name"`
	DryRun           bool   `json:"dry_run"`
	BatchSize        *int   `json:"batch_size"`
	BatchDelayMs     *int64 `json:"batch_delay_ms"`
}

// TestSendRequest is the body of POST /api/v1/campaigns/test.
type TestSendRequest struct {
	ToEmail     string `json:"to_email"`
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	Subject     string `json:"subject"`
	Pitch       string `json:"pitch"`
	PDFBase64   string `json:"pdf_base64"`
}

// List handles GET /api/v1/campaigns.
func (h *CampaignHandler) List(c *gin.Context) {
	campaigns, err := h.campaigns.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

// Get handles GET /api/v1/campaigns/:id.
func (h *CampaignHandler) Get(c *gin.Context) {
	campaign, err := h.campaigns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

// Create handles POST /api/v1/campaigns.
func (h *CampaignHandler) Create(c *gin.Context) {
	var req CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	campaign, err := h.campaigns.Create(c.Request.Context(), req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

// Update handles PUT /api/v1/campaigns/:id.
func (h *CampaignHandler) Update(c *gin.Context) {
	var req CampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	campaign, err := h.campaigns.Update(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

// Delete handles DELETE /api/v1/campaigns/:id.
func (h *CampaignHandler) Delete(c *gin.Context) {
	if err := h.campaigns.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Send handles POST /api/v1/campaigns/:id/send.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON with the job id).
func (h *CampaignHandler) Send(c *gin.Context) {
	var req CampaignSendRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}

	attachment, err := decodeAttachment(req.AttachmentBase64, req.AttachmentName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid attachment encoding"})
		return
	}
	pacing := service.Pacing{BatchSize: req.BatchSize}
	if req.BatchDelayMs != nil {
		d := time.Duration(*req.BatchDelayMs) * time.Millisecond
		pacing.BatchDelay = &d
	}

	job, err := h.dispatch.StartCampaign(c.Request.Context(), c.Param("id"), service.CampaignSendRequest{
		Attachment: attachment,
		DryRun:     req.DryRun,
		Pacing:     pacing,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, StartResponse{JobID: job.JobID, Total: job.Total})
}

// Test handles POST /api/v1/campaigns/test.
func (h *CampaignHandler) Test(c *gin.Context) {
	var req TestSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	attachment, err := decodeAttachment(req.PDFBase64, "")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid attachment encoding"})
		return
	}

	err = h.campaigns.SendTest(c.Request.Context(), service.TestSendInput{
		ToEmail:     req.ToEmail,
		SenderName:  req.SenderName,
		SenderEmail: req.SenderEmail,
		Subject:     req.Subject,
		Pitch:       req.Pitch,
		Attachment:  attachment,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func decodeAttachment(encoded, name string) (*mailer.Attachment, error) {
	if encoded == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = defaultAttachmentName
	}
	return &mailer.Attachment{FileName: name, ContentType: "application/pdf", Data: data}, nil
}

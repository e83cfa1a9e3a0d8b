package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/outreach/internal/dispatch"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/mailer"
	"github.com/timmy/outreach/internal/service"
)

const invalidJobID = "Invalid job_id"

// SendHandler handles dispatch job endpoints.
type SendHandler struct {
	dispatch *service.DispatchService
}

// NewSendHandler creates a new send handler.
// Parameters:
//   - dispatchService: dispatch service instance.
// Returns:
//   - *SendHandler: initialized handler.
func NewSendHandler(dispatchService *service.DispatchService) *SendHandler {
	return &SendHandler{dispatch: dispatchService}
}

// StartResponse is returned when a job is accepted.
type StartResponse struct {
	JobID string `json:"job_id"`
	Total int    `json:"total"`
}

// CancelRequest is the body of POST /api/v1/send/cancel.
type CancelRequest struct {
	JobID string `json:"job_id"`
}

// Start handles POST /api/v1/send with a multipart workbook upload.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SendHandler) Start(c *gin.Context) {
	fileHeader, err := c.FormFile("excel")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing Excel file"})
		return
	}
	data, err := readFormFile(fileHeader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read Excel file: " + err.Error()})
		return
	}

	attachment, err := formAttachment(c, "attachment", "pdf")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read attachment: " + err.Error()})
		return
	}

	pacing, err := parsePacing(c.PostForm("batch_size"), c.PostForm("batch_delay_ms"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.dispatch.StartUpload(c.Request.Context(), service.UploadRequest{
		FileName:   fileHeader.Filename,
		Workbook:   data,
		Attachment: attachment,
		FromName:   c.PostForm("from_name"),
		From:       c.PostForm("from"),
		Subject:    c.PostForm("subject"),
		Body:       c.PostForm("body"),
		DryRun:     parseBool(c.PostForm("dry_run")),
		Pacing:     pacing,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartResponse{JobID: job.JobID, Total: job.Total})
}

// Stream handles GET /api/v1/send/stream as server-sent events. It emits
// "progress" events and a final "complete" event, then closes.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes an event stream).
func (h *SendHandler) Stream(c *gin.Context) {
	jobID := c.Query("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidJobID})
		return
	}
	sub, ok := h.dispatch.Subscribe(jobID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidJobID})
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	events := sub.Events()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(string(ev.Type), ev.Job)
			return ev.Type == dispatch.EventProgress
		case <-ctx.Done():
			logger.CtxDebug(ctx, "Stream client disconnected: job=%s", jobID)
			return false
		}
	})
}

// Progress handles GET /api/v1/send/progress.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SendHandler) Progress(c *gin.Context) {
	job, ok := h.dispatch.Get(c.Query("job_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidJobID})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Cancel handles POST /api/v1/send/cancel. The job id comes from the JSON
// body or, when the body is empty, the job_id query parameter.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SendHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}
	if req.JobID == "" {
		req.JobID = c.Query("job_id")
	}

	job, ok := h.dispatch.Cancel(c.Request.Context(), req.JobID)
	if req.JobID == "" || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidJobID})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":               true,
		"job_id":           job.JobID,
		"status":           job.Status,
		"cancel_requested": job.CancelRequested,
	})
}

// History handles GET /api/v1/send/history.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SendHandler) History(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.dispatch.History()})
}

// Result handles GET /api/v1/send/result and downloads the updated workbook.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes the xlsx body).
func (h *SendHandler) Result(c *gin.Context) {
	jobID := c.Query("job_id")
	art, err := h.dispatch.Result(jobID)
	switch {
	case errors.Is(err, service.ErrJobNotFound) || jobID == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidJobID})
		return
	case errors.Is(err, service.ErrResultNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "Result not ready"})
		return
	case err != nil:
		writeError(c, err)
		return
	}

	if url, ok := h.dispatch.ResultURL(jobID); ok {
		c.Header("X-Result-URL", url)
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, art.FileName))
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, art.ContentType, art.Data)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// formAttachment reads the first present file among names.
func formAttachment(c *gin.Context, names ...string) (*mailer.Attachment, error) {
	for _, name := range names {
		fh, err := c.FormFile(name)
		if err != nil {
			continue
		}
		data, err := readFormFile(fh)
		if err != nil {
			return nil, err
		}
		return &mailer.Attachment{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	}
	return nil, nil
}

func parsePacing(batchSize, delayMs string) (service.Pacing, error) {
	var p service.Pacing
	if s := strings.TrimSpace(batchSize); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, fmt.Errorf("Invalid batch_size: %q", batchSize)
		}
		p.BatchSize = &n
	}
	if s := strings.TrimSpace(delayMs); s != "" {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil || ms < 0 {
			return p, fmt.Errorf("Invalid batch_delay_ms: %q", delayMs)
		}
		d := time.Duration(ms) * time.Millisecond
		p.BatchDelay = &d
	}
	return p, nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}

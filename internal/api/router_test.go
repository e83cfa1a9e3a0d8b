package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/dispatch"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/mailer"
	"github.com/timmy/outreach/internal/repository"
	"github.com/timmy/outreach/internal/service"
	"github.com/timmy/outreach/internal/workbook"
	"github.com/xuri/excelize/v2"
)

type stubTransport struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (t *stubTransport) Send(_ context.Context, msg mailer.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if strings.HasPrefix(msg.To, "bounce@") {
		return errors.New("550 mailbox unavailable")
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *stubTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

type testServer struct {
	router    *gin.Engine
	transport *stubTransport
	segments  *service.SegmentService
	prospects *service.ProspectService
	campaigns *service.CampaignService
}

func newTestServer(t *testing.T, smtp config.SMTPConfig, batchDelay time.Duration) *testServer {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "api.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	segRepo := repository.NewSegmentRepository(db)
	prosRepo := repository.NewProspectRepository(db)
	campRepo := repository.NewCampaignRepository(db)
	trackRepo := repository.NewTrackingRepository(db)

	transport := &stubTransport{}
	factory := func(cfg config.SMTPConfig, dryRun bool) (mailer.Transport, error) {
		if dryRun {
			return mailer.DryRunTransport{}, nil
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return transport, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	registry := dispatch.NewRegistry()
	artifacts := dispatch.NewArtifactStore(nil, "")
	scheduler := dispatch.NewScheduler(ctx, registry, dispatch.NewLimiter(4, 0), artifacts)
	t.Cleanup(func() {
		cancel()
		scheduler.Wait()
	})

	sqlDB, err := db.DB()
	require.NoError(t, err)

	tracking := service.NewTrackingService(trackRepo, campRepo)
	svc := Services{
		Dispatch: service.NewDispatchService(registry, scheduler, artifacts, campRepo, prosRepo, tracking, factory, service.DispatchConfig{
			SMTP:            smtp,
			BatchSize:       2,
			BatchDelay:      batchDelay,
			TrackingBaseURL: "http://track.test",
		}),
		Campaigns: service.NewCampaignService(campRepo, segRepo, smtp, factory),
		Segments:  service.NewSegmentService(segRepo, prosRepo),
		Prospects: service.NewProspectService(prosRepo, segRepo),
		Tracking:  tracking,
		DB:        sqlDB,
	}

	router := SetupRouter(svc, RouterConfig{
		Mode: "test",
		CORS: config.CORSConfig{AllowAllOrigins: true},
	}, logger.GetDefault())

	return &testServer{
		router:    router,
		transport: transport,
		segments:  svc.Segments,
		prospects: svc.Prospects,
		campaigns: svc.Campaigns,
	}
}

func validSMTP() config.SMTPConfig {
	return config.SMTPConfig{Host: "smtp.test", Port: 587, User: "bot@corp.test", Pass: "secret"}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if data != nil {
		fw, err := mw.CreateFormFile("excel", "leads.xlsx")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/send", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) waitTerminal(t *testing.T, jobID string) domain.JobProgress {
	t.Helper()
	var job domain.JobProgress
	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodGet, "/api/v1/send/progress?job_id="+jobID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
		return job.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func buildWorkbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", ref, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func decodeStart(t *testing.T, w *httptest.ResponseRecorder) (string, int) {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		JobID string `json:"job_id"`
		Total int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)
	return resp.JobID, resp.Total
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, validSMTP(), 0)
	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, w.Body.String())
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("connection refused") }

func TestHealthDatabaseDown(t *testing.T) {
	r := SetupRouter(Services{DB: failingPinger{}}, RouterConfig{Mode: "test"}, logger.GetDefault())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","database":"unavailable"}`, w.Body.String())
}

func TestSendUploadFlow(t *testing.T) {
	s := newTestServer(t, validSMTP(), 0)
	data := buildWorkbook(t,
		[]interface{}{"Client", "ClientEmailId"},
		[]interface{}{"Acme", "ops@acme.test"},
		[]interface{}{"Bounce", "bounce@x.test"},
		[]interface{}{"Globex", "it@globex.test"},
	)

	jobID, total := decodeStart(t, s.upload(t, data, map[string]string{"subject": "Hi {{clientName}}"}))
	assert.Equal(t, 3, total)

	job := s.waitTerminal(t, jobID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.Sent)
	assert.Equal(t, 1, job.Errors)
	assert.Equal(t, 2, s.transport.count())

	w := s.do(t, http.MethodGet, "/api/v1/send/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Jobs []domain.JobProgress `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history.Jobs, 1)
	assert.Equal(t, jobID, history.Jobs[0].JobID)

	w = s.do(t, http.MethodGet, "/api/v1/send/result?job_id="+jobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment;")

	result, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer result.Close()
	rows, err := result.GetRows(result.GetSheetName(0))
	require.NoError(t, err)
	assert.Contains(t, rows[0], workbook.ColumnStatus)
}

func TestSendRejections(t *testing.T) {
	s := newTestServer(t, validSMTP(), 0)

	w := s.upload(t, nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing Excel file")

	headerOnly := buildWorkbook(t, []interface{}{"Client", "ClientEmailId"})
	w = s.upload(t, headerOnly, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No valid recipients found")

	w = s.upload(t, headerOnly, map[string]string{"batch_size": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/send/progress?job_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid job_id")

	w = s.do(t, http.MethodGet, "/api/v1/send/result?job_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/send/stream", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/send/cancel", map[string]string{"job_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/send/cancel?job_id=nope", strings.NewReader(`{"job_id":`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request")
}

func TestSendWithoutSMTP(t *testing.T) {
	s := newTestServer(t, config.SMTPConfig{}, 0)
	data := buildWorkbook(t,
		[]interface{}{"Client", "ClientEmailId"},
		[]interface{}{"Acme", "ops@acme.test"},
	)

	w := s.upload(t, data, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SMTP environment variables not configured")

	jobID, _ := decodeStart(t, s.upload(t, data, map[string]string{"dry_run": "true"}))
	job := s.waitTerminal(t, jobID)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.Sent)
	assert.Zero(t, job.Errors)
	assert.Empty(t, job.Failures)
	assert.True(t, job.DryRun)
}

func TestSendCancelAndResultNotReady(t *testing.T) {
	s := newTestServer(t, validSMTP(), time.Hour)
	data := buildWorkbook(t,
		[]interface{}{"Client", "ClientEmailId"},
		[]interface{}{"A", "a@x.test"},
		[]interface{}{"B", "b@x.test"},
		[]interface{}{"C", "c@x.test"},
	)
	jobID, _ := decodeStart(t, s.upload(t, data, nil))

	require.Eventually(t, func() bool { return s.transport.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	w := s.do(t, http.MethodGet, "/api/v1/send/result?job_id="+jobID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Result not ready")

	w = s.do(t, http.MethodPost, "/api/v1/send/cancel", map[string]string{"job_id": jobID})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		OK              bool   `json:"ok"`
		JobID           string `json:"job_id"`
		CancelRequested bool   `json:"cancel_requested"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.True(t, resp.CancelRequested)

	job := s.waitTerminal(t, jobID)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	assert.Equal(t, 2, job.Processed)
}

// streamRecorder satisfies http.CloseNotifier, which gin's Stream requires.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
}

func (r *streamRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func TestSendStream(t *testing.T) {
	s := newTestServer(t, validSMTP(), 0)
	data := buildWorkbook(t,
		[]interface{}{"Client", "ClientEmailId"},
		[]interface{}{"A", "a@x.test"},
	)
	jobID, _ := decodeStart(t, s.upload(t, data, nil))

	// Subscribing after completion still delivers the final snapshot.
	s.waitTerminal(t, jobID)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/send/stream?job_id="+jobID, nil)
	w := newStreamRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, w.Body.String(), "event:complete")
}

func TestCampaignEndpoints(t *testing.T) {
	s := newTestServer(t, validSMTP(), 0)

	w := s.do(t, http.MethodPost, "/api/v1/segments", map[string]string{"name": "Hospitals"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var segResp struct {
		Segment domain.Segment `json:"segment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &segResp))
	segmentID := segResp.Segment.ID

	w = s.do(t, http.MethodPost, "/api/v1/prospects", map[string]interface{}{
		"segment_id": segmentID,
		"prospects": []map[string]string{
			{"first_name": "Asha", "client_email": "asha@a.test", "company_name": "A Corp"},
			{"first_name": "Ben", "client_email": "ben@b.test"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/campaigns", map[string]string{
		"name":         "Launch",
		"sender_name":  "Sales",
		"sender_email": "sales@corp.test",
		"subject":      "Hi {{firstName}}",
		"pitch":        "Visit https://corp.test",
		"segment_id":   segmentID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var campResp struct {
		Campaign domain.Campaign `json:"campaign"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &campResp))
	campaignID := campResp.Campaign.ID
	assert.Equal(t, "Hospitals", campResp.Campaign.SegmentName)

	w = s.do(t, http.MethodGet, "/api/v1/campaigns/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	jobID, total := decodeStart(t, s.do(t, http.MethodPost, "/api/v1/campaigns/"+campaignID+"/send", nil))
	assert.Equal(t, 2, total)
	job := s.waitTerminal(t, jobID)
	assert.Equal(t, 2, job.Sent)

	require.Eventually(t, func() bool {
		c, err := s.campaigns.Get(context.Background(), campaignID)
		return err == nil && c.Status == domain.CampaignStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	w = s.do(t, http.MethodPost, "/api/v1/campaigns/"+campaignID+"/send", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Campaign is not in draft status")

	w = s.do(t, http.MethodGet, "/api/v1/track/"+campaignID+"?action=click&email=asha@a.test&redirect=https://corp.test/", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://corp.test/", w.Header().Get("Location"))

	w = s.do(t, http.MethodGet, "/api/v1/track/"+campaignID+"?email=ben@b.test", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))

	c, err := s.campaigns.Get(context.Background(), campaignID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.OpenedEmails)
	assert.Equal(t, 1, c.ClickedEmails)

	w = s.do(t, http.MethodDelete, "/api/v1/segments/"+segmentID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"deleted_prospects":2}`, w.Body.String())
}

func TestTrackRejectsUnsafeRedirect(t *testing.T) {
	s := newTestServer(t, validSMTP(), 0)
	w := s.do(t, http.MethodGet, "/api/v1/track/none?action=click&email=a@x.test&redirect=javascript:alert(1)", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/outreach/internal/config"
)

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://acct.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.eu-west-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("localhost:9000"))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "minio:9000", normalizeEndpoint("http://minio:9000/"))
	assert.Equal(t, "acct.r2.dev", normalizeEndpoint("https://acct.r2.dev/bucket/path"))
	assert.Equal(t, "plain:9000", normalizeEndpoint("plain:9000"))
}

func TestNewStorageDisabled(t *testing.T) {
	st, err := NewStorage(context.Background(), config.StorageConfig{})
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = NewStorage(context.Background(), config.StorageConfig{Enabled: true})
	assert.Error(t, err)
}

func TestGetURL(t *testing.T) {
	st, err := NewS3Storage(&S3Config{Endpoint: "http://minio:9000", Bucket: "results", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/results/jobs/a/out.xlsx", st.GetURL("jobs/a/out.xlsx"))

	st, err = NewS3Storage(&S3Config{Endpoint: "x", Bucket: "b", PublicURL: "https://cdn.test/", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/jobs/a/out.xlsx", st.GetURL("jobs/a/out.xlsx"))
}

func TestUpload(t *testing.T) {
	var (
		mu       sync.Mutex
		method   string
		reqPath  string
		dispo    string
		received string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method = r.Method
		reqPath = r.URL.Path
		dispo = r.Header.Get("Content-Disposition")
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st, err := NewS3Storage(&S3Config{
		Endpoint:  srv.URL,
		Bucket:    "results",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	payload := "workbook-bytes"
	err = st.Upload(context.Background(), "jobs/42/leads.xlsx", strings.NewReader(payload), int64(len(payload)),
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/results/jobs/42/leads.xlsx", reqPath)
	assert.Contains(t, dispo, `filename=leads.xlsx`)
	assert.Contains(t, received, payload)
}

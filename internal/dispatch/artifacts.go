package dispatch

import (
	"bytes"
	"context"
	"errors"
	"path"
	"sync"

	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/storage"
)

// ErrArtifactExists is returned when a job already has a result artifact.
var ErrArtifactExists = errors.New("dispatch: result artifact already stored")

// ArtifactStore keeps result artifacts in memory, keyed by job ID.
// When a mirror is configured every artifact is also uploaded to object
// storage; the in-memory copy stays authoritative.
type ArtifactStore struct {
	mu     sync.RWMutex
	items  map[string]domain.ResultArtifact
	keys   map[string]string
	mirror storage.ObjectStorage
	prefix string
}

// NewArtifactStore creates a store. mirror may be nil.
func NewArtifactStore(mirror storage.ObjectStorage, prefix string) *ArtifactStore {
	return &ArtifactStore{
		items:  make(map[string]domain.ResultArtifact),
		keys:   make(map[string]string),
		mirror: mirror,
		prefix: prefix,
	}
}

// Put stores the artifact for jobID. Artifacts are immutable once stored.
func (a *ArtifactStore) Put(ctx context.Context, jobID string, art domain.ResultArtifact) error {
	art.Data = append([]byte(nil), art.Data...)

	a.mu.Lock()
	if _, ok := a.items[jobID]; ok {
		a.mu.Unlock()
		return ErrArtifactExists
	}
	a.items[jobID] = art
	a.mu.Unlock()

	if a.mirror == nil {
		return nil
	}

	key := path.Join(a.prefix, jobID, art.FileName)
	if err := a.mirror.Upload(ctx, key, bytes.NewReader(art.Data), int64(len(art.Data)), art.ContentType); err != nil {
		logger.CtxWarn(ctx, "Failed to mirror result artifact: key=%s, error=%v", key, err)
		return nil
	}

	a.mu.Lock()
	a.keys[jobID] = key
	a.mu.Unlock()

	logger.With(logger.Fields{
		logger.FieldSize: len(art.Data),
	}).Info(ctx, "Result artifact mirrored: key=%s", key)
	return nil
}

// Get returns the stored artifact for jobID.
func (a *ArtifactStore) Get(jobID string) (domain.ResultArtifact, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	art, ok := a.items[jobID]
	return art, ok
}

// MirrorURL returns the object storage URL of a mirrored artifact.
func (a *ArtifactStore) MirrorURL(jobID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	key, ok := a.keys[jobID]
	if !ok || a.mirror == nil {
		return "", false
	}
	return a.mirror.GetURL(key), true
}

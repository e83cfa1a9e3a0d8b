package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/repository"
	"github.com/timmy/outreach/internal/workbook"
	"gorm.io/gorm"
)

// ProspectService manages prospects and keeps segment counts current.
type ProspectService struct {
	prospects *repository.ProspectRepository
	segments  *repository.SegmentRepository
}

// NewProspectService creates a new prospect service.
func NewProspectService(prospects *repository.ProspectRepository, segments *repository.SegmentRepository) *ProspectService {
	return &ProspectService{prospects: prospects, segments: segments}
}

// List returns every prospect, newest first.
func (s *ProspectService) List(ctx context.Context) ([]domain.Prospect, error) {
	return s.prospects.List(ctx)
}

// ListBySegment returns the prospects of one segment.
func (s *ProspectService) ListBySegment(ctx context.Context, segmentID string) ([]domain.Prospect, error) {
	return s.prospects.ListBySegment(ctx, segmentID)
}

// CreateMany assigns the prospects to segmentID, stores them and refreshes
// the segment count. Prospects without an email are rejected.
func (s *ProspectService) CreateMany(ctx context.Context, segmentID string, prospects []domain.Prospect) ([]domain.Prospect, error) {
	if segmentID == "" {
		return nil, fmt.Errorf("%w: segmentId is required", ErrInvalidInput)
	}
	if _, err := s.segments.GetByID(ctx, segmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSegmentNotFound
		}
		return nil, err
	}

	now := time.Now()
	created := make([]domain.Prospect, 0, len(prospects))
	for i, p := range prospects {
		p.ClientEmail = strings.TrimSpace(p.ClientEmail)
		p.FirstName = strings.TrimSpace(p.FirstName)
		if p.ClientEmail == "" {
			return nil, fmt.Errorf("%w: prospect %d has no email", ErrInvalidInput, i+1)
		}
		if p.FirstName == "" {
			p.FirstName, _, _ = strings.Cut(p.ClientEmail, "@")
		}
		p.ID = uuid.New().String()
		p.SegmentID = segmentID
		p.CreatedAt = now
		p.UpdatedAt = now
		created = append(created, p)
	}

	if err := s.prospects.CreateMany(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to create prospects: %w", err)
	}
	if _, err := s.segments.RefreshProspectCount(ctx, segmentID); err != nil {
		logger.CtxWarn(ctx, "Failed to refresh segment count: %v", err)
	}

	logger.With(logger.Fields{
		logger.FieldSegmentID: segmentID,
		logger.FieldCount:     len(created),
	}).Info(ctx, "Prospects created")
	return created, nil
}

// Import reads prospects from a workbook into segmentID.
func (s *ProspectService) Import(ctx context.Context, segmentID string, r io.Reader) ([]domain.Prospect, error) {
	prospects, err := workbook.ReadProspects(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if len(prospects) == 0 {
		return nil, ErrNoRecipients
	}
	return s.CreateMany(ctx, segmentID, prospects)
}

// Move reassigns a prospect and refreshes both segment counts.
func (s *ProspectService) Move(ctx context.Context, id, segmentID string) error {
	prospect, err := s.prospects.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProspectNotFound
		}
		return err
	}
	if _, err := s.segments.GetByID(ctx, segmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSegmentNotFound
		}
		return err
	}
	if err := s.prospects.UpdateSegment(ctx, id, segmentID); err != nil {
		return err
	}
	s.refresh(ctx, prospect.SegmentID, segmentID)
	return nil
}

// Delete removes a prospect and refreshes its segment count.
func (s *ProspectService) Delete(ctx context.Context, id string) error {
	prospect, err := s.prospects.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProspectNotFound
		}
		return err
	}
	if err := s.prospects.Delete(ctx, id); err != nil {
		return err
	}
	s.refresh(ctx, prospect.SegmentID)
	return nil
}

func (s *ProspectService) refresh(ctx context.Context, segmentIDs ...string) {
	for _, id := range segmentIDs {
		if id == "" {
			continue
		}
		if _, err := s.segments.RefreshProspectCount(ctx, id); err != nil {
			logger.CtxWarn(ctx, "Failed to refresh segment count: %v", err)
		}
	}
}

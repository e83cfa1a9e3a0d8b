package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/repository"
	"gorm.io/gorm"
)

// SegmentService manages prospect segments.
type SegmentService struct {
	segments  *repository.SegmentRepository
	prospects *repository.ProspectRepository
}

// NewSegmentService creates a new segment service.
func NewSegmentService(segments *repository.SegmentRepository, prospects *repository.ProspectRepository) *SegmentService {
	return &SegmentService{segments: segments, prospects: prospects}
}

// Create stores a new empty segment.
func (s *SegmentService) Create(ctx context.Context, name, description string) (*domain.Segment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: segment name is required", ErrInvalidInput)
	}
	now := time.Now()
	segment := &domain.Segment{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.segments.Create(ctx, segment); err != nil {
		return nil, fmt.Errorf("failed to create segment: %w", err)
	}
	return segment, nil
}

// List returns all segments, newest first.
func (s *SegmentService) List(ctx context.Context) ([]domain.Segment, error) {
	return s.segments.List(ctx)
}

// Get returns one segment.
func (s *SegmentService) Get(ctx context.Context, id string) (*domain.Segment, error) {
	segment, err := s.segments.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSegmentNotFound
	}
	return segment, err
}

// Delete removes a segment and its prospects.
// Returns:
//   - int64: number of prospects deleted with the segment.
//   - error: ErrSegmentNotFound when the segment does not exist.
func (s *SegmentService) Delete(ctx context.Context, id string) (int64, error) {
	count, err := s.prospects.CountBySegment(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.segments.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrSegmentNotFound
		}
		return 0, fmt.Errorf("failed to delete segment: %w", err)
	}
	logger.With(logger.Fields{
		logger.FieldSegmentID: id,
		logger.FieldCount:     count,
	}).Info(ctx, "Segment deleted")
	return count, nil
}

package repository

import (
	"context"
	"time"

	"github.com/timmy/outreach/internal/domain"
	"gorm.io/gorm"
)

// SegmentRepository handles segment data operations.
type SegmentRepository struct {
	db *gorm.DB
}

// NewSegmentRepository creates a new SegmentRepository.
func NewSegmentRepository(db *gorm.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// Create inserts a new segment record.
func (r *SegmentRepository) Create(ctx context.Context, segment *domain.Segment) error {
	return r.db.WithContext(ctx).Create(segment).Error
}

// GetByID retrieves a segment by its ID.
// Returns gorm.ErrRecordNotFound when no segment matches.
func (r *SegmentRepository) GetByID(ctx context.Context, id string) (*domain.Segment, error) {
	var segment domain.Segment
	if err := r.db.WithContext(ctx).First(&segment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &segment, nil
}

// List returns all segments, newest first.
func (r *SegmentRepository) List(ctx context.Context) ([]domain.Segment, error) {
	var segments []domain.Segment
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&segments).Error
	return segments, err
}

// Update saves name and description changes.
func (r *SegmentRepository) Update(ctx context.Context, segment *domain.Segment) error {
	return r.db.WithContext(ctx).
		Model(&domain.Segment{}).
		Where("id = ?", segment.ID).
		Updates(map[string]interface{}{
			"name":        segment.Name,
			"description": segment.Description,
			"updated_at":  time.Now(),
		}).Error
}

// RefreshProspectCount recounts the segment's prospects and stores the total.
// Returns:
//   - int64: the stored count.
//   - error: non-nil if the count or update fails.
func (r *SegmentRepository) RefreshProspectCount(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Prospect{}).Where("segment_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Segment{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"prospect_count": count,
				"updated_at":     time.Now(),
			}).Error
	})
	return count, err
}

// Delete removes a segment together with its prospects.
// Returns gorm.ErrRecordNotFound when no segment matches.
func (r *SegmentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("segment_id = ?", id).Delete(&domain.Prospect{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.Segment{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

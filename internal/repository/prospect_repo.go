package repository

import (
	"context"
	"time"

	"github.com/timmy/outreach/internal/domain"
	"gorm.io/gorm"
)

const prospectBatchSize = 200

// ProspectRepository handles prospect data operations.
type ProspectRepository struct {
	db *gorm.DB
}

// NewProspectRepository creates a new ProspectRepository.
func NewProspectRepository(db *gorm.DB) *ProspectRepository {
	return &ProspectRepository{db: db}
}

// Create inserts a new prospect record.
func (r *ProspectRepository) Create(ctx context.Context, prospect *domain.Prospect) error {
	return r.db.WithContext(ctx).Create(prospect).Error
}

// CreateMany inserts prospects in batches.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prospects: records to persist; IDs must already be set.
// Returns:
//   - error: non-nil if any batch fails.
func (r *ProspectRepository) CreateMany(ctx context.Context, prospects []domain.Prospect) error {
	if len(prospects) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(prospects, prospectBatchSize).Error
}

// GetByID retrieves a prospect by its ID.
func (r *ProspectRepository) GetByID(ctx context.Context, id string) (*domain.Prospect, error) {
	var prospect domain.Prospect
	if err := r.db.WithContext(ctx).First(&prospect, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &prospect, nil
}

// List returns every prospect, newest first.
func (r *ProspectRepository) List(ctx context.Context) ([]domain.Prospect, error) {
	var prospects []domain.Prospect
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&prospects).Error
	return prospects, err
}

// ListBySegment returns the segment's prospects in insertion order.
func (r *ProspectRepository) ListBySegment(ctx context.Context, segmentID string) ([]domain.Prospect, error) {
	var prospects []domain.Prospect
	err := r.db.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Order("created_at ASC, id ASC").
		Find(&prospects).Error
	return prospects, err
}

// CountBySegment counts the segment's prospects.
func (r *ProspectRepository) CountBySegment(ctx context.Context, segmentID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Prospect{}).
		Where("segment_id = ?", segmentID).
		Count(&count).Error
	return count, err
}

// UpdateSegment moves a prospect to another segment.
func (r *ProspectRepository) UpdateSegment(ctx context.Context, id, segmentID string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Prospect{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"segment_id": segmentID,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a prospect by ID.
func (r *ProspectRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Prospect{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

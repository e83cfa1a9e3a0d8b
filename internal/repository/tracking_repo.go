package repository

import (
	"context"
	"time"

	"github.com/timmy/outreach/internal/domain"
	"gorm.io/gorm"
)

// TrackingRepository handles email tracking records.
type TrackingRepository struct {
	db *gorm.DB
}

// NewTrackingRepository creates a new TrackingRepository.
func NewTrackingRepository(db *gorm.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// Create inserts a tracking record for a delivered email.
func (r *TrackingRepository) Create(ctx context.Context, record *domain.EmailTracking) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// MarkOpened flags the first open of a campaign email. Repeated opens keep
// the original timestamp.
// Returns:
//   - bool: true if a record changed.
//   - error: non-nil if the update fails.
func (r *TrackingRepository) MarkOpened(ctx context.Context, campaignID, email string, at time.Time) (bool, error) {
	return r.mark(ctx, campaignID, email, "email_opened", "opened_at", at)
}

// MarkClicked flags the first click of a campaign email.
func (r *TrackingRepository) MarkClicked(ctx context.Context, campaignID, email string, at time.Time) (bool, error) {
	return r.mark(ctx, campaignID, email, "email_clicked", "clicked_at", at)
}

func (r *TrackingRepository) mark(ctx context.Context, campaignID, email, flag, stamp string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.EmailTracking{}).
		Where("campaign_id = ? AND prospect_email = ? AND "+flag+" = ?", campaignID, email, false).
		Updates(map[string]interface{}{
			flag:         true,
			stamp:        at,
			"updated_at": at,
		})
	return result.RowsAffected > 0, result.Error
}

// Metrics counts opened and clicked emails of a campaign.
func (r *TrackingRepository) Metrics(ctx context.Context, campaignID string) (opened, clicked int64, err error) {
	db := r.db.WithContext(ctx).Model(&domain.EmailTracking{})
	if err = db.Where("campaign_id = ? AND email_opened = ?", campaignID, true).Count(&opened).Error; err != nil {
		return 0, 0, err
	}
	db = r.db.WithContext(ctx).Model(&domain.EmailTracking{})
	if err = db.Where("campaign_id = ? AND email_clicked = ?", campaignID, true).Count(&clicked).Error; err != nil {
		return 0, 0, err
	}
	return opened, clicked, nil
}

// ListByCampaign returns the tracking records of a campaign.
func (r *TrackingRepository) ListByCampaign(ctx context.Context, campaignID string) ([]domain.EmailTracking, error) {
	var records []domain.EmailTracking
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

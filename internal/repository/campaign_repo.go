package repository

import (
	"context"
	"time"

	"github.com/timmy/outreach/internal/domain"
	"gorm.io/gorm"
)

// CampaignRepository handles campaign data operations.
type CampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a new CampaignRepository.
func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign record.
func (r *CampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

// GetByID retrieves a campaign by its ID.
// Returns gorm.ErrRecordNotFound when no campaign matches.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var campaign domain.Campaign
	if err := r.db.WithContext(ctx).First(&campaign, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

// List returns all campaigns, newest first.
func (r *CampaignRepository) List(ctx context.Context) ([]domain.Campaign, error) {
	var campaigns []domain.Campaign
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&campaigns).Error
	return campaigns, err
}

// UpdateContent saves the editable fields of a campaign.
func (r *CampaignRepository) UpdateContent(ctx context.Context, campaign *domain.Campaign) error {
	return r.updates(ctx, campaign.ID, map[string]interface{}{
		"name":         campaign.Name,
		"sender_name":  campaign.SenderName,
		"sender_email": campaign.SenderEmail,
		"subject":      campaign.Subject,
		"pitch":        campaign.Pitch,
		"segment_id":   campaign.SegmentID,
		"segment_name": campaign.SegmentName,
	})
}

// ClaimForSend moves a draft campaign to running. It reports false when the
// campaign is missing or no longer a draft, so two sends cannot both start.
func (r *CampaignRepository) ClaimForSend(ctx context.Context, id string, total int, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("id = ? AND status = ?", id, domain.CampaignStatusDraft).
		Updates(map[string]interface{}{
			"status":          domain.CampaignStatusRunning,
			"total_prospects": total,
			"sent_emails":     0,
			"failed_emails":   0,
			"started_at":      at,
			"updated_at":      at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseClaim returns a running campaign to draft when its job could not start.
func (r *CampaignRepository) ReleaseClaim(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("id = ? AND status = ?", id, domain.CampaignStatusRunning).
		Updates(map[string]interface{}{
			"status":     domain.CampaignStatusDraft,
			"started_at": nil,
			"updated_at": time.Now(),
		}).Error
}

// SetLastJob links the campaign to the job delivering it.
func (r *CampaignRepository) SetLastJob(ctx context.Context, id, jobID string) error {
	return r.updates(ctx, id, map[string]interface{}{"last_job_id": jobID})
}

// RecordProgress stores running delivery counters.
func (r *CampaignRepository) RecordProgress(ctx context.Context, id string, sent, failed int) error {
	return r.updates(ctx, id, map[string]interface{}{
		"sent_emails":   sent,
		"failed_emails": failed,
	})
}

// Finish stores the final status and counters of a campaign run.
func (r *CampaignRepository) Finish(ctx context.Context, id string, status domain.CampaignStatus, sent, failed int, at time.Time) error {
	return r.updates(ctx, id, map[string]interface{}{
		"status":        status,
		"sent_emails":   sent,
		"failed_emails": failed,
		"completed_at":  at,
	})
}

// UpdateEngagement stores open and click totals.
func (r *CampaignRepository) UpdateEngagement(ctx context.Context, id string, opened, clicked int64) error {
	return r.updates(ctx, id, map[string]interface{}{
		"opened_emails":  opened,
		"clicked_emails": clicked,
	})
}

// FailInterrupted marks campaigns left running by a previous process as failed.
// Returns:
//   - int64: number of campaigns updated.
//   - error: non-nil if the update fails.
func (r *CampaignRepository) FailInterrupted(ctx context.Context) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("status = ?", domain.CampaignStatusRunning).
		Updates(map[string]interface{}{
			"status":       domain.CampaignStatusFailed,
			"completed_at": now,
			"updated_at":   now,
		})
	return result.RowsAffected, result.Error
}

// Delete removes a campaign and its tracking records.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", id).Delete(&domain.EmailTracking{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.Campaign{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *CampaignRepository) updates(ctx context.Context, id string, values map[string]interface{}) error {
	if _, ok := values["updated_at"]; !ok {
		values["updated_at"] = time.Now()
	}
	result := r.db.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("id = ?", id).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

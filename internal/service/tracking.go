package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/repository"
)

// Tracking actions carried on tracking links.
const (
	ActionOpen  = "open"
	ActionClick = "click"
)

// TrackingService records campaign deliveries, opens and clicks.
type TrackingService struct {
	tracking  *repository.TrackingRepository
	campaigns *repository.CampaignRepository
	now       func() time.Time
}

// NewTrackingService creates a new tracking service.
func NewTrackingService(tracking *repository.TrackingRepository, campaigns *repository.CampaignRepository) *TrackingService {
	return &TrackingService{tracking: tracking, campaigns: campaigns, now: time.Now}
}

// RecordSent stores a delivered campaign email.
func (s *TrackingService) RecordSent(ctx context.Context, campaignID, email string) error {
	now := s.now()
	return s.tracking.Create(ctx, &domain.EmailTracking{
		ID:            uuid.New().String(),
		CampaignID:    campaignID,
		ProspectEmail: strings.TrimSpace(email),
		EmailSent:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// RecordEvent flags an open or click and refreshes the campaign totals when
// the record changed.
func (s *TrackingService) RecordEvent(ctx context.Context, campaignID, email, action string) error {
	email = strings.TrimSpace(email)
	if campaignID == "" || email == "" {
		return fmt.Errorf("%w: campaign and email are required", ErrInvalidInput)
	}

	var changed bool
	var err error
	switch action {
	case ActionOpen:
		changed, err = s.tracking.MarkOpened(ctx, campaignID, email, s.now())
	case ActionClick:
		// A click implies the message was opened.
		opened, openErr := s.tracking.MarkOpened(ctx, campaignID, email, s.now())
		if openErr != nil {
			return openErr
		}
		changed, err = s.tracking.MarkClicked(ctx, campaignID, email, s.now())
		changed = changed || opened
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
	if err != nil || !changed {
		return err
	}

	opened, clicked, err := s.tracking.Metrics(ctx, campaignID)
	if err != nil {
		return err
	}
	if err := s.campaigns.UpdateEngagement(ctx, campaignID, opened, clicked); err != nil {
		logger.CtxWarn(ctx, "Failed to update campaign engagement: %v", err)
	}
	return nil
}

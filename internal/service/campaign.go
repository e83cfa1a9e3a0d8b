package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/mailer"
	"github.com/timmy/outreach/internal/repository"
	"gorm.io/gorm"
)

// CampaignInput carries the editable fields of a campaign.
type CampaignInput struct {
	Name        string
	SenderName  string
	SenderEmail string
	Subject     string
	Pitch       string
	SegmentID   string
}

func (in *CampaignInput) validate() error {
	fields := []string{in.Name, in.SenderName, in.SenderEmail, in.Subject, in.Pitch, in.SegmentID}
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: all required fields must be provided", ErrInvalidInput)
		}
	}
	return nil
}

// TestSendInput describes a one-off preview email.
type TestSendInput struct {
	ToEmail     string
	SenderName  string
	SenderEmail string
	Subject     string
	Pitch       string
	Attachment  *mailer.Attachment
}

// CampaignService manages campaigns and preview sends.
type CampaignService struct {
	campaigns    *repository.CampaignRepository
	segments     *repository.SegmentRepository
	smtp         config.SMTPConfig
	newTransport TransportFactory
}

// NewCampaignService creates a new campaign service. A nil factory uses
// DefaultTransportFactory.
func NewCampaignService(campaigns *repository.CampaignRepository, segments *repository.SegmentRepository, smtp config.SMTPConfig, newTransport TransportFactory) *CampaignService {
	if newTransport == nil {
		newTransport = DefaultTransportFactory
	}
	return &CampaignService{campaigns: campaigns, segments: segments, smtp: smtp, newTransport: newTransport}
}

// Create stores a draft campaign for an existing segment.
func (s *CampaignService) Create(ctx context.Context, in CampaignInput) (*domain.Campaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	segment, err := s.segment(ctx, in.SegmentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	campaign := &domain.Campaign{
		ID:             uuid.New().String(),
		Status:         domain.CampaignStatusDraft,
		TotalProspects: segment.ProspectCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	apply(campaign, in, segment)
	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	logger.With(logger.Fields{
		logger.FieldCampaignID: campaign.ID,
		logger.FieldSegmentID:  segment.ID,
	}).Info(ctx, "Campaign created: %s", campaign.Name)
	return campaign, nil
}

// List returns all campaigns, newest first.
func (s *CampaignService) List(ctx context.Context) ([]domain.Campaign, error) {
	return s.campaigns.List(ctx)
}

// Get returns one campaign.
func (s *CampaignService) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCampaignNotFound
	}
	return campaign, err
}

// Update edits a draft campaign.
func (s *CampaignService) Update(ctx context.Context, id string, in CampaignInput) (*domain.Campaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	campaign, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != domain.CampaignStatusDraft {
		return nil, ErrCampaignNotDraft
	}
	segment, err := s.segment(ctx, in.SegmentID)
	if err != nil {
		return nil, err
	}
	apply(campaign, in, segment)
	if err := s.campaigns.UpdateContent(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes a campaign that is not currently sending.
func (s *CampaignService) Delete(ctx context.Context, id string) error {
	campaign, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status == domain.CampaignStatusRunning {
		return fmt.Errorf("%w: campaign is sending", ErrInvalidInput)
	}
	if err := s.campaigns.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCampaignNotFound
		}
		return err
	}
	return nil
}

// SendTest delivers one rendered preview synchronously.
func (s *CampaignService) SendTest(ctx context.Context, in TestSendInput) error {
	for _, f := range []string{in.ToEmail, in.SenderName, in.SenderEmail, in.Subject, in.Pitch} {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: missing required fields", ErrInvalidInput)
		}
	}
	transport, err := s.newTransport(s.smtp, false)
	if err != nil {
		return err
	}

	body := mailer.RenderHTML(in.Pitch)
	msg := mailer.Message{
		FromName: in.SenderName,
		From:     in.SenderEmail,
		To:       strings.TrimSpace(in.ToEmail),
		Subject:  in.Subject,
		HTML:     body,
		Text:     mailer.StripTags(body),
	}
	if in.Attachment != nil {
		msg.Attachments = []mailer.Attachment{*in.Attachment}
	}
	if err := transport.Send(ctx, msg); err != nil {
		logger.CtxError(ctx, "Send test failed: %v", err)
		return err
	}
	logger.Recipient(msg.To).Info(ctx, "Test email sent")
	return nil
}

func (s *CampaignService) segment(ctx context.Context, id string) (*domain.Segment, error) {
	segment, err := s.segments.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSegmentNotFound
	}
	return segment, err
}

func apply(c *domain.Campaign, in CampaignInput, segment *domain.Segment) {
	c.Name = strings.TrimSpace(in.Name)
	c.SenderName = strings.TrimSpace(in.SenderName)
	c.SenderEmail = strings.TrimSpace(in.SenderEmail)
	c.Subject = in.Subject
	c.Pitch = in.Pitch
	c.SegmentID = segment.ID
	c.SegmentName = segment.Name
}

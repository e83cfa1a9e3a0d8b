package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/dispatch"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/mailer"
	"github.com/timmy/outreach/internal/repository"
	"github.com/timmy/outreach/internal/source"
	"github.com/timmy/outreach/internal/source/segment"
	"github.com/timmy/outreach/internal/source/upload"
	"github.com/timmy/outreach/internal/workbook"
	"gorm.io/gorm"
)

const defaultUploadBody = "Dear {{clientName}},\n\nThank you for your time. Please find the attached presentation for your reference.\n\nLooking forward to your response."

// DispatchConfig holds the defaults applied to every send job.
type DispatchConfig struct {
	SMTP            config.SMTPConfig
	BatchSize       int
	BatchDelay      time.Duration
	Location        *time.Location
	DefaultSubject  string
	DefaultBody     string
	TrackingBaseURL string
}

// TransportFactory builds the mail transport of one job.
type TransportFactory func(cfg config.SMTPConfig, dryRun bool) (mailer.Transport, error)

// DefaultTransportFactory returns the SMTP transport, or the dry run
// transport when dryRun is set.
func DefaultTransportFactory(cfg config.SMTPConfig, dryRun bool) (mailer.Transport, error) {
	if dryRun {
		return mailer.DryRunTransport{}, nil
	}
	return mailer.NewSMTPTransport(cfg)
}

// Pacing overrides the configured batch settings for one job.
type Pacing struct {
	BatchSize  *int
	BatchDelay *time.Duration
}

// UploadRequest starts a job from an uploaded workbook.
type UploadRequest struct {
	FileName   string
	Workbook   []byte
	Attachment *mailer.Attachment
	FromName   string
	From       string
	Subject    string
	Body       string
	DryRun     bool
	Pacing     Pacing
}

// CampaignSendRequest starts a job for a draft campaign.
type CampaignSendRequest struct {
	Attachment *mailer.Attachment
	DryRun     bool
	Pacing     Pacing
}

// DispatchService starts send jobs and exposes their progress and results.
type DispatchService struct {
	registry     *dispatch.Registry
	scheduler    *dispatch.Scheduler
	artifacts    *dispatch.ArtifactStore
	campaigns    *repository.CampaignRepository
	prospects    *repository.ProspectRepository
	tracking     *TrackingService
	observers    []dispatch.Observer
	newTransport TransportFactory
	cfg          DispatchConfig
}

// NewDispatchService creates a new dispatch service.
// Parameters:
//   - registry: job registry shared with the scheduler.
//   - scheduler: runs the send loops.
//   - artifacts: result document store.
//   - campaigns: campaign repository for campaign sends.
//   - prospects: prospect repository for campaign sends.
//   - tracking: records delivered campaign emails; may be nil.
//   - newTransport: mail transport factory; nil uses DefaultTransportFactory.
//   - cfg: job defaults.
//   - observers: extra observers attached to every job.
//
// Returns:
//   - *DispatchService: initialized dispatch service.
func NewDispatchService(
	registry *dispatch.Registry,
	scheduler *dispatch.Scheduler,
	artifacts *dispatch.ArtifactStore,
	campaigns *repository.CampaignRepository,
	prospects *repository.ProspectRepository,
	tracking *TrackingService,
	newTransport TransportFactory,
	cfg DispatchConfig,
	observers ...dispatch.Observer,
) *DispatchService {
	if newTransport == nil {
		newTransport = DefaultTransportFactory
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultBody == "" {
		cfg.DefaultBody = defaultUploadBody
	}
	return &DispatchService{
		registry:     registry,
		scheduler:    scheduler,
		artifacts:    artifacts,
		campaigns:    campaigns,
		prospects:    prospects,
		tracking:     tracking,
		observers:    observers,
		newTransport: newTransport,
		cfg:          cfg,
	}
}

// StartUpload parses the workbook and starts a job for its pending rows.
// Returns the queued snapshot without waiting for any send.
func (s *DispatchService) StartUpload(ctx context.Context, req UploadRequest) (domain.JobProgress, error) {
	transport, err := s.newTransport(s.cfg.SMTP, req.DryRun)
	if err != nil {
		return domain.JobProgress{}, err
	}

	src := upload.NewAdapter(req.FileName, req.Workbook, workbook.Options{
		DefaultCc: s.cfg.SMTP.DefaultCc,
		Location:  s.cfg.Location,
		DryRun:    req.DryRun,
	})
	recipients, err := src.Load(ctx)
	if err != nil {
		return domain.JobProgress{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if len(recipients.Units) == 0 {
		recipients.Close()
		return domain.JobProgress{}, ErrNoRecipients
	}

	tpl := &mailer.Template{
		FromName: req.FromName,
		From:     firstNonEmpty(req.From, s.cfg.SMTP.From, s.cfg.SMTP.User),
		Subject:  firstNonEmpty(req.Subject, s.cfg.DefaultSubject),
		Body:     firstNonEmpty(req.Body, s.cfg.DefaultBody),
	}
	if req.Attachment != nil {
		tpl.Attachments = []mailer.Attachment{*req.Attachment}
	}

	job, err := s.start(src, recipients, tpl, transport, req.DryRun, req.Pacing, "", nil)
	if err != nil {
		recipients.Close()
		return domain.JobProgress{}, err
	}

	logger.With(logger.Fields{
		logger.FieldJobID: job.JobID,
		logger.FieldCount: job.Total,
	}).Info(ctx, "Upload send started: %s", src.GetDisplayName())
	return job, nil
}

// StartCampaign sends a draft campaign to its segment. The campaign moves to
// running before the job starts and follows the job's final status.
func (s *DispatchService) StartCampaign(ctx context.Context, campaignID string, req CampaignSendRequest) (domain.JobProgress, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.JobProgress{}, ErrCampaignNotFound
		}
		return domain.JobProgress{}, err
	}
	if campaign.Status != domain.CampaignStatusDraft {
		return domain.JobProgress{}, ErrCampaignNotDraft
	}

	transport, err := s.newTransport(s.cfg.SMTP, req.DryRun)
	if err != nil {
		return domain.JobProgress{}, err
	}

	src := segment.NewAdapter(s.prospects, campaign)
	recipients, err := src.Load(ctx)
	if err != nil {
		return domain.JobProgress{}, err
	}
	if len(recipients.Units) == 0 {
		return domain.JobProgress{}, ErrNoRecipients
	}

	claimed, err := s.campaigns.ClaimForSend(ctx, campaign.ID, len(recipients.Units), time.Now())
	if err != nil {
		return domain.JobProgress{}, err
	}
	if !claimed {
		return domain.JobProgress{}, ErrCampaignNotDraft
	}

	tpl := &mailer.Template{
		FromName:        campaign.SenderName,
		From:            campaign.SenderEmail,
		Subject:         campaign.Subject,
		Body:            campaign.Pitch,
		CampaignID:      campaign.ID,
		TrackingBaseURL: s.cfg.TrackingBaseURL,
	}
	if req.Attachment != nil {
		tpl.Attachments = []mailer.Attachment{*req.Attachment}
	}

	observer := &campaignObserver{campaigns: s.campaigns, campaignID: campaign.ID}
	job, err := s.start(src, recipients, tpl, transport, req.DryRun, req.Pacing, campaign.ID, observer)
	if err != nil {
		if rerr := s.campaigns.ReleaseClaim(context.WithoutCancel(ctx), campaign.ID); rerr != nil {
			logger.CtxWarn(ctx, "Failed to release campaign claim: %v", rerr)
		}
		return domain.JobProgress{}, err
	}
	if err := s.campaigns.SetLastJob(ctx, campaign.ID, job.JobID); err != nil {
		logger.CtxWarn(ctx, "Failed to link campaign job: %v", err)
	}

	logger.With(logger.Fields{
		logger.FieldJobID:      job.JobID,
		logger.FieldCampaignID: campaign.ID,
		logger.FieldCount:      job.Total,
	}).Info(ctx, "Campaign send started: %s", src.GetDisplayName())
	return job, nil
}

func (s *DispatchService) start(
	src source.Source,
	recipients *source.Recipients,
	tpl *mailer.Template,
	transport mailer.Transport,
	dryRun bool,
	pacing Pacing,
	campaignID string,
	observer dispatch.Observer,
) (domain.JobProgress, error) {
	observers := append([]dispatch.Observer(nil), s.observers...)
	if observer != nil {
		observers = append(observers, observer)
	}

	plan := dispatch.Plan{
		Recipients: recipients.Units,
		BatchSize:  s.cfg.BatchSize,
		BatchDelay: s.cfg.BatchDelay,
		Sender:     s.sender(tpl, transport, campaignID, dryRun),
		Sink:       recipients.Sink,
		Observers:  observers,
		Source:     src.GetSourceID(),
		CampaignID: campaignID,
		DryRun:     dryRun,
	}
	if pacing.BatchSize != nil {
		plan.BatchSize = *pacing.BatchSize
	}
	if pacing.BatchDelay != nil {
		plan.BatchDelay = *pacing.BatchDelay
	}
	if dryRun {
		plan.BatchDelay = 0
	}

	job, err := s.scheduler.Start(plan)
	if errors.Is(err, dispatch.ErrNoRecipients) {
		return job, ErrNoRecipients
	}
	return job, err
}

// sender renders and delivers one message. Campaign deliveries are recorded
// for open and click tracking.
func (s *DispatchService) sender(tpl *mailer.Template, transport mailer.Transport, campaignID string, dryRun bool) dispatch.Sender {
	return dispatch.SenderFunc(func(ctx context.Context, unit domain.RecipientUnit) error {
		if err := transport.Send(ctx, tpl.Compose(unit)); err != nil {
			return err
		}
		if campaignID != "" && !dryRun && s.tracking != nil {
			if err := s.tracking.RecordSent(context.WithoutCancel(ctx), campaignID, unit.Email); err != nil {
				logger.CtxWarn(ctx, "Failed to record tracking for %s: %v", unit.Email, err)
			}
		}
		return nil
	})
}

// Get returns the current snapshot of a job.
func (s *DispatchService) Get(jobID string) (domain.JobProgress, bool) {
	return s.registry.Get(jobID)
}

// Cancel requests cancellation. Cancelling a finished job is a no-op that
// returns its final state.
func (s *DispatchService) Cancel(ctx context.Context, jobID string) (domain.JobProgress, bool) {
	job, ok := s.registry.RequestCancel(jobID)
	if ok && !job.Status.IsTerminal() {
		logger.With(logger.Fields{logger.FieldJobID: jobID}).Info(ctx, "Cancel requested")
	}
	return job, ok
}

// History returns the most recent jobs in creation order.
func (s *DispatchService) History() []domain.JobProgress {
	return s.registry.ListRecent()
}

// Result returns the result workbook of a finished upload job.
func (s *DispatchService) Result(jobID string) (domain.ResultArtifact, error) {
	if _, ok := s.registry.Get(jobID); !ok {
		return domain.ResultArtifact{}, ErrJobNotFound
	}
	art, ok := s.artifacts.Get(jobID)
	if !ok {
		return domain.ResultArtifact{}, ErrResultNotReady
	}
	return art, nil
}

// ResultURL returns the mirrored copy of a job's result, when storage is enabled.
func (s *DispatchService) ResultURL(jobID string) (string, bool) {
	return s.artifacts.MirrorURL(jobID)
}

// Subscribe streams a job's progress. The caller must close the subscription.
func (s *DispatchService) Subscribe(jobID string) (*dispatch.Subscription, bool) {
	return s.registry.Subscribe(jobID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package service

import (
	"context"
	"time"

	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/repository"
)

// campaignObserver mirrors job counters and the final status onto a campaign.
type campaignObserver struct {
	campaigns  *repository.CampaignRepository
	campaignID string
}

func (o *campaignObserver) JobProgressed(ctx context.Context, job domain.JobProgress) {
	if job.Processed == 0 {
		return
	}
	if err := o.campaigns.RecordProgress(context.WithoutCancel(ctx), o.campaignID, job.Sent, job.Errors); err != nil {
		logger.CtxWarn(ctx, "Failed to record campaign progress: %v", err)
	}
}

func (o *campaignObserver) JobFinished(ctx context.Context, job domain.JobProgress) {
	at := time.Now()
	if job.CompletedAt != nil {
		at = *job.CompletedAt
	}
	status := domain.CampaignStatusFor(job.Status)
	if err := o.campaigns.Finish(context.WithoutCancel(ctx), o.campaignID, status, job.Sent, job.Errors, at); err != nil {
		logger.CtxError(ctx, "Failed to finish campaign: %v", err)
		return
	}
	logger.CtxInfo(ctx, "Campaign %s: sent=%d, failed=%d", status, job.Sent, job.Errors)
}

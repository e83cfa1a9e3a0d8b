package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookNotifier posts finished jobs to an HTTP endpoint. It implements
// dispatch.Observer.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

type webhookPayload struct {
	Event string             `json:"event"`
	Job   domain.JobProgress `json:"job"`
}

// NewWebhookNotifier creates a notifier for url. A zero timeout uses ten seconds.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{client: client, url: url}
}

func (n *WebhookNotifier) JobProgressed(context.Context, domain.JobProgress) {}

// JobFinished delivers the final snapshot. Failures are logged only.
func (n *WebhookNotifier) JobFinished(ctx context.Context, job domain.JobProgress) {
	if err := n.post(context.WithoutCancel(ctx), webhookPayload{Event: "job.finished", Job: job}); err != nil {
		logger.CtxWarn(ctx, "Completion webhook failed: %v", err)
	}
}

func (n *WebhookNotifier) post(ctx context.Context, payload webhookPayload) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook error: status %d", resp.StatusCode())
	}
	return nil
}

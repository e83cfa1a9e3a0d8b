package service

import (
	"errors"

	"github.com/timmy/outreach/internal/config"
)

var (
	ErrNoRecipients      = errors.New("no valid recipients found")
	ErrSMTPNotConfigured = config.ErrSMTPNotConfigured
	ErrJobNotFound       = errors.New("job not found")
	ErrResultNotReady    = errors.New("result not ready")
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrCampaignNotDraft  = errors.New("campaign is not in draft status")
	ErrSegmentNotFound   = errors.New("segment not found")
	ErrProspectNotFound  = errors.New("prospect not found")
	ErrInvalidInput      = errors.New("invalid input")
)

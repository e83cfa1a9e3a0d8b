package domain

import "time"

// CampaignStatus represents the delivery state of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Campaign is a composed email sent to every prospect of a segment.
type Campaign struct {
	ID             string         `gorm:"type:text;primaryKey" json:"id"`
	Name           string         `gorm:"type:text;not null" json:"name"`
	SenderName     string         `gorm:"type:text;not null" json:"sender_name"`
	SenderEmail    string         `gorm:"type:text;not null" json:"sender_email"`
	Subject        string         `gorm:"type:text;not null" json:"subject"`
	Pitch          string         `gorm:"type:text;not null" json:"pitch"`
	SegmentID      string         `gorm:"type:text;not null;index" json:"segment_id"`
	SegmentName    string         `gorm:"type:text" json:"segment_name"`
	Status         CampaignStatus `gorm:"type:text;default:draft;index" json:"status"`
	TotalProspects int            `gorm:"default:0" json:"total_prospects"`
	SentEmails     int            `gorm:"default:0" json:"sent_emails"`
	FailedEmails   int            `gorm:"default:0" json:"failed_emails"`
	OpenedEmails   int            `gorm:"default:0" json:"opened_emails"`
	ClickedEmails  int            `gorm:"default:0" json:"clicked_emails"`
	LastJobID      string         `gorm:"type:text" json:"last_job_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// TableName returns the database table name for Campaign.
func (Campaign) TableName() string {
	return "campaigns"
}

// CampaignStatusFor maps a finished job onto the campaign lifecycle.
func CampaignStatusFor(s JobStatus) CampaignStatus {
	switch s {
	case JobStatusCompleted:
		return CampaignStatusCompleted
	case JobStatusFailed:
		return CampaignStatusFailed
	case JobStatusCancelled:
		return CampaignStatusCancelled
	default:
		return CampaignStatusRunning
	}
}

// EmailTracking records delivery and engagement of one campaign email.
type EmailTracking struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	CampaignID    string     `gorm:"type:text;not null;index:idx_tracking_campaign_email" json:"campaign_id"`
	ProspectEmail string     `gorm:"type:text;not null;index:idx_tracking_campaign_email" json:"prospect_email"`
	EmailSent     bool       `json:"email_sent"`
	EmailOpened   bool       `json:"email_opened"`
	EmailClicked  bool       `json:"email_clicked"`
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
	ClickedAt     *time.Time `json:"clicked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for EmailTracking.
func (EmailTracking) TableName() string {
	return "email_tracking"
}

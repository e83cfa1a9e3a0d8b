package domain

import "time"

// Segment groups prospects that are mailed together by a campaign.
type Segment struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	Name          string    `gorm:"type:text;not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description,omitempty"`
	ProspectCount int       `gorm:"default:0" json:"prospect_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Segment.
func (Segment) TableName() string {
	return "segments"
}

// Prospect is a person that can receive campaign emails.
type Prospect struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	FirstName   string    `gorm:"type:text;not null" json:"first_name"`
	LastName    string    `gorm:"type:text" json:"last_name,omitempty"`
	ClientEmail string    `gorm:"type:text;not null;index" json:"client_email"`
	CompanyName string    `gorm:"type:text" json:"company_name,omitempty"`
	SegmentID   string    `gorm:"type:text;index" json:"segment_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Prospect.
func (Prospect) TableName() string {
	return "prospects"
}

// FullName joins first and last name, falling back to the first name.
func (p *Prospect) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

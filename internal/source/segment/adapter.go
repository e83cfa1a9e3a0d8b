package segment

import (
	"context"
	"fmt"

	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/source"
)

// ProspectLister reads the prospects of a segment.
type ProspectLister interface {
	ListBySegment(ctx context.Context, segmentID string) ([]domain.Prospect, error)
}

// Adapter implements the Source interface for the prospects of a campaign's segment.
type Adapter struct {
	prospects ProspectLister
	campaign  *domain.Campaign
}

// NewAdapter creates a new segment adapter for campaign.
func NewAdapter(prospects ProspectLister, campaign *domain.Campaign) *Adapter {
	return &Adapter{prospects: prospects, campaign: campaign}
}

func (a *Adapter) GetSourceID() string {
	return source.KindCampaign
}

func (a *Adapter) GetDisplayName() string {
	if a.campaign.SegmentName != "" {
		return fmt.Sprintf("%s (%s)", a.campaign.Name, a.campaign.SegmentName)
	}
	return a.campaign.Name
}

// Load lists the segment's prospects. Campaign sends carry no Cc and no
// result sink.
func (a *Adapter) Load(ctx context.Context) (*source.Recipients, error) {
	prospects, err := a.prospects.ListBySegment(ctx, a.campaign.SegmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segment prospects: %w", err)
	}

	units := make([]domain.RecipientUnit, 0, len(prospects))
	for _, p := range prospects {
		if p.ClientEmail == "" {
			continue
		}
		units = append(units, Unit(p))
	}
	return &source.Recipients{Units: units}, nil
}

// Unit converts a prospect into a recipient with its personalization values.
func Unit(p domain.Prospect) domain.RecipientUnit {
	name := p.FullName()
	if name == "" {
		name = p.ClientEmail
	}
	return domain.RecipientUnit{
		Name:  name,
		Email: p.ClientEmail,
		Vars: map[string]string{
			"firstName":   p.FirstName,
			"lastName":    p.LastName,
			"companyName": p.CompanyName,
			"clientName":  name,
		},
		Row: -1,
	}
}

package source

import (
	"context"

	"github.com/timmy/outreach/internal/dispatch"
	"github.com/timmy/outreach/internal/domain"
)

// Source kinds recorded on jobs.
const (
	KindUpload   = "upload"
	KindCampaign = "campaign"
)

// Recipients is the loaded audience of one job.
type Recipients struct {
	Units []domain.RecipientUnit

	// Sink records per-recipient outcomes. Nil when the source has no
	// result document.
	Sink dispatch.ResultSink
}

// Close releases the sink when it holds resources.
func (r *Recipients) Close() error {
	if c, ok := r.Sink.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Source defines where a job's recipients come from.
type Source interface {
	// GetSourceID returns the job source kind, KindUpload or KindCampaign.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	GetDisplayName() string

	// Load reads the recipients.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	// Returns:
	//   - *Recipients: units in send order plus an optional result sink.
	//   - error: non-nil if the recipients cannot be read.
	Load(ctx context.Context) (*Recipients, error)
}

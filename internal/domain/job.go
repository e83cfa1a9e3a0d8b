package domain

import "time"

// JobStatus represents the lifecycle state of a dispatch job.
// Values include JobStatusQueued, JobStatusRunning, JobStatusCompleted,
// JobStatusFailed, and JobStatusCancelled.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// TerminalStatus is the closed set of outcomes a job can finish with.
type TerminalStatus string

const (
	TerminalCompleted TerminalStatus = "completed"
	TerminalFailed    TerminalStatus = "failed"
	TerminalCancelled TerminalStatus = "cancelled"
)

// Valid reports whether t is one of the declared terminal statuses.
func (t TerminalStatus) Valid() bool {
	switch t {
	case TerminalCompleted, TerminalFailed, TerminalCancelled:
		return true
	}
	return false
}

// JobStatus maps the terminal outcome onto the job lifecycle.
func (t TerminalStatus) JobStatus() JobStatus {
	return JobStatus(t)
}

// EventOutcome is the result of one recipient send.
type EventOutcome string

const (
	OutcomeAccepted EventOutcome = "accepted"
	OutcomeError    EventOutcome = "error"
)

// RecentEvent is one entry of the rolling per-recipient event window.
type RecentEvent struct {
	Timestamp   time.Time    `json:"timestamp"`
	ClientName  string       `json:"client_name"`
	ClientEmail string       `json:"client_email"`
	Status      EventOutcome `json:"status"`
	Error       string       `json:"error,omitempty"`
}

// FailureRecord describes a recipient whose send failed.
type FailureRecord struct {
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	Error       string `json:"error"`
}

// JobProgress is the observable state of a dispatch job.
// Values handed out by the registry are copies; mutating them has no effect.
type JobProgress struct {
	JobID      string    `json:"job_id"`
	Status     JobStatus `json:"status"`
	Source     string    `json:"source,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
	DryRun     bool      `json:"dry_run,omitempty"`

	Total     int `json:"total"`
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Errors    int `json:"errors"`

	LastTo         string `json:"last_to,omitempty"`
	LastClientName string `json:"last_client_name,omitempty"`
	LastStatus     string `json:"last_status,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`

	RecentEvents []RecentEvent   `json:"recent_events"`
	Failures     []FailureRecord `json:"failures"`

	BatchSize             int        `json:"batch_size"`
	BatchDelayMs          int64      `json:"batch_delay_ms"`
	EstimatedRemainingMs  int64      `json:"estimated_remaining_ms"`
	EstimatedCompletionAt *time.Time `json:"estimated_completion_at,omitempty"`
	CancelRequested       bool       `json:"cancel_requested"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of p.
func (p JobProgress) Clone() JobProgress {
	out := p
	out.RecentEvents = append([]RecentEvent(nil), p.RecentEvents...)
	out.Failures = append([]FailureRecord(nil), p.Failures...)
	if out.RecentEvents == nil {
		out.RecentEvents = []RecentEvent{}
	}
	if out.Failures == nil {
		out.Failures = []FailureRecord{}
	}
	out.EstimatedCompletionAt = cloneTime(p.EstimatedCompletionAt)
	out.StartedAt = cloneTime(p.StartedAt)
	out.CompletedAt = cloneTime(p.CompletedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RecipientUnit is one addressee of a dispatch job.
type RecipientUnit struct {
	Name  string            `json:"name"`
	Email string            `json:"email"`
	Cc    []string          `json:"cc,omitempty"`
	Vars  map[string]string `json:"vars,omitempty"`
	// Row is the 0-based worksheet row (row 0 is the header), -1 without a tabular source.
	Row int `json:"row"`
}

// ResultArtifact is the downloadable output of a finished job.
type ResultArtifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

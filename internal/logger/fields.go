package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the dispatch job ID
	FieldJobID = "job_id"

	// FieldCampaignID is the campaign being sent
	FieldCampaignID = "campaign_id"

	// FieldSegmentID is the prospect segment
	FieldSegmentID = "segment_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the recipient source identifier (upload, campaign)
	FieldSource = "source"

	// FieldRecipient is the email address of a single recipient
	FieldRecipient = "recipient"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldSent is the number of accepted sends
	FieldSent = "sent"

	// FieldErrors is the number of failed sends
	FieldErrors = "errors"
)

package models

import "time"

// SendLog statuses. A row is written as pending before the Sender call
// and transitions exactly once to sent or failed.
const (
	SendStatusPending = "pending"
	SendStatusSent    = "sent"
	SendStatusFailed  = "failed"
)

// SendLogEntry is one dispatch attempt: a manual click, an immediate
// trigger send or a repeat tick. Rows are append-mostly and survive
// record deletion for audit retention.
type SendLogEntry struct {
	ID              string      `json:"id"`
	OrgID           string      `json:"org_id"`
	TemplateLinkID  string      `json:"template_link_id"`
	PartitionID     string      `json:"partition_id"`
	RecordID        string      `json:"record_id"`
	Recipient       string      `json:"recipient"`
	Status          string      `json:"status"`
	ResultCode      string      `json:"result_code,omitempty"`
	ResultMessage   string      `json:"result_message,omitempty"`
	TriggerType     TriggerType `json:"trigger_type"`
	RepeatIteration *int        `json:"repeat_iteration,omitempty"` // 1-based, nil for non-repeat sends
	SentAt          time.Time   `json:"sent_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// SendLogFilter for listing log entries.
type SendLogFilter struct {
	RecordID       string
	TemplateLinkID string
	Status         string
	Limit          int
	Offset         int
}

// SendLogStats holds aggregated counts for one template link.
type SendLogStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

package models

import "time"

// AutomationQueueEntry statuses. "processing" is a transient claim state
// never surfaced to the UI; the rest are terminal except "pending".
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusSent       = "sent"
	QueueStatusFailed     = "failed"
	QueueStatusCancelled  = "cancelled"
)

// AutomationQueueEntry is the scheduler's unit of durable state: one
// enrolled repeat schedule for a (template link, record) pair. At most
// one pending or processing entry may exist per pair.
type AutomationQueueEntry struct {
	ID             string     `json:"id"`
	TemplateLinkID string     `json:"template_link_id"`
	RecordID       string     `json:"record_id"`
	OrgID          string     `json:"org_id"`
	RepeatCount    int        `json:"repeat_count"`
	NextRunAt      time.Time  `json:"next_run_at"`
	Status         string     `json:"status"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

package models

import "time"

// Record is a tenant data row owned by a partition. Its data map is the
// only thing conditions and variable mappings ever read.
type Record struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	PartitionID string         `json:"partition_id"`
	Data        map[string]any `json:"data"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

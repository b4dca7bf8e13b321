package models

import (
	"fmt"
	"time"
)

// TriggerType determines which record mutation fires a template link.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerOnCreate TriggerType = "on_create"
	TriggerOnUpdate TriggerType = "on_update"
)

// Valid reports whether t is one of the known trigger types.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerManual, TriggerOnCreate, TriggerOnUpdate:
		return true
	}
	return false
}

// RepeatConfig schedules bounded repeat sends for a template link. Its
// absence on a link means the trigger fires exactly once.
type RepeatConfig struct {
	IntervalHours int        `json:"interval_hours"`
	MaxRepeat     int        `json:"max_repeat"`
	StopCondition *Condition `json:"stop_condition,omitempty"`
}

// Validate checks the repeat settings at save time.
func (rc *RepeatConfig) Validate() error {
	if rc == nil {
		return nil
	}
	if rc.IntervalHours <= 0 {
		return fmt.Errorf("interval_hours must be positive")
	}
	if rc.MaxRepeat < 1 {
		return fmt.Errorf("max_repeat must be at least 1")
	}
	if err := rc.StopCondition.Validate(); err != nil {
		return fmt.Errorf("stop_condition: %w", err)
	}
	return nil
}

// Interval returns the gap between two repeat ticks.
func (rc *RepeatConfig) Interval() time.Duration {
	return time.Duration(rc.IntervalHours) * time.Hour
}

// TemplateLink binds a message template to a partition, a recipient
// field and optional trigger/repeat rules. The trigger engine and the
// dispatch worker treat it as read-only configuration.
type TemplateLink struct {
	ID               string            `json:"id"`
	OrgID            string            `json:"org_id"`
	PartitionID      string            `json:"partition_id"`
	Name             string            `json:"name"`
	RecipientField   string            `json:"recipient_field"`
	VariableMappings map[string]string `json:"variable_mappings,omitempty"` // template variable -> record field key
	TriggerType      TriggerType       `json:"trigger_type"`
	TriggerCondition *Condition        `json:"trigger_condition,omitempty"`
	RepeatConfig     *RepeatConfig     `json:"repeat_config,omitempty"`
	IsActive         bool              `json:"is_active"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Validate checks the whole link configuration at save time, so the
// scheduler never has to re-validate it per evaluation.
func (l *TemplateLink) Validate() error {
	if l.PartitionID == "" {
		return fmt.Errorf("partition_id is required")
	}
	if l.OrgID == "" {
		return fmt.Errorf("org_id is required")
	}
	if l.Name == "" {
		return fmt.Errorf("name is required")
	}
	if l.RecipientField == "" {
		return fmt.Errorf("recipient_field is required")
	}
	if !l.TriggerType.Valid() {
		return fmt.Errorf("unknown trigger_type %q", l.TriggerType)
	}
	if err := l.TriggerCondition.Validate(); err != nil {
		return fmt.Errorf("trigger_condition: %w", err)
	}
	if err := l.RepeatConfig.Validate(); err != nil {
		return fmt.Errorf("repeat_config: %w", err)
	}
	if l.RepeatConfig != nil && l.TriggerType == TriggerManual {
		return fmt.Errorf("manual links cannot have a repeat_config")
	}
	return nil
}

// TemplateLinkFilter for listing links.
type TemplateLinkFilter struct {
	PartitionID string
	TriggerType TriggerType
	ActiveOnly  bool
	Limit       int
	Offset      int
}

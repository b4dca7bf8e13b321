package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pjk0007/salesflow-sub000/internal/dispatch"
	"github.com/pjk0007/salesflow-sub000/internal/metrics"
	"github.com/pjk0007/salesflow-sub000/internal/models"
	"github.com/pjk0007/salesflow-sub000/internal/repository"
)

// MutationKind is the record event that fires trigger evaluation.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
)

// IntentAction is what the engine decided for one matching link.
type IntentAction string

const (
	ActionDispatched      IntentAction = "dispatched"       // immediate send, log row written
	ActionEnrolled        IntentAction = "enrolled"         // repeat schedule created
	ActionAlreadyEnrolled IntentAction = "already_enrolled" // pending entry existed, no-op
)

// DispatchIntent records one decision for observability and tests.
type DispatchIntent struct {
	Link   *models.TemplateLink         `json:"template_link"`
	Action IntentAction                 `json:"action"`
	Log    *models.SendLogEntry         `json:"send_log,omitempty"`
	Entry  *models.AutomationQueueEntry `json:"queue_entry,omitempty"`
}

// Engine evaluates active template links against record mutations. It
// runs synchronously inside the request that mutates the record; the
// queue store, not the engine, is the source of truth for what is
// scheduled.
type Engine struct {
	links      *repository.TemplateLinkRepository
	queue      *repository.QueueRepository
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	now func() time.Time
}

func NewEngine(links *repository.TemplateLinkRepository, queue *repository.QueueRepository, d *dispatch.Dispatcher, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		links:      links,
		queue:      queue,
		dispatcher: d,
		metrics:    m,
		logger:     logger.With("component", "trigger"),
		now:        time.Now,
	}
}

// OnRecordMutated evaluates every active link bound to the record's
// partition for the given mutation kind. Links without a repeat config
// dispatch immediately; links with one enroll a queue entry whose first
// tick is due at once. previousData is the pre-mutation data map (nil
// on create); conditions evaluate the current data only.
//
// One broken link never blocks the others: per-link failures are logged
// and skipped.
func (e *Engine) OnRecordMutated(ctx context.Context, rec *models.Record, kind MutationKind, previousData map[string]any) ([]DispatchIntent, error) {
	_ = previousData

	var triggerType models.TriggerType
	switch kind {
	case MutationCreate:
		triggerType = models.TriggerOnCreate
	case MutationUpdate:
		triggerType = models.TriggerOnUpdate
	default:
		return nil, fmt.Errorf("unknown mutation kind %q", kind)
	}

	links, err := e.links.ListActiveByPartition(rec.PartitionID, triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load template links: %w", err)
	}

	intents := []DispatchIntent{}
	for i := range links {
		link := &links[i]

		matched, err := link.TriggerCondition.Evaluate(rec.Data)
		if err != nil {
			e.logger.Error("skipping link with broken trigger condition",
				"template_link_id", link.ID, "record_id", rec.ID, "error", err)
			continue
		}
		if !matched {
			continue
		}

		if link.RepeatConfig == nil {
			entry, err := e.dispatcher.Dispatch(ctx, link, rec, link.TriggerType, nil)
			if err != nil {
				e.logger.Error("immediate dispatch failed",
					"template_link_id", link.ID, "record_id", rec.ID, "error", err)
				continue
			}
			intents = append(intents, DispatchIntent{Link: link, Action: ActionDispatched, Log: entry})
			continue
		}

		entry := &models.AutomationQueueEntry{
			TemplateLinkID: link.ID,
			RecordID:       rec.ID,
			OrgID:          rec.OrgID,
			NextRunAt:      e.now().UTC(),
		}
		enrolled, err := e.queue.Enroll(entry)
		if err != nil {
			e.logger.Error("enrollment failed",
				"template_link_id", link.ID, "record_id", rec.ID, "error", err)
			continue
		}

		action := ActionEnrolled
		result := "enrolled"
		if !enrolled {
			action = ActionAlreadyEnrolled
			result = "duplicate"
			entry = nil
		}
		if e.metrics != nil {
			e.metrics.EnrollmentsTotal.WithLabelValues(result).Inc()
		}
		intents = append(intents, DispatchIntent{Link: link, Action: action, Entry: entry})
	}

	return intents, nil
}

// ManualSend dispatches one manual-trigger link against one record.
// Manual links never enroll repeats.
func (e *Engine) ManualSend(ctx context.Context, link *models.TemplateLink, rec *models.Record) (*models.SendLogEntry, error) {
	if !link.IsActive {
		return nil, fmt.Errorf("template link %s is inactive", link.ID)
	}
	return e.dispatcher.Dispatch(ctx, link, rec, models.TriggerManual, nil)
}

package dispatch

import (
	"context"
	"log/slog"

	"github.com/pjk0007/salesflow-sub000/internal/metrics"
	"github.com/pjk0007/salesflow-sub000/internal/models"
	"github.com/pjk0007/salesflow-sub000/internal/repository"
	"github.com/pjk0007/salesflow-sub000/internal/sender"
)

// Dispatcher is the shared dispatch path for immediate trigger sends,
// manual sends and repeat ticks: resolve the recipient and variables,
// write the pending audit row, call the Sender once, complete the row.
type Dispatcher struct {
	sendLog *repository.SendLogRepository
	sender  sender.Sender
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(sendLog *repository.SendLogRepository, snd sender.Sender, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sendLog: sendLog,
		sender:  snd,
		metrics: m,
		logger:  logger.With("component", "dispatcher"),
	}
}

// Dispatch performs exactly one delivery attempt and returns the send
// log entry recording it. The Sender is called at most once; a provider
// failure is reflected in the entry, not returned as an error. Errors
// are reserved for store failures where no attempt was recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, link *models.TemplateLink, rec *models.Record, trigger models.TriggerType, repeatIteration *int) (*models.SendLogEntry, error) {
	entry := &models.SendLogEntry{
		OrgID:           link.OrgID,
		TemplateLinkID:  link.ID,
		PartitionID:     link.PartitionID,
		RecordID:        rec.ID,
		Recipient:       models.FieldString(rec.Data[link.RecipientField]),
		TriggerType:     trigger,
		RepeatIteration: repeatIteration,
	}

	// Phase one: the pending row goes in before the Sender call, so a
	// crash mid-dispatch leaves a visible audit trail.
	if err := d.sendLog.Begin(entry); err != nil {
		return nil, err
	}

	if entry.Recipient == "" {
		d.complete(entry, models.SendStatusFailed, "NO_RECIPIENT", "record has no recipient value")
		return entry, nil
	}

	req := &sender.Request{
		TemplateLinkID: link.ID,
		RecordID:       rec.ID,
		Recipient:      entry.Recipient,
		Variables:      BuildVariables(link, rec),
	}

	result, err := d.sender.Send(ctx, req)
	if err != nil {
		d.logger.Error("send attempt errored",
			"template_link_id", link.ID, "record_id", rec.ID, "error", err)
		d.complete(entry, models.SendStatusFailed, "SEND_ERROR", err.Error())
		return entry, nil
	}

	if result.OK {
		d.complete(entry, models.SendStatusSent, result.Code, result.Message)
	} else {
		d.complete(entry, models.SendStatusFailed, result.Code, result.Message)
	}
	return entry, nil
}

func (d *Dispatcher) complete(entry *models.SendLogEntry, status, code, message string) {
	entry.Status = status
	entry.ResultCode = code
	entry.ResultMessage = message

	if err := d.sendLog.Complete(entry.ID, status, code, message); err != nil {
		// The pending row stays visible; operators catch it via the
		// stuck-pending count.
		d.logger.Error("failed to complete send log entry", "id", entry.ID, "error", err)
	}

	if d.metrics != nil {
		d.metrics.DispatchesTotal.WithLabelValues(string(entry.TriggerType), status).Inc()
	}
}

// BuildVariables resolves the link's variable mappings (template
// variable -> record field key) against the record data.
func BuildVariables(link *models.TemplateLink, rec *models.Record) map[string]string {
	if len(link.VariableMappings) == 0 {
		return nil
	}
	vars := make(map[string]string, len(link.VariableMappings))
	for tmplVar, fieldKey := range link.VariableMappings {
		vars[tmplVar] = models.FieldString(rec.Data[fieldKey])
	}
	return vars
}

package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pjk0007/salesflow-sub000/internal/models"
)

type SendLogRepository struct {
	db *sql.DB
}

func NewSendLogRepository(db *sql.DB) *SendLogRepository {
	return &SendLogRepository{db: db}
}

// Begin writes the pending row for one dispatch attempt before the
// Sender is called. A crash mid-dispatch then leaves a visible pending
// row instead of silently losing the attempt.
func (r *SendLogRepository) Begin(entry *models.SendLogEntry) error {
	entry.ID = uuid.New().String()
	entry.Status = models.SendStatusPending
	entry.SentAt = time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO send_log (id, org_id, template_link_id, partition_id, record_id,
			recipient, status, trigger_type, repeat_iteration, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OrgID, entry.TemplateLinkID, entry.PartitionID, entry.RecordID,
		entry.Recipient, entry.Status, string(entry.TriggerType), entry.RepeatIteration, entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write send log entry: %w", err)
	}
	return nil
}

// Complete transitions a pending row to sent or failed and stamps the
// result. The only legal update on a send log row.
func (r *SendLogRepository) Complete(id, status, resultCode, resultMessage string) error {
	_, err := r.db.Exec(`
		UPDATE send_log SET status = ?, result_code = ?, result_message = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		status, resultCode, resultMessage, time.Now().UTC(),
		id, models.SendStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to complete send log entry: %w", err)
	}
	return nil
}

// GetByID returns an entry, or (nil, nil) when it does not exist.
func (r *SendLogRepository) GetByID(id string) (*models.SendLogEntry, error) {
	row := r.db.QueryRow(`
		SELECT id, org_id, template_link_id, partition_id, record_id, recipient,
			status, result_code, result_message, trigger_type, repeat_iteration,
			sent_at, completed_at
		FROM send_log WHERE id = ?`, id)

	entry, err := scanSendLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

// List returns entries matching the filter, newest first.
func (r *SendLogRepository) List(filter models.SendLogFilter) ([]models.SendLogEntry, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.RecordID != "" {
		where += " AND record_id = ?"
		args = append(args, filter.RecordID)
	}
	if filter.TemplateLinkID != "" {
		where += " AND template_link_id = ?"
		args = append(args, filter.TemplateLinkID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM send_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, org_id, template_link_id, partition_id, record_id, recipient,
			status, result_code, result_message, trigger_type, repeat_iteration,
			sent_at, completed_at
		FROM send_log` + where + " ORDER BY sent_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []models.SendLogEntry{}
	for rows.Next() {
		entry, err := scanSendLog(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *entry)
	}
	return entries, total, rows.Err()
}

// Stats returns aggregated counts for one template link.
func (r *SendLogRepository) Stats(templateLinkID string) (models.SendLogStats, error) {
	var stats models.SendLogStats
	err := r.db.QueryRow(`
		SELECT
			COUNT(*) as total,
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) as pending,
			SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END) as sent,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) as failed
		FROM send_log WHERE template_link_id = ?`, templateLinkID,
	).Scan(&stats.Total, &stats.Pending, &stats.Sent, &stats.Failed)
	return stats, err
}

// CountStuckPending counts pending rows older than the cutoff. Rows
// stuck in pending mean a worker died between the two write phases;
// operators watch this as an incident signal.
func (r *SendLogRepository) CountStuckPending(cutoff time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM send_log WHERE status = ? AND sent_at < ?`,
		models.SendStatusPending, cutoff.UTC(),
	).Scan(&n)
	return n, err
}

// DeleteCompletedBefore removes sent/failed rows older than the cutoff.
// Used by the cleanup command; pending rows are never deleted.
func (r *SendLogRepository) DeleteCompletedBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM send_log
		WHERE status IN (?, ?) AND sent_at < ?`,
		models.SendStatusSent, models.SendStatusFailed, cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSendLog(row rowScanner) (*models.SendLogEntry, error) {
	entry := &models.SendLogEntry{}
	var triggerType string
	var recipient, resultCode, resultMessage sql.NullString
	var repeatIteration sql.NullInt64
	var completedAt sql.NullTime

	err := row.Scan(&entry.ID, &entry.OrgID, &entry.TemplateLinkID, &entry.PartitionID,
		&entry.RecordID, &recipient, &entry.Status, &resultCode, &resultMessage,
		&triggerType, &repeatIteration, &entry.SentAt, &completedAt)
	if err != nil {
		return nil, err
	}

	entry.TriggerType = models.TriggerType(triggerType)
	if recipient.Valid {
		entry.Recipient = recipient.String
	}
	if resultCode.Valid {
		entry.ResultCode = resultCode.String
	}
	if resultMessage.Valid {
		entry.ResultMessage = resultMessage.String
	}
	if repeatIteration.Valid {
		iter := int(repeatIteration.Int64)
		entry.RepeatIteration = &iter
	}
	if completedAt.Valid {
		entry.CompletedAt = &completedAt.Time
	}
	return entry, nil
}

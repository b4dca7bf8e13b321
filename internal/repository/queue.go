package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pjk0007/salesflow-sub000/internal/models"
)

type QueueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enroll inserts a pending queue entry for a (link, record) pair.
// Returns false when an active entry already exists: the partial unique
// index over pending and processing entries makes duplicate enrollment
// a no-op, so rapid successive edits of the same record never
// double-schedule. A claimed entry counts as active; otherwise an edit
// landing mid-tick could enroll a second schedule whose presence would
// block the first one's Advance back to pending.
func (r *QueueRepository) Enroll(entry *models.AutomationQueueEntry) (bool, error) {
	entry.ID = uuid.New().String()
	entry.Status = models.QueueStatusPending
	entry.RepeatCount = 0
	entry.CreatedAt = time.Now().UTC()
	entry.UpdatedAt = entry.CreatedAt

	res, err := r.db.Exec(`
		INSERT INTO automation_queue (id, template_link_id, record_id, org_id,
			repeat_count, next_run_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		entry.ID, entry.TemplateLinkID, entry.RecordID, entry.OrgID,
		entry.RepeatCount, entry.NextRunAt.UTC(), entry.Status, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to enroll queue entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimDue atomically claims up to limit due entries and returns them
// in next_run_at order, plus the number that were reclaims of
// abandoned claims. An entry is due when it is pending with
// next_run_at <= now, or stuck in processing past the grace period (a
// crashed worker's claim). Each claim is a conditional UPDATE checked
// via RowsAffected, so concurrent worker processes never claim the same
// row twice.
func (r *QueueRepository) ClaimDue(now time.Time, limit int, grace time.Duration) ([]models.AutomationQueueEntry, int, error) {
	if limit <= 0 {
		limit = 1
	}
	now = now.UTC()
	abandoned := now.Add(-grace)

	rows, err := r.db.Query(`
		SELECT id, status FROM automation_queue
		WHERE (status = ? AND next_run_at <= ?)
		   OR (status = ? AND claimed_at <= ?)
		ORDER BY next_run_at
		LIMIT ?`,
		models.QueueStatusPending, now,
		models.QueueStatusProcessing, abandoned,
		limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("claim scan failed: %w", err)
	}

	type candidate struct {
		id     string
		status string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.status); err != nil {
			rows.Close()
			return nil, 0, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, err
	}
	rows.Close()

	claimed := []models.AutomationQueueEntry{}
	reclaimed := 0
	for _, c := range candidates {
		res, err := r.db.Exec(`
			UPDATE automation_queue
			SET status = ?, claimed_at = ?, updated_at = ?
			WHERE id = ?
			  AND ((status = ? AND next_run_at <= ?) OR (status = ? AND claimed_at <= ?))`,
			models.QueueStatusProcessing, now, now,
			c.id,
			models.QueueStatusPending, now,
			models.QueueStatusProcessing, abandoned,
		)
		if err != nil {
			return claimed, reclaimed, fmt.Errorf("claim update failed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return claimed, reclaimed, err
		}
		if n == 0 {
			// Another worker got there first.
			continue
		}

		entry, err := r.GetByID(c.id)
		if err != nil {
			return claimed, reclaimed, err
		}
		if entry != nil {
			if c.status == models.QueueStatusProcessing {
				reclaimed++
			}
			claimed = append(claimed, *entry)
		}
	}
	return claimed, reclaimed, nil
}

// Advance returns a claimed entry to pending with its repeat counter
// incremented and the next tick scheduled.
func (r *QueueRepository) Advance(id string, nextRunAt time.Time) error {
	res, err := r.db.Exec(`
		UPDATE automation_queue
		SET status = ?, repeat_count = repeat_count + 1, next_run_at = ?,
			claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.QueueStatusPending, nextRunAt.UTC(), time.Now().UTC(),
		id, models.QueueStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to advance queue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue entry %s is not claimed", id)
	}
	return nil
}

// Finalize moves a claimed entry to a terminal status (sent, failed or
// cancelled).
func (r *QueueRepository) Finalize(id, status string) error {
	_, err := r.db.Exec(`
		UPDATE automation_queue
		SET status = ?, claimed_at = NULL, updated_at = ?
		WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize queue entry: %w", err)
	}
	return nil
}

// Cancel resolves a pending entry to cancelled. This is the only queue
// mutation reachable from the UI; claimed and terminal entries are left
// alone. Returns false when the entry was not pending.
func (r *QueueRepository) Cancel(id string) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE automation_queue SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.QueueStatusCancelled, time.Now().UTC(),
		id, models.QueueStatusPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByID returns an entry, or (nil, nil) when it does not exist.
func (r *QueueRepository) GetByID(id string) (*models.AutomationQueueEntry, error) {
	entry := &models.AutomationQueueEntry{}
	var claimedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, template_link_id, record_id, org_id, repeat_count, next_run_at,
			status, claimed_at, created_at, updated_at
		FROM automation_queue WHERE id = ?`, id,
	).Scan(&entry.ID, &entry.TemplateLinkID, &entry.RecordID, &entry.OrgID,
		&entry.RepeatCount, &entry.NextRunAt, &entry.Status, &claimedAt,
		&entry.CreatedAt, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if claimedAt.Valid {
		entry.ClaimedAt = &claimedAt.Time
	}
	return entry, nil
}

// ListByRecord returns the queue entries for one record, pending first.
// The UI uses this to show whether a record is currently scheduled.
func (r *QueueRepository) ListByRecord(recordID string) ([]models.AutomationQueueEntry, error) {
	rows, err := r.db.Query(`
		SELECT id, template_link_id, record_id, org_id, repeat_count, next_run_at,
			status, claimed_at, created_at, updated_at
		FROM automation_queue
		WHERE record_id = ?
		ORDER BY CASE WHEN status = 'pending' THEN 0 ELSE 1 END, next_run_at`,
		recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AutomationQueueEntry{}
	for rows.Next() {
		var entry models.AutomationQueueEntry
		var claimedAt sql.NullTime
		err := rows.Scan(&entry.ID, &entry.TemplateLinkID, &entry.RecordID, &entry.OrgID,
			&entry.RepeatCount, &entry.NextRunAt, &entry.Status, &claimedAt,
			&entry.CreatedAt, &entry.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if claimedAt.Valid {
			entry.ClaimedAt = &claimedAt.Time
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountPending returns the number of pending entries, for the queue
// depth gauge.
func (r *QueueRepository) CountPending() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM automation_queue WHERE status = ?`,
		models.QueueStatusPending).Scan(&n)
	return n, err
}

// DeleteTerminalBefore removes terminal entries older than the cutoff.
// Used by the cleanup command.
func (r *QueueRepository) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM automation_queue
		WHERE status IN (?, ?, ?) AND updated_at < ?`,
		models.QueueStatusSent, models.QueueStatusFailed, models.QueueStatusCancelled,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pjk0007/salesflow-sub000/internal/models"
)

type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Create inserts a new record.
func (r *RecordRepository) Create(rec *models.Record) error {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record data: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO records (id, org_id, partition_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OrgID, rec.PartitionID, string(data), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// UpdateData replaces the record's data map and returns the previous
// data, which the trigger engine passes through as previousData.
func (r *RecordRepository) UpdateData(id string, data map[string]any) (map[string]any, error) {
	prev, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, sql.ErrNoRows
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record data: %w", err)
	}

	_, err = r.db.Exec(`UPDATE records SET data = ?, updated_at = ? WHERE id = ?`,
		string(raw), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return prev.Data, nil
}

// GetByID returns a record, or (nil, nil) when it does not exist.
func (r *RecordRepository) GetByID(id string) (*models.Record, error) {
	rec := &models.Record{}
	var data string

	err := r.db.QueryRow(`
		SELECT id, org_id, partition_id, data, created_at, updated_at
		FROM records WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.OrgID, &rec.PartitionID, &data, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("failed to parse record data: %w", err)
	}
	return rec, nil
}

// Delete removes a record. Queue entries cascade; send log rows are
// kept with a dangling record_id for audit retention.
func (r *RecordRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM records WHERE id = ?", id)
	return err
}

// ListByPartition returns records in a partition, newest first.
func (r *RecordRepository) ListByPartition(partitionID string, limit, offset int) ([]models.Record, error) {
	query := `
		SELECT id, org_id, partition_id, data, created_at, updated_at
		FROM records WHERE partition_id = ?
		ORDER BY created_at DESC`
	args := []any{partitionID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		var rec models.Record
		var data string
		if err := rows.Scan(&rec.ID, &rec.OrgID, &rec.PartitionID, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to parse record data: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

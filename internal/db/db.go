package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

// New opens the sqlite database, creating the parent directory if
// needed. WAL mode keeps readers and the dispatch worker from blocking
// each other; the busy timeout covers concurrent worker processes.
func New(path string) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Migrate() error {
	migrations := []string{
		migrationRecords,
		migrationTemplateLinks,
		migrationAutomationQueue,
		migrationSendLog,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const migrationRecords = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    org_id TEXT NOT NULL,
    partition_id TEXT NOT NULL,
    data JSON NOT NULL DEFAULT '{}',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_records_partition ON records(partition_id);
CREATE INDEX IF NOT EXISTS idx_records_org ON records(org_id);
`

const migrationTemplateLinks = `
CREATE TABLE IF NOT EXISTS template_links (
    id TEXT PRIMARY KEY,
    org_id TEXT NOT NULL,
    partition_id TEXT NOT NULL,
    name TEXT NOT NULL,
    recipient_field TEXT NOT NULL,
    variable_mappings JSON,
    trigger_type TEXT NOT NULL,
    trigger_condition JSON,
    repeat_config JSON,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_template_links_partition ON template_links(partition_id, trigger_type);
`

const migrationAutomationQueue = `
CREATE TABLE IF NOT EXISTS automation_queue (
    id TEXT PRIMARY KEY,
    template_link_id TEXT NOT NULL REFERENCES template_links(id) ON DELETE CASCADE,
    record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
    org_id TEXT NOT NULL,
    repeat_count INTEGER NOT NULL DEFAULT 0,
    next_run_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    claimed_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_automation_queue_scan ON automation_queue(status, next_run_at);
DROP INDEX IF EXISTS idx_automation_queue_pending_pair;
CREATE UNIQUE INDEX IF NOT EXISTS idx_automation_queue_active_pair
    ON automation_queue(template_link_id, record_id) WHERE status IN ('pending', 'processing');
`

// send_log keeps record_id as a plain column: rows survive record
// deletion as a dangling reference for audit retention.
const migrationSendLog = `
CREATE TABLE IF NOT EXISTS send_log (
    id TEXT PRIMARY KEY,
    org_id TEXT NOT NULL,
    template_link_id TEXT NOT NULL,
    partition_id TEXT NOT NULL,
    record_id TEXT NOT NULL,
    recipient TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    result_code TEXT,
    result_message TEXT,
    trigger_type TEXT NOT NULL,
    repeat_iteration INTEGER,
    sent_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_send_log_record ON send_log(record_id);
CREATE INDEX IF NOT EXISTS idx_send_log_link ON send_log(template_link_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_send_log_status ON send_log(status, sent_at);
`

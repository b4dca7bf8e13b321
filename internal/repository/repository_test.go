package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/pjk0007/salesflow-sub000/internal/db"
	"github.com/pjk0007/salesflow-sub000/internal/models"
)

// setupTestDB creates an in-memory SQLite database with all migrations
// applied. A single connection keeps the in-memory database from being
// re-created per pooled connection.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	database.SetMaxOpenConns(1)

	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database.DB
}

func createTestRecord(t *testing.T, repo *RecordRepository, data map[string]any) *models.Record {
	t.Helper()
	rec := &models.Record{
		OrgID:       "org-1",
		PartitionID: "pipeline-1",
		Data:        data,
	}
	if err := repo.Create(rec); err != nil {
		t.Fatalf("failed to create record: %v", err)
	}
	return rec
}

func createTestLink(t *testing.T, repo *TemplateLinkRepository, mutate func(*models.TemplateLink)) *models.TemplateLink {
	t.Helper()
	link := &models.TemplateLink{
		OrgID:          "org-1",
		PartitionID:    "pipeline-1",
		Name:           "follow-up",
		RecipientField: "email",
		TriggerType:    models.TriggerOnCreate,
		IsActive:       true,
	}
	if mutate != nil {
		mutate(link)
	}
	if err := repo.Create(link); err != nil {
		t.Fatalf("failed to create template link: %v", err)
	}
	return link
}

func enrollTestEntry(t *testing.T, repo *QueueRepository, linkID, recordID string, nextRunAt time.Time) *models.AutomationQueueEntry {
	t.Helper()
	entry := &models.AutomationQueueEntry{
		TemplateLinkID: linkID,
		RecordID:       recordID,
		OrgID:          "org-1",
		NextRunAt:      nextRunAt,
	}
	enrolled, err := repo.Enroll(entry)
	if err != nil {
		t.Fatalf("failed to enroll queue entry: %v", err)
	}
	if !enrolled {
		t.Fatal("expected enrollment to succeed")
	}
	return entry
}

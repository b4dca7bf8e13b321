package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/pjk0007/salesflow-sub000/internal/models"
)

func TestEnrollIdempotent(t *testing.T) {
	database := setupTestDB(t)
	records := NewRecordRepository(database)
	links := NewTemplateLinkRepository(database)
	queue := NewQueueRepository(database)

	rec := createTestRecord(t, records, map[string]any{"email": "a@example.com"})
	link := createTestLink(t, links, nil)

	now := time.Now().UTC()
	enrollTestEntry(t, queue, link.ID, rec.ID, now)

	// Second enrollment for the same pair is a no-op while a pending
	// entry exists.
	dup := &models.AutomationQueueEntry{
		TemplateLinkID: link.ID,
		RecordID:       rec.ID,
		OrgID:          "org-1",
		NextRunAt:      now,
	}
	enrolled, err := queue.Enroll(dup)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if enrolled {
		t.Error("expected duplicate enrollment to be rejected")
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM automation_queue`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("queue entries = %d, want 1", count)
	}
}

func TestEnrollWhileClaimed(t *testing.T) {
	database := setupTestDB(t)
	records := NewRecordRepository(database)
	links := NewTemplateLinkRepository(database)
	queue := NewQueueRepository(database)

	rec := createTestRecord(t, records, map[string]any{"email": "a@example.com"})
	link := createTestLink(t, links, nil)

	now := time.Now().UTC()
	entry := enrollTestEntry(t, queue, link.ID, rec.ID, now.Add(-time.Minute))

	claimed, _, err := queue.ClaimDue(now, 10, 5*time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimDue() = %d entries, err %v", len(claimed), err)
	}

	// A record edit landing while the entry is claimed must not enroll
	// a second schedule for the pair.
	dup := &models.AutomationQueueEntry{
		TemplateLinkID: link.ID,
		RecordID:       rec.ID,
		OrgID:          "org-1",
		NextRunAt:      now,
	}
	enrolled, err := queue.Enroll(dup)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if enrolled {
		t.Error("expected enrollment against a claimed pair to be rejected")
	}

	// The claimed entry advances back to pending unobstructed.
	if err := queue.Advance(entry.ID, now.Add(24*time.Hour)); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	got, err := queue.GetByID(entry.ID)
	if err != nil || got == nil {
		t.Fatal(err)
	}
	if got.Status != models.QueueStatusPending || got.RepeatCount != 1 {
		t.Errorf("entry after advance = %+v", got)
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM automation_queue`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("queue entries = %d, want 1", count)
	}
}

func TestEnrollAfterTerminal(t *testing.T) {
	database := setupTestDB(t)
	records := NewRecordRepository(database)
	links := NewTemplateLinkRepository(database)
	queue := NewQueueRepository(database)

	rec := createTestRecord(t, records, map[string]any{"email": "a@example.com"})
	link := createTestLink(t, links, nil)

	now := time.Now().UTC()
	first := enrollTestEntry(t, queue, link.ID, rec.ID, now)

	// Resolve the first schedule, then the pair may enroll again.
	claimed, _, err := queue.ClaimDue(now.Add(time.Second), 10, 5*time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimDue() = %d entries, err %v", len(claimed), err)
	}
	if err := queue.Finalize(first.ID, models.QueueStatusCancelled); err != nil {
		t.Fatal(err)
	}

	second := &models.AutomationQueueEntry{
		TemplateLinkID: link.ID,
		RecordID:       rec.ID,
		OrgID:          "org-1",
		NextRunAt:      now,
	}
	enrolled, err := queue.Enroll(second)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if !enrolled {
		t.Error("expected re-enrollment after terminal status to succeed")
	}
}

func TestClaimDueOrderingAndLimit(t *testing.T) {
	database := setupTestDB(t)
	records := NewRecordRepository(database)
	links := NewTemplateLinkRepository(database)
	queue := NewQueueRepository(database)

	rec := createTestRecord(t, records, map[string]any{"email": "a@example.com"})
	now := time.Now().UTC()

	linkLate := createTestLink(t, links, nil)
	linkEarly := createTestLink(t, links, nil)
	linkFuture := createTestLink(t, links, nil)

	enrollTestEntry(t, queue, linkLate.ID, rec.ID, now.Add(-time.Minute))
	early := enrollTestEntry(t, queue, linkEarly.ID, rec.ID, now.Add(-time.Hour))
	enrollTestEntry(t, queue, linkFuture.ID, rec.ID, now.Add(time.Hour))

	claimed, reclaimed, err := queue.ClaimDue(now, 1, 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if reclaimed != 0 {
		t.Errorf("reclaimed = %d, want 0", reclaimed)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d entries, want 1", len(claimed))
	}
	if claimed[0].ID != early.ID {
		t.Errorf("claimed entry %s, want earliest %s", claimed[0].ID, early.ID)
	}
	if claimed[0].Status != models.QueueStatusProcessing {
		t.Errorf("claimed status = %s, want processing", claimed[0].Status)
	}

	// The remaining due entry is claimable; the future one is not.
	claimed, _, err = queue.ClaimDue(now, 10, 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("second claim got %d entries, want 1", len(claimed))
	}
}

func TestClaimDueReclaimsAbandoned(t *testing.T) {
	database := setupTestDB(t)
	records := NewRecordRepository(database)
	links := NewTemplateLinkRepository(database)
	queue := NewQueueRepository(database)

	rec := createTestRecord(t, records, map[string]any{"email": "a@example.com"})
	link := createTestLink(t, links, nil)

	now := time.Now().UTC()
	entry := enrollTestEntry(t, queue, link.ID, rec.ID, now.Add(-time.Minute))

	claimed, _, err := queue.ClaimDue(now, 10, 5*time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimDue() = %d entries, err %v", len(claimed), err)
	}

	// A fresh claim is not reclaimable.
	claimed, _, err = queue.ClaimDue(now, 10, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 0 {
		t.Fatalf("fresh claim was stolen: %d entries", len(claimed))
	}

	// Push the claim past the grace period, as if the worker crashed.
	stale := now.Add(-10 * time.Minute)
	if _, err := database.Exec(`UPDATE automation_queue SET claimed_at = ? WHERE id = ?`, stale, entry.ID); err != nil {
		t.Fatal(err)
	}

	claimed, reclaimed, err := queue.ClaimDue(now, 10, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 || claimed[0].ID != entry.ID {
		t.Fatalf("expected abandoned entry to be reclaimed, got %d entries", len(claimed))
	}
	if reclaimed != 1 {
		t.Errorf("reclaimed = %d, want 1", reclaimed)
	}
}

func TestClaimDueConcurrentWorkers(t *testing.T) {
	database := setupTestDB(t)
	records := NewRecordRepository(database)
	links := NewTemplateLinkRepository(database)
	queue := NewQueueRepository(database)

	rec := createTestRecord(t, records, map[string]any{"email": "a@example.com"})
	now := time.Now().UTC()

	const entries = 10
	for i := 0; i < entries; i++ {
		link := createTestLink(t, links, nil)
		enrollTestEntry(t, queue, link.ID, rec.ID, now.Add(-time.Minute))
	}

	// Two claimers race over the same batch; conditional updates must
	// hand each entry to exactly one of them.
	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, _, err := queue.ClaimDue(now, entries, 5*time.Minute)
			if err != nil {
				t.Errorf("ClaimDue() error = %v", err)
				return
			}
			mu.Lock()
			for _, e := range claimed {
				seen[e.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != entries {
		t.Errorf("claimed %d distinct entries, want %d", len(seen), entries)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("entry %s claimed %d times", id, n)
		}
	}
}

func TestAdvance(t *testing.T) {
	database := setupTestDB(t)
	records := NewRecordRepository(database)
	links := NewTemplateLinkRepository(database)
	queue := NewQueueRepository(database)

	rec := createTestRecord(t, records, map[string]any{"email": "a@example.com"})
	link := createTestLink(t, links, nil)

	now := time.Now().UTC()
	entry := enrollTestEntry(t, queue, link.ID, rec.ID, now.Add(-time.Minute))

	// Advance requires a claim.
	if err := queue.Advance(entry.ID, now.Add(time.Hour)); err == nil {
		t.Error("expected Advance on unclaimed entry to fail")
	}

	if _, _, err := queue.ClaimDue(now, 10, 5*time.Minute); err != nil {
		t.Fatal(err)
	}

	next := now.Add(24 * time.Hour)
	if err := queue.Advance(entry.ID, next); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	got, err := queue.GetByID(entry.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID() = %v, err %v", got, err)
	}
	if got.Status != models.QueueStatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.RepeatCount != 1 {
		t.Errorf("repeat_count = %d, want 1", got.RepeatCount)
	}
	if got.ClaimedAt != nil {
		t.Error("claimed_at should be cleared")
	}
	if !got.NextRunAt.After(now) {
		t.Errorf("next_run_at = %v, want after %v", got.NextRunAt, now)
	}
}

func TestCancelOnlyPending(t *testing.T) {
	database := setupTestDB(t)
	records := NewRecordRepository(database)
	links := NewTemplateLinkRepository(database)
	queue := NewQueueRepository(database)

	rec := createTestRecord(t, records, map[string]any{"email": "a@example.com"})
	link := createTestLink(t, links, nil)

	now := time.Now().UTC()
	entry := enrollTestEntry(t, queue, link.ID, rec.ID, now.Add(-time.Minute))

	cancelled, err := queue.Cancel(entry.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !cancelled {
		t.Error("expected pending entry to cancel")
	}

	// Terminal entries do not cancel again.
	cancelled, err = queue.Cancel(entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled {
		t.Error("expected cancel of terminal entry to be rejected")
	}
}

func TestDeleteCascadeOnRecordDelete(t *testing.T) {
	database := setupTestDB(t)
	records := NewRecordRepository(database)
	links := NewTemplateLinkRepository(database)
	queue := NewQueueRepository(database)

	rec := createTestRecord(t, records, map[string]any{"email": "a@example.com"})
	link := createTestLink(t, links, nil)
	enrollTestEntry(t, queue, link.ID, rec.ID, time.Now().UTC())

	if err := records.Delete(rec.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM automation_queue`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("queue entries after record delete = %d, want 0", count)
	}
}

func TestDeleteTerminalBefore(t *testing.T) {
	database := setupTestDB(t)
	records := NewRecordRepository(database)
	links := NewTemplateLinkRepository(database)
	queue := NewQueueRepository(database)

	rec := createTestRecord(t, records, map[string]any{"email": "a@example.com"})
	link := createTestLink(t, links, nil)

	now := time.Now().UTC()
	entry := enrollTestEntry(t, queue, link.ID, rec.ID, now)
	if _, err := queue.Cancel(entry.ID); err != nil {
		t.Fatal(err)
	}

	// Fresh terminal entries survive the cutoff.
	deleted, err := queue.DeleteTerminalBefore(now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}

	deleted, err = queue.DeleteTerminalBefore(now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

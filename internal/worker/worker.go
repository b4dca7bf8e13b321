package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pjk0007/salesflow-sub000/internal/dispatch"
	"github.com/pjk0007/salesflow-sub000/internal/metrics"
	"github.com/pjk0007/salesflow-sub000/internal/models"
	"github.com/pjk0007/salesflow-sub000/internal/repository"
)

// Worker is the dispatch worker: a periodic scanner that claims due
// automation queue entries, re-checks stop conditions against current
// record data, dispatches, and advances or retires each schedule.
// Multiple worker processes may run against the same database; the
// claim step in the queue repository is what keeps them from
// double-dispatching.
type Worker struct {
	logger     *slog.Logger
	queue      *repository.QueueRepository
	records    *repository.RecordRepository
	links      *repository.TemplateLinkRepository
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics

	pollInterval time.Duration
	batchSize    int
	claimGrace   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// Config holds worker configuration. The defaults are tunable, not
// load-bearing: cadence and batch size only affect latency and
// throughput, never correctness.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	ClaimGrace   time.Duration
}

// DefaultConfig returns default worker configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 60 * time.Second,
		BatchSize:    50,
		ClaimGrace:   5 * time.Minute,
	}
}

func New(queue *repository.QueueRepository, records *repository.RecordRepository, links *repository.TemplateLinkRepository, d *dispatch.Dispatcher, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.ClaimGrace <= 0 {
		cfg.ClaimGrace = DefaultConfig().ClaimGrace
	}

	return &Worker{
		logger:       logger.With("component", "worker"),
		queue:        queue,
		records:      records,
		links:        links,
		dispatcher:   d,
		metrics:      m,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		claimGrace:   cfg.ClaimGrace,
		ctx:          ctx,
		cancel:       cancel,
		now:          time.Now,
	}
}

// Start starts the worker loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("worker started",
		"poll_interval", w.pollInterval, "batch_size", w.batchSize, "claim_grace", w.claimGrace)
}

// Stop stops the worker gracefully, finishing the entry in flight.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick claims one batch of due entries and processes them in
// next_run_at order, one at a time, preserving per-entry ordering.
func (w *Worker) tick() {
	start := time.Now()

	entries, reclaimed, err := w.queue.ClaimDue(w.now(), w.batchSize, w.claimGrace)
	if err != nil {
		w.logger.Error("claim scan failed", "error", err)
		return
	}
	if reclaimed > 0 {
		w.logger.Warn("reclaimed abandoned queue entries", "count", reclaimed)
	}

	if w.metrics != nil {
		w.metrics.ClaimsTotal.Add(float64(len(entries)))
		w.metrics.ReclaimedTotal.Add(float64(reclaimed))
	}

	for i := range entries {
		select {
		case <-w.ctx.Done():
			return
		default:
		}
		w.process(&entries[i])
	}

	if w.metrics != nil {
		w.metrics.TickDurationSeconds.Observe(time.Since(start).Seconds())
		if pending, err := w.queue.CountPending(); err == nil {
			w.metrics.QueuePending.Set(float64(pending))
		}
	}
}

// process handles one claimed entry through the state machine:
// processing -> pending (repeats left), sent (budget exhausted),
// cancelled (stop condition / orphan) or failed (broken config).
func (w *Worker) process(entry *models.AutomationQueueEntry) {
	ctx := w.ctx

	rec, err := w.records.GetByID(entry.RecordID)
	if err != nil {
		w.logger.Error("failed to load record; leaving entry claimed", "entry_id", entry.ID, "error", err)
		return
	}
	link, err := w.links.GetByID(entry.TemplateLinkID)
	if err != nil {
		w.logger.Error("failed to load template link; leaving entry claimed", "entry_id", entry.ID, "error", err)
		return
	}

	// Orphaned or deactivated references resolve to cancelled, checked
	// here at claim time because enrollment-time state can go stale.
	if rec == nil || link == nil || !link.IsActive || link.RepeatConfig == nil {
		w.finalize(entry, models.QueueStatusCancelled)
		w.logger.Info("cancelled orphaned queue entry",
			"entry_id", entry.ID, "template_link_id", entry.TemplateLinkID, "record_id", entry.RecordID)
		return
	}

	// Stop condition runs against the record's current data, not the
	// data at enrollment time. A link without one runs its full repeat
	// budget.
	if link.RepeatConfig.StopCondition != nil {
		stop, err := link.RepeatConfig.StopCondition.Evaluate(rec.Data)
		if err != nil {
			w.logger.Error("broken stop condition; retiring entry",
				"entry_id", entry.ID, "template_link_id", link.ID, "error", err)
			w.finalize(entry, models.QueueStatusFailed)
			return
		}
		if stop {
			w.finalize(entry, models.QueueStatusCancelled)
			return
		}
	}

	iteration := entry.RepeatCount + 1
	if _, err := w.dispatcher.Dispatch(ctx, link, rec, link.TriggerType, &iteration); err != nil {
		// No attempt was recorded; leave the entry claimed so it is
		// reclaimed after the grace period instead of losing a slot.
		w.logger.Error("dispatch failed before attempt was recorded", "entry_id", entry.ID, "error", err)
		return
	}

	// A failed send still consumed its repeat slot; total attempts stay
	// bounded by max_repeat.
	if entry.RepeatCount+1 < link.RepeatConfig.MaxRepeat {
		next := w.now().UTC().Add(link.RepeatConfig.Interval())
		if err := w.queue.Advance(entry.ID, next); err != nil {
			w.logger.Error("failed to advance queue entry", "entry_id", entry.ID, "error", err)
		}
	} else {
		w.finalize(entry, models.QueueStatusSent)
	}
}

func (w *Worker) finalize(entry *models.AutomationQueueEntry, status string) {
	if err := w.queue.Finalize(entry.ID, status); err != nil {
		w.logger.Error("failed to finalize queue entry", "entry_id", entry.ID, "error", err)
		return
	}
	if w.metrics != nil {
		w.metrics.FinalizedTotal.WithLabelValues(status).Inc()
	}
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pjk0007/salesflow-sub000/internal/api"
	"github.com/pjk0007/salesflow-sub000/internal/config"
	"github.com/pjk0007/salesflow-sub000/internal/db"
	"github.com/pjk0007/salesflow-sub000/internal/dispatch"
	"github.com/pjk0007/salesflow-sub000/internal/metrics"
	"github.com/pjk0007/salesflow-sub000/internal/repository"
	"github.com/pjk0007/salesflow-sub000/internal/sender"
	"github.com/pjk0007/salesflow-sub000/internal/trigger"
	"github.com/pjk0007/salesflow-sub000/internal/worker"
)

// Server wires the application together: database, repositories, the
// configured sender, trigger engine, dispatch worker and the HTTP API.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *db.DB
	api    *api.Server
	worker *worker.Worker
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	records := repository.NewRecordRepository(database.DB)
	links := repository.NewTemplateLinkRepository(database.DB)
	queue := repository.NewQueueRepository(database.DB)
	sendLog := repository.NewSendLogRepository(database.DB)

	snd, err := sender.FromConfig(&cfg.Sender, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	m := metrics.New()
	dispatcher := dispatch.New(sendLog, snd, m, logger)
	engine := trigger.NewEngine(links, queue, dispatcher, m, logger)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     database,
	}

	s.api = api.NewServer(&cfg.Server, api.Deps{
		Engine:  engine,
		Records: records,
		Links:   links,
		Queue:   queue,
		SendLog: sendLog,
		Metrics: m,
	}, logger)

	if cfg.Worker.Enabled {
		s.worker = worker.New(queue, records, links, dispatcher, m, logger, worker.Config{
			PollInterval: cfg.Worker.PollInterval.Std(),
			BatchSize:    cfg.Worker.BatchSize,
			ClaimGrace:   cfg.Worker.ClaimGrace.Std(),
		})
	}

	return s, nil
}

// Run starts the worker and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func (s *Server) Run(ctx context.Context) error {
	if s.worker != nil {
		s.worker.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.api.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if s.worker != nil {
			s.worker.Stop()
		}
		s.db.Close()
		return err
	case <-ctx.Done():
		if s.worker != nil {
			s.worker.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.api.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
		s.db.Close()
		return nil
	}
}

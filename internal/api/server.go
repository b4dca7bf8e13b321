package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pjk0007/salesflow-sub000/internal/config"
	"github.com/pjk0007/salesflow-sub000/internal/metrics"
	"github.com/pjk0007/salesflow-sub000/internal/repository"
	"github.com/pjk0007/salesflow-sub000/internal/trigger"
)

// Server is the HTTP surface of the CRM core: record mutations (which
// run the trigger engine), template link management, queue visibility
// and the send log. Presentation lives elsewhere; everything here is a
// thin JSON layer over the scheduler.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        *config.ServerConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics

	engine  *trigger.Engine
	records *repository.RecordRepository
	links   *repository.TemplateLinkRepository
	queue   *repository.QueueRepository
	sendLog *repository.SendLogRepository
}

// Deps bundles the server's collaborators.
type Deps struct {
	Engine  *trigger.Engine
	Records *repository.RecordRepository
	Links   *repository.TemplateLinkRepository
	Queue   *repository.QueueRepository
	SendLog *repository.SendLogRepository
	Metrics *metrics.Metrics
}

// NewServer creates the API server.
func NewServer(cfg *config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		logger:  logger.With("component", "api"),
		metrics: deps.Metrics,
		engine:  deps.Engine,
		records: deps.Records,
		links:   deps.Links,
		queue:   deps.Queue,
		sendLog: deps.SendLog,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// No auth required
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/records", s.handleRecordCreate)
		r.Get("/records", s.handleRecordList)
		r.Get("/records/{id}", s.handleRecordGet)
		r.Put("/records/{id}", s.handleRecordUpdate)
		r.Delete("/records/{id}", s.handleRecordDelete)
		r.Get("/records/{id}/automations", s.handleRecordAutomations)

		r.Delete("/automations/{id}", s.handleAutomationCancel)

		r.Post("/template-links", s.handleLinkCreate)
		r.Get("/template-links", s.handleLinkList)
		r.Get("/template-links/{id}", s.handleLinkGet)
		r.Put("/template-links/{id}", s.handleLinkUpdate)
		r.Delete("/template-links/{id}", s.handleLinkDelete)
		r.Get("/template-links/{id}/stats", s.handleLinkStats)
		r.Post("/template-links/{id}/send", s.handleManualSend)

		r.Get("/send-log", s.handleSendLogList)
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.cfg.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

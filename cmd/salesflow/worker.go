package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pjk0007/salesflow-sub000/internal/config"
	"github.com/pjk0007/salesflow-sub000/internal/db"
	"github.com/pjk0007/salesflow-sub000/internal/dispatch"
	"github.com/pjk0007/salesflow-sub000/internal/metrics"
	"github.com/pjk0007/salesflow-sub000/internal/repository"
	"github.com/pjk0007/salesflow-sub000/internal/sender"
	"github.com/pjk0007/salesflow-sub000/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a standalone dispatch worker (no API server)",
	Long:  `Runs only the dispatch worker against the shared database. Claims are conditional updates, so any number of worker processes can run alongside the API server.`,
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/salesflow/config.yaml", "Path to configuration file")
}

func runWorker(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := setupLogger(&cfg.Logging)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	records := repository.NewRecordRepository(database.DB)
	links := repository.NewTemplateLinkRepository(database.DB)
	queue := repository.NewQueueRepository(database.DB)
	sendLog := repository.NewSendLogRepository(database.DB)

	snd, err := sender.FromConfig(&cfg.Sender, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	dispatcher := dispatch.New(sendLog, snd, m, logger)

	w := worker.New(queue, records, links, dispatcher, m, logger, worker.Config{
		PollInterval: cfg.Worker.PollInterval.Std(),
		BatchSize:    cfg.Worker.BatchSize,
		ClaimGrace:   cfg.Worker.ClaimGrace.Std(),
	})
	w.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	w.Stop()
	return nil
}

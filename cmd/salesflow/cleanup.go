package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pjk0007/salesflow-sub000/internal/config"
	"github.com/pjk0007/salesflow-sub000/internal/db"
	"github.com/pjk0007/salesflow-sub000/internal/repository"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up old data (terminal queue entries, completed send log rows)",
	RunE:  runCleanup,
}

var (
	cleanupQueueDays   int
	cleanupSendLogDays int
	cleanupDryRun      bool
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupQueueDays, "queue-days", 90, "Delete terminal queue entries older than N days")
	cleanupCmd.Flags().IntVar(&cleanupSendLogDays, "send-log-days", 180, "Delete completed send log entries older than N days")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be deleted without actually deleting")
	cleanupCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/salesflow/config.yaml", "Path to configuration file")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if cleanupDryRun {
		fmt.Println("Dry run mode - no data will be deleted")
		fmt.Println()
	}

	queueCutoff := time.Now().AddDate(0, 0, -cleanupQueueDays)
	if err := cleanupQueue(database, queueCutoff); err != nil {
		return fmt.Errorf("failed to cleanup queue entries: %w", err)
	}

	sendLogCutoff := time.Now().AddDate(0, 0, -cleanupSendLogDays)
	if err := cleanupSendLog(database, sendLogCutoff); err != nil {
		return fmt.Errorf("failed to cleanup send log: %w", err)
	}

	if !cleanupDryRun {
		fmt.Println("\nCleanup completed")
	}
	return nil
}

func cleanupQueue(database *db.DB, cutoff time.Time) error {
	var count int
	err := database.QueryRow(`
		SELECT COUNT(*) FROM automation_queue
		WHERE status IN ('sent', 'failed', 'cancelled') AND updated_at < ?`,
		cutoff.UTC(),
	).Scan(&count)
	if err != nil {
		return err
	}

	fmt.Printf("Terminal queue entries older than %d days: %d\n", cleanupQueueDays, count)

	if !cleanupDryRun && count > 0 {
		deleted, err := repository.NewQueueRepository(database.DB).DeleteTerminalBefore(cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("  Deleted: %d\n", deleted)
	}
	return nil
}

func cleanupSendLog(database *db.DB, cutoff time.Time) error {
	var count int
	err := database.QueryRow(`
		SELECT COUNT(*) FROM send_log
		WHERE status IN ('sent', 'failed') AND sent_at < ?`,
		cutoff.UTC(),
	).Scan(&count)
	if err != nil {
		return err
	}

	fmt.Printf("Completed send log entries older than %d days: %d\n", cleanupSendLogDays, count)

	if !cleanupDryRun && count > 0 {
		deleted, err := repository.NewSendLogRepository(database.DB).DeleteCompletedBefore(cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("  Deleted: %d\n", deleted)
	}
	return nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"GemFarm/internal/custody"
	"GemFarm/internal/farm"
	"GemFarm/internal/notifier"
	"GemFarm/internal/recorder"
	"GemFarm/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the snapshot scheduler and operator bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// openRecorder falls back to a no-op recorder when SQLite is unavailable.
func openRecorder(path string) recorder.Recorder {
	if path == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(path, logger)
	if err != nil {
		logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		return recorder.NewNoopRecorder()
	}
	return sr
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	logger.Info("farmd starting", zap.String("state", cfg.State.File))

	rec := openRecorder(cfg.Database.SQLitePath)
	defer rec.Close()

	// The daemon never moves funds or gems, so custody is mirrored in memory from
	// the state file rather than opened for writing alongside the CLI.
	eng, err := farm.NewEngine(farm.Options{
		StateFile: cfg.State.File,
		Bank:      custody.NewMemoryBank(),
		Recorder:  rec,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	logger.Info("state loaded", zap.Int("farms", len(eng.Farms())))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		tn     *notifier.TelegramNotifier
		sender scheduler.Sender
	)
	if cfg.NotificationsEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		sender = tn
	}

	sched := scheduler.NewScheduler(ctx, eng, sender, rec, cfg.Schedule.SnapshotParallelism, logger)
	if err := sched.RegisterAll(cfg.Schedule.SnapshotCron, cfg.Schedule.ReportCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("telegram polling started")
	}

	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info("RUN_ON_START enabled, taking snapshots now")
		go func() {
			if _, err := sched.RunSnapshotNow(); err != nil {
				logger.Error("startup snapshot failed", zap.Error(err))
			}
		}()
	}

	logger.Info("farmd is running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received, stopping")
	case <-ctx.Done():
	}
	cancel()
	logger.Info("farmd stopped")
	return nil
}

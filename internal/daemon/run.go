package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.olrik.dev/keepalive/internal/core"
	"go.olrik.dev/keepalive/internal/db"
)

// RunBootstrap handles the launch the service performs: it starts the
// detached watcher and returns.
func RunBootstrap(cfg *core.Configuration, args LaunchArgs, logger *slog.Logger) error {
	tf := NewTokenFile(cfg.TokenFilePath())
	pid, err := Bootstrap(args, BootstrapOptions{TokenFile: tf, Logger: logger})
	if err != nil {
		return err
	}
	journalEvent(cfg, logger, "bootstrap", fmt.Sprintf("watcher pid %d for %s token %d", pid, args.SocketName, args.Token))
	return nil
}

// RunWatcher is the detached watcher process. It returns once the service
// has been relaunched, the watcher was superseded, or ctx ends.
func RunWatcher(ctx context.Context, cfg *core.Configuration, args LaunchArgs, logger *slog.Logger) error {
	var journal Journal
	database, err := db.Open(cfg.JournalPath())
	if err != nil {
		logger.Warn("Journal unavailable", "error", err)
	} else {
		defer database.Close()
		journal = database
	}

	suspend := NewHostSuspend(SuspendGrace)
	WatchLogind(ctx, suspend, logger)

	w := NewWatcher(WatcherOptions{
		Args:      args,
		SocketDir: cfg.SocketDir,
		TokenFile: NewTokenFile(cfg.TokenFilePath()),
		Suspend:   suspend,
		Journal:   journal,
		Logger:    logger,
	})

	logger.Info("Watcher running", "pid", os.Getpid(), "heartbeat", args.Heartbeat)
	outcome, err := w.Run(ctx)
	logger.Info("Watcher finished", "outcome", outcome, "error", err)
	return err
}

func journalEvent(cfg *core.Configuration, logger *slog.Logger, eventType, details string) {
	database, err := db.Open(cfg.JournalPath())
	if err != nil {
		logger.Debug("Journal unavailable", "error", err)
		return
	}
	defer database.Close()
	if err := database.LogDaemonEvent(eventType, details); err != nil {
		logger.Debug("Failed to journal daemon event", "event", eventType, "error", err)
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go.olrik.dev/keepalive/internal/core"
	"go.olrik.dev/keepalive/internal/daemon"
)

// NewDaemonCommand is what the installed binary runs when the service
// launches it. Arguments: socket name, token, relaunch directive, heartbeat.
func NewDaemonCommand() *cobra.Command {
	var watch bool

	daemonCmd := &cobra.Command{
		Use:    "daemon <socket-name> <token> <directive> <heartbeat-seconds>",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			launchArgs, err := daemon.ParseLaunchArgs(args)
			if err != nil {
				return err
			}
			cfg := core.Config

			if !watch {
				return daemon.RunBootstrap(cfg, launchArgs, core.SetupLogging(cfg.Verbose, os.Stderr))
			}

			// Detached: nobody reads stderr any more
			if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
				return fmt.Errorf("failed to create state directory: %w", err)
			}
			logFile, err := os.OpenFile(cfg.DaemonLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
			if err != nil {
				return fmt.Errorf("failed to open daemon log: %w", err)
			}
			defer logFile.Close()
			logger := core.SetupLogging(cfg.Verbose, logFile)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return daemon.RunWatcher(ctx, cfg, launchArgs, logger)
		},
	}
	daemonCmd.Flags().BoolVar(&watch, "watch", false, "run the detached watcher")

	return daemonCmd
}

package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go.olrik.dev/keepalive/internal/core"
	"go.olrik.dev/keepalive/internal/platform"
	"go.olrik.dev/keepalive/internal/service"
)

func NewServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the service side of the watchdog",
		Long:  `Run the rendezvous server and daemon launcher until SIGINT or SIGTERM`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			host := service.NewHost(core.Config, platform.Detect(logger), logger)
			if err := host.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("Received shutdown signal")
			host.Stop()
			return nil
		},
	}

	return serveCmd
}

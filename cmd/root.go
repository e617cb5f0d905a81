package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/keepalive/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	rootCmd := &cobra.Command{
		Use:          core.ExecutableName,
		Short:        "keepalive - mutual-liveness watchdog",
		Long:         `keepalive keeps a service and a companion daemon alive by having each revive the other`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			if verbose > cfg.Verbose {
				cfg.Verbose = verbose
			}
			core.Config = cfg
			core.SetupLogging(cfg.Verbose, os.Stderr)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", core.DefaultConfigPath(), "config path")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewServeCommand(),
		NewDaemonCommand(),
		NewStatusCommand(),
		NewEventsCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}

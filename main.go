package main

import (
	"fmt"
	"os"

	"go.olrik.dev/keepalive/cmd"
	"go.olrik.dev/keepalive/internal/core"
)

func main() {
	// Launched by the service as the daemon: the positional arguments belong
	// to the hidden daemon command. "--" keeps a negative token from being
	// read as a flag.
	if os.Getenv(core.DaemonAliasEnv) != "" {
		os.Args = append([]string{os.Args[0], "daemon", "--"}, os.Args[1:]...)
	}

	// If no command specified, default to status
	if len(os.Args) == 1 {
		os.Args = []string{os.Args[0], "status"}
	}

	root := cmd.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

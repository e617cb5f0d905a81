package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"go.olrik.dev/keepalive/internal/core"
)

// BootstrapOptions configures Bootstrap
type BootstrapOptions struct {
	// Executable is re-run as the watcher; empty means this binary
	Executable string
	TokenFile  *TokenFile
	Logger     *slog.Logger
}

// Bootstrap starts a detached watcher for args and records it as the
// current one. It returns as soon as the watcher is running, which is what
// lets the service's launch attempt complete.
func Bootstrap(args LaunchArgs, opts BootstrapOptions) (int, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	exe := opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return 0, fmt.Errorf("failed to resolve executable: %w", err)
		}
	}

	cmdArgs := append([]string{"daemon", "--watch", "--"}, args.Strings()...)
	cmd := exec.Command(exe, cmdArgs...)
	cmd.Env = watcherEnv(os.Environ())
	cmd.Dir = "/"
	// New session: the watcher must outlive both us and the service
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start watcher: %w", err)
	}
	pid := cmd.Process.Pid

	if opts.TokenFile != nil {
		if err := opts.TokenFile.Record(TokenRecord{Token: args.Token, PID: pid}); err != nil {
			// Without a record the watcher would consider itself superseded
			cmd.Process.Kill()
			cmd.Wait()
			return 0, err
		}
	}

	if err := cmd.Process.Release(); err != nil {
		logger.Debug("Failed to release watcher process", "pid", pid, "error", err)
	}

	logger.Info("Watcher started", "pid", pid, "socket", args.SocketName, "token", int(args.Token))
	return pid, nil
}

// watcherEnv drops the alias variable so the watcher's own command line is
// parsed normally.
func watcherEnv(environ []string) []string {
	env := make([]string, 0, len(environ))
	for _, kv := range environ {
		if strings.HasPrefix(kv, core.DaemonAliasEnv+"=") {
			continue
		}
		env = append(env, kv)
	}
	return env
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"

	"go.olrik.dev/keepalive/internal/watchdog"
)

// Outcome is how a watcher ended
type Outcome string

const (
	OutcomeRelaunched Outcome = "relaunched"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeCancelled  Outcome = "cancelled"
)

// Journal is the part of the database the watcher writes to
type Journal interface {
	LogDaemonEvent(eventType, details string) error
}

// Relauncher runs the relaunch directive
type Relauncher func(ctx context.Context, directive string) error

// DialFunc connects to the rendezvous address
type DialFunc func(ctx context.Context, address string) (net.Conn, error)

// WatcherOptions configures a Watcher. Args is required; zero values
// elsewhere select defaults.
type WatcherOptions struct {
	Args       LaunchArgs
	SocketDir  string
	TokenFile  *TokenFile
	Suspend    *HostSuspend
	Journal    Journal
	Checker    ProcessChecker
	Relauncher Relauncher
	Dial       DialFunc
	Logger     *slog.Logger
	// PID identifies this watcher in the token file
	PID int
	// DialAttempts bounds how often the rendezvous is tried before the
	// service is declared unreachable
	DialAttempts int
}

// Watcher connects to the service and revives it once it is gone.
type Watcher struct {
	args         LaunchArgs
	address      string
	tokenFile    *TokenFile
	suspend      *HostSuspend
	journal      Journal
	checker      ProcessChecker
	relaunch     Relauncher
	dial         DialFunc
	logger       *slog.Logger
	pid          int
	dialAttempts int
}

func NewWatcher(opts WatcherOptions) *Watcher {
	w := &Watcher{
		args:         opts.Args,
		address:      watchdog.Address(opts.Args.SocketName, opts.SocketDir),
		tokenFile:    opts.TokenFile,
		suspend:      opts.Suspend,
		journal:      opts.Journal,
		checker:      opts.Checker,
		relaunch:     opts.Relauncher,
		dial:         opts.Dial,
		logger:       opts.Logger,
		pid:          opts.PID,
		dialAttempts: opts.DialAttempts,
	}
	if w.relaunch == nil {
		w.relaunch = ShellRelauncher(30 * time.Second)
	}
	if w.dial == nil {
		w.dial = func(ctx context.Context, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", address)
		}
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.pid == 0 {
		w.pid = os.Getpid()
	}
	if w.dialAttempts <= 0 {
		w.dialAttempts = 3
	}
	w.logger = w.logger.With("socket", w.args.SocketName, "token", int(w.args.Token))
	return w
}

// Run blocks until the service needs reviving, another watcher takes over,
// or ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) (Outcome, error) {
	conn, err := w.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled, nil
		}
		if w.superseded() {
			return OutcomeSuperseded, nil
		}
		return w.revive(ctx, fmt.Sprintf("service unreachable: %v", err))
	}
	defer conn.Close()
	w.record("connected", fmt.Sprintf("connected to %s as pid %d", w.args.SocketName, w.pid))

	monitor, err := NewServiceMonitor(conn, w.checker, w.logger)
	if err != nil {
		w.logger.Warn("Service process checks disabled, relying on the socket alone", "error", err)
	}

	closed := make(chan error, 1)
	go func() {
		// The service never writes; any return means the connection ended
		_, err := io.Copy(io.Discard, conn)
		closed <- err
	}()

	ticker := time.NewTicker(w.args.Heartbeat)
	defer ticker.Stop()
	holding := false

	for {
		select {
		case <-ctx.Done():
			return OutcomeCancelled, nil

		case readErr := <-closed:
			if w.superseded() {
				return OutcomeSuperseded, nil
			}
			reason := "connection closed by service"
			if readErr != nil {
				reason = fmt.Sprintf("connection lost: %v", readErr)
			}
			return w.revive(ctx, reason)

		case <-ticker.C:
			if w.superseded() {
				return OutcomeSuperseded, nil
			}
			if held, remaining := w.suspend.Hold(time.Now()); held {
				if remaining == 0 {
					w.logger.Debug("Heartbeat held, host asleep")
				} else {
					w.logger.Debug("Heartbeat held, host resuming", "resume_in", remaining.Round(time.Second))
				}
				holding = true
				continue
			}
			if holding {
				w.logger.Info("Liveness checks resumed after host suspend")
				holding = false
			}
			if monitor == nil {
				continue
			}
			if err := monitor.Check(); err != nil {
				return w.revive(ctx, err.Error())
			}
		}
	}
}

func (w *Watcher) connect(ctx context.Context) (net.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= w.dialAttempts; attempt++ {
		conn, err := w.dial(ctx, w.address)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		w.logger.Debug("Rendezvous dial failed", "attempt", attempt, "error", err)

		if attempt == w.dialAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, lastErr
}

// superseded checks the token file. A superseded watcher exits without
// touching the service: the newer watcher owns it now.
func (w *Watcher) superseded() bool {
	if w.tokenFile == nil {
		return false
	}
	stale, current := w.tokenFile.Superseded(w.pid)
	if stale {
		w.logger.Info("Superseded by a newer watcher, exiting", "current_token", int(current.Token), "current_pid", current.PID)
		w.record("stale_exit", fmt.Sprintf("token %d superseded by token %d (pid %d)", w.args.Token, current.Token, current.PID))
	}
	return stale
}

func (w *Watcher) revive(ctx context.Context, reason string) (Outcome, error) {
	w.logger.Warn("Service is gone, running relaunch directive", "reason", reason, "directive", w.args.Directive)
	w.record("relaunch", fmt.Sprintf("%s: %s", reason, w.args.Directive))

	if err := w.relaunch(ctx, w.args.Directive); err != nil {
		w.logger.Error("Relaunch directive failed", "error", err)
		w.record("relaunch_failed", err.Error())
		return OutcomeRelaunched, fmt.Errorf("relaunch failed: %w", err)
	}
	return OutcomeRelaunched, nil
}

func (w *Watcher) record(eventType, details string) {
	if w.journal == nil {
		return
	}
	if err := w.journal.LogDaemonEvent(eventType, details); err != nil {
		w.logger.Debug("Failed to journal daemon event", "event", eventType, "error", err)
	}
}

// ShellRelauncher runs the directive with /bin/sh -c, bounded by timeout.
func ShellRelauncher(timeout time.Duration) Relauncher {
	return func(ctx context.Context, directive string) error {
		if directive == "" {
			return errors.New("empty relaunch directive")
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", directive)
		cmd.WaitDelay = 2 * time.Second
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%q: %w (output: %s)", directive, err, output)
		}
		return nil
	}
}

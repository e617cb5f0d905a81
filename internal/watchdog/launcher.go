package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

const (
	// DefaultRetryInterval spaces failed launch attempts.
	DefaultRetryInterval = time.Second
	// DefaultHeartbeatSeconds is handed to the daemon as its polling period.
	DefaultHeartbeatSeconds = 5
)

// LauncherOptions configures a Launcher. Zero values select defaults.
type LauncherOptions struct {
	Installer        Installer
	Spawner          Spawner
	Directive        *DirectiveBuilder
	HeartbeatSeconds int
	RetryInterval    time.Duration
	Observer         Observer
	Logger           *slog.Logger
	Clock            func() time.Time
}

// Launcher keeps the daemon process alive. The server posts Ensure whenever
// it starts waiting for a connection and Cancel once one is accepted; a
// failed attempt is retried after RetryInterval until cancelled.
type Launcher struct {
	installer Installer
	spawner   Spawner
	directive *DirectiveBuilder
	heartbeat int
	retry     time.Duration
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
	slot      *Slot[Request]
}

func NewLauncher(opts LauncherOptions) *Launcher {
	l := &Launcher{
		installer: opts.Installer,
		spawner:   opts.Spawner,
		directive: opts.Directive,
		heartbeat: opts.HeartbeatSeconds,
		retry:     opts.RetryInterval,
		observer:  opts.Observer,
		logger:    opts.Logger,
		now:       opts.Clock,
		slot:      NewSlot[Request](),
	}
	if l.spawner == nil {
		l.spawner = ExecSpawner{}
	}
	if l.directive == nil {
		l.directive = NewDirectiveBuilder(RelaunchTemplate{Command: "%s"}, false)
	}
	if l.heartbeat <= 0 {
		l.heartbeat = DefaultHeartbeatSeconds
	}
	if l.retry <= 0 {
		l.retry = DefaultRetryInterval
	}
	if l.observer == nil {
		l.observer = nopObserver{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Ensure replaces any pending attempt with an immediate one for req.
func (l *Launcher) Ensure(req Request) {
	l.slot.Schedule(req, 0)
}

// Cancel drops any pending attempt. An attempt already running finishes
// but will not be retried.
func (l *Launcher) Cancel() {
	l.slot.Cancel()
}

// Pending reports whether an attempt is queued.
func (l *Launcher) Pending() bool {
	return l.slot.Pending()
}

// Run executes attempts as they come due until ctx is cancelled.
func (l *Launcher) Run(ctx context.Context) {
	lowestPriority(l.logger, "keepalive-launcher")

	for {
		select {
		case <-ctx.Done():
			l.slot.Cancel()
			return
		case f := <-l.slot.C():
			if err := l.EnsureRunning(ctx, f.Value); err != nil {
				if l.slot.Reschedule(f.Gen, l.retry) {
					l.logger.Debug("Daemon launch rescheduled", "in", l.retry)
				}
			}
		}
	}
}

// EnsureRunning makes one attempt: install the executable, build the
// directive, run the bootstrapper and wait for it. A nil error means the
// bootstrapper exited zero.
func (l *Launcher) EnsureRunning(ctx context.Context, req Request) error {
	err := l.launch(ctx, req)

	kind := EventLaunchOK
	if err != nil {
		kind = EventLaunchFailed
		l.logger.Error("Failed to start keepalive daemon", "socket", req.SocketName, "token", req.Token, "error", err)
	} else {
		l.logger.Info("Keepalive daemon started", "socket", req.SocketName, "token", req.Token)
	}

	l.observer.Observe(Event{
		Kind:       kind,
		SocketName: req.SocketName,
		Token:      req.Token,
		Err:        err,
		Time:       l.now(),
	})
	return err
}

func (l *Launcher) launch(ctx context.Context, req Request) error {
	if l.installer == nil {
		return fmt.Errorf("no daemon installer configured")
	}

	path, err := l.installer.Install()
	if err != nil {
		return fmt.Errorf("failed to install daemon: %w", err)
	}

	args := []string{
		req.SocketName,
		strconv.Itoa(int(req.Token)),
		l.directive.Build(),
		strconv.Itoa(l.heartbeat),
	}
	return l.spawner.Spawn(ctx, path, args)
}

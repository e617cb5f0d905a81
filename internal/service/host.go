// Package service hosts the watchdog inside a long-running process: it owns
// the single-instance lock, the journal, the metrics endpoint and the two
// watchdog loops.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.olrik.dev/keepalive/internal/core"
	"go.olrik.dev/keepalive/internal/db"
	"go.olrik.dev/keepalive/internal/platform"
	"go.olrik.dev/keepalive/internal/watchdog"
)

// Service is the process entry point as the host sees it.
type Service interface {
	Start(ctx context.Context) error
	Stop()
}

// Host runs the keepalive server and launcher for one configuration.
type Host struct {
	cfg    *core.Configuration
	caps   platform.Capabilities
	logger *slog.Logger

	lock      *flock.Flock
	database  *db.DB
	journal   *journalObserver
	directive *watchdog.DirectiveBuilder
	metrics   *http.Server
	workload  *exec.Cmd

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

var _ Service = (*Host)(nil)

func NewHost(cfg *core.Configuration, caps platform.Capabilities, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		cfg:    cfg,
		caps:   caps,
		logger: logger,
		lock:   flock.New(cfg.LockPath()),
	}
}

// Start acquires the instance lock and launches the watchdog loops. It
// returns once everything is running.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return errors.New("keepalive service already started")
	}

	if err := os.MkdirAll(h.cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	ok, err := h.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another keepalive service is already running (lock %s)", h.cfg.LockPath())
	}

	database, err := db.Open(h.cfg.JournalPath())
	if err != nil {
		// The journal is diagnostics only, the watchdog runs without it
		h.logger.Error("Failed to open journal", "error", err, "path", h.cfg.JournalPath())
	} else {
		h.database = database
		if err := database.LogDaemonEvent("start", fmt.Sprintf("service started - version: %s, PID: %d", core.FormatVersion(core.Version), os.Getpid())); err != nil {
			h.logger.Error("Failed to log service start", "error", err)
		}
	}

	source := h.cfg.Launcher.Source
	if source == "" {
		if source, err = os.Executable(); err != nil {
			h.releaseLocked()
			return fmt.Errorf("failed to resolve own executable: %w", err)
		}
	}

	h.directive = watchdog.NewDirectiveBuilder(relaunchTemplate(h.cfg), h.caps.UserScope)

	observers := watchdog.MultiObserver{watchdog.MetricsObserver{}}
	if h.database != nil {
		h.journal = newJournalObserver(h.database, h.logger)
		observers = append(observers, h.journal)
	}

	launcher := watchdog.NewLauncher(watchdog.LauncherOptions{
		Installer: watchdog.FileInstaller{Source: source, Dest: h.cfg.ExecutablePath()},
		Spawner: watchdog.ExecSpawner{Env: []string{
			core.DaemonAliasEnv + "=1",
			core.ServicePIDEnv + "=" + strconv.Itoa(os.Getpid()),
			core.ConfigPathEnv + "=" + h.cfg.ConfigPath,
		}},
		Directive:        h.directive,
		HeartbeatSeconds: h.cfg.Launcher.HeartbeatSeconds,
		RetryInterval:    h.cfg.RetryIntervalDuration(),
		Observer:         observers,
		Logger:           h.logger,
	})

	server := watchdog.NewServer(watchdog.ServerOptions{
		Namespace:  h.cfg.Namespace,
		SocketDir:  h.cfg.SocketDir,
		Observer:   observers,
		Logger:     h.logger,
		RetryPause: 100 * time.Millisecond,
	}, launcher)

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		launcher.Run(runCtx)
	}()
	go func() {
		defer h.wg.Done()
		server.Run(runCtx)
	}()

	if h.cfg.MetricsAddress != "" {
		h.startMetrics(h.cfg.MetricsAddress)
	}

	if len(h.cfg.Service.Command) > 0 {
		h.startWorkload(runCtx)
	}

	if h.cfg.ConfigPath != "" {
		watcher := NewConfigWatcher(h.cfg.ConfigPath, h.applyConfig, h.logger)
		if err := watcher.Start(runCtx); err != nil {
			h.logger.Warn("Config hot reload disabled", "error", err)
		}
	}

	h.logger.Info("Keepalive service started",
		"namespace", h.cfg.Namespace,
		"state_dir", h.cfg.StateDir,
		"user_scope", h.caps.UserScope)
	return nil
}

// Stop cancels the watchdog loops, waits for them and releases resources.
func (h *Host) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel == nil {
		return
	}
	h.cancel()
	h.wg.Wait()
	h.cancel = nil

	if h.journal != nil {
		h.journal.Close()
		h.journal = nil
	}

	if h.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		h.metrics.Shutdown(shutdownCtx)
		cancel()
		h.metrics = nil
	}

	if h.database != nil {
		h.database.LogDaemonEvent("stop", fmt.Sprintf("service stopped - PID: %d", os.Getpid()))
	}
	h.releaseLocked()
	h.logger.Info("Keepalive service stopped")
}

func (h *Host) releaseLocked() {
	if h.database != nil {
		h.database.Close()
		h.database = nil
	}
	if err := h.lock.Unlock(); err != nil {
		h.logger.Warn("Failed to release lock", "error", err)
	}
}

// applyConfig takes the parts of a reloaded config that can change at
// runtime. Only the relaunch directive qualifies; everything else needs a
// restart.
func (h *Host) applyConfig(cfg *core.Configuration) {
	if h.directive == nil {
		return
	}
	h.directive.Update(relaunchTemplate(cfg))
	h.logger.Info("Relaunch directive updated", "command", cfg.Relaunch.Command)
}

func (h *Host) startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	h.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func(srv *http.Server) {
		h.logger.Info("Metrics endpoint listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Metrics endpoint failed", "error", err)
		}
	}(h.metrics)
}

// startWorkload runs the configured command for as long as the service runs.
// The workload is not restarted: if it dies the service keeps supervising
// the daemon, and reviving the whole service is the daemon's job.
func (h *Host) startWorkload(ctx context.Context) {
	cmd := exec.Command(h.cfg.Service.Command[0], h.cfg.Service.Command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		h.logger.Error("Failed to start workload", "command", h.cfg.Service.Command, "error", err)
		return
	}
	h.workload = cmd
	h.logger.Info("Workload started", "command", h.cfg.Service.Command, "pid", cmd.Process.Pid)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()

		select {
		case err := <-done:
			h.logger.Warn("Workload exited", "pid", cmd.Process.Pid, "error", err)
		case <-ctx.Done():
			cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				cmd.Process.Kill()
				<-done
			}
		}
	}()
}

func relaunchTemplate(cfg *core.Configuration) watchdog.RelaunchTemplate {
	return watchdog.RelaunchTemplate{
		Command:       cfg.Relaunch.Command,
		UserQualifier: cfg.Relaunch.UserQualifier,
	}
}

// journalBacklog bounds the events queued for the journal writer
const journalBacklog = 64

// journalObserver mirrors watchdog events into the sqlite journal. Writes
// happen on the observer's own goroutine; when the backlog is full the
// event is dropped.
type journalObserver struct {
	db     *db.DB
	logger *slog.Logger
	events chan watchdog.Event
	done   chan struct{}
}

func newJournalObserver(database *db.DB, logger *slog.Logger) *journalObserver {
	j := &journalObserver{
		db:     database,
		logger: logger,
		events: make(chan watchdog.Event, journalBacklog),
		done:   make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *journalObserver) Observe(e watchdog.Event) {
	select {
	case j.events <- e:
	default:
		j.logger.Debug("Journal backlog full, dropping event", "kind", e.Kind, "socket", e.SocketName)
	}
}

// Close flushes queued events and stops the writer. Observe must not be
// called afterwards.
func (j *journalObserver) Close() {
	close(j.events)
	<-j.done
}

func (j *journalObserver) run() {
	defer close(j.done)
	for e := range j.events {
		j.write(e)
	}
}

func (j *journalObserver) write(e watchdog.Event) {
	var err error
	switch e.Kind {
	case watchdog.EventLaunchOK:
		err = j.db.LogLaunchAttempt(e.SocketName, int(e.Token), "ok", "")
	case watchdog.EventLaunchFailed:
		err = j.db.LogLaunchAttempt(e.SocketName, int(e.Token), "failed", e.Details())
	default:
		err = j.db.LogCycleEvent(e.SocketName, int(e.Token), string(e.Kind), e.Details())
	}
	if err != nil {
		j.logger.Debug("Failed to journal watchdog event", "kind", e.Kind, "error", err)
	}
}

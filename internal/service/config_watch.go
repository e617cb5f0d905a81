package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"go.olrik.dev/keepalive/internal/core"
)

// ConfigWatcher reloads config.hcl after it changes on disk and hands the
// result to onReload. Invalid files are logged and skipped.
type ConfigWatcher struct {
	path     string
	debounce time.Duration
	onReload func(*core.Configuration)
	logger   *slog.Logger
}

func NewConfigWatcher(configPath string, onReload func(*core.Configuration), logger *slog.Logger) *ConfigWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigWatcher{
		path:     filepath.Join(configPath, core.ConfigFileName),
		debounce: 500 * time.Millisecond,
		onReload: onReload,
		logger:   logger,
	}
}

// Start watches until ctx is cancelled. The directory is watched rather
// than the file, so editors that save by rename keep being noticed.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(cw.path)); err != nil {
		watcher.Close()
		return err
	}

	var reloadTimer *time.Timer
	var reloadMutex sync.Mutex

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				reloadMutex.Lock()
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadMutex.Unlock()
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != cw.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				cw.logger.Debug("Config file change detected", "event", event.Op.String(), "file", event.Name)

				reloadMutex.Lock()
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(cw.debounce, cw.reload)
				reloadMutex.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				cw.logger.Error("Config watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (cw *ConfigWatcher) reload() {
	if !core.ConfigExists(cw.path) {
		return
	}
	cfg, err := core.LoadConfig(cw.path)
	if err != nil {
		cw.logger.Error("Failed to reload configuration, keeping the previous one", "error", err)
		return
	}
	cw.logger.Info("Configuration reloaded", "file", cw.path)
	cw.onReload(cfg)
}

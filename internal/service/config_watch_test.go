package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.olrik.dev/keepalive/internal/core"
)

func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	logger := quietLogger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, core.ConfigFileName)

	if err := os.WriteFile(path, []byte(`namespace = "first"`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *core.Configuration, 4)
	cw := NewConfigWatcher(dir, func(cfg *core.Configuration) { reloaded <- cfg }, logger)
	cw.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := cw.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	content := "namespace = \"second\"\nrelaunch {\n  command = \"rc-service %s keepalive restart\"\n}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Namespace != "second" {
			t.Errorf("namespace = %q, want second", cfg.Namespace)
		}
		if cfg.Relaunch.Command != "rc-service %s keepalive restart" {
			t.Errorf("relaunch command = %q", cfg.Relaunch.Command)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestConfigWatcherSkipsInvalidConfig(t *testing.T) {
	logger := quietLogger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, core.ConfigFileName)

	reloaded := make(chan *core.Configuration, 4)
	cw := NewConfigWatcher(dir, func(cfg *core.Configuration) { reloaded <- cfg }, logger)
	cw.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := cw.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// No placeholder in the relaunch command
	bad := "relaunch {\n  command = \"systemctl restart keepalive\"\n}\n"
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		t.Fatalf("invalid config was applied: %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestConfigWatcherIgnoresOtherFiles(t *testing.T) {
	logger := quietLogger(t)
	dir := t.TempDir()

	reloaded := make(chan *core.Configuration, 4)
	cw := NewConfigWatcher(dir, func(cfg *core.Configuration) { reloaded <- cfg }, logger)
	cw.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := cw.Start(ctx); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(300 * time.Millisecond):
	}
}

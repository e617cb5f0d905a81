package db

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_OpenAndClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close database: %v", err)
	}
}

func TestDB_CycleEvents(t *testing.T) {
	db := openTestDB(t)

	steps := []struct {
		token int
		event string
	}{
		{-1, "listening"},
		{-1, "accepted"},
		{-1, "disconnected"},
		{4, "token_advanced"},
	}
	for _, s := range steps {
		if err := db.LogCycleEvent("ns.keepalive.1", s.token, s.event, ""); err != nil {
			t.Fatalf("Failed to log cycle event: %v", err)
		}
	}

	events, err := db.GetRecentCycleEvents(10)
	if err != nil {
		t.Fatalf("Failed to query cycle events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(events))
	}
	// Newest first
	if events[0].EventType != "token_advanced" || events[0].Token != 4 {
		t.Errorf("Newest event = %+v", events[0])
	}
	if events[3].EventType != "listening" || events[3].SocketName != "ns.keepalive.1" {
		t.Errorf("Oldest event = %+v", events[3])
	}

	limited, err := db.GetRecentCycleEvents(2)
	if err != nil {
		t.Fatalf("Failed to query cycle events: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected limit to apply, got %d events", len(limited))
	}
}

func TestDB_LaunchAttempts(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 3; i++ {
		if err := db.LogLaunchAttempt("n", -1, "failed", "exit status 1"); err != nil {
			t.Fatalf("Failed to log launch attempt: %v", err)
		}
	}
	if err := db.LogLaunchAttempt("n", -1, "ok", ""); err != nil {
		t.Fatalf("Failed to log launch attempt: %v", err)
	}

	counts, err := db.GetLaunchCounts()
	if err != nil {
		t.Fatalf("Failed to count launches: %v", err)
	}
	if counts["failed"] != 3 || counts["ok"] != 1 {
		t.Errorf("counts = %v, want failed=3 ok=1", counts)
	}

	attempts, err := db.GetRecentLaunchAttempts(1)
	if err != nil {
		t.Fatalf("Failed to query launch attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Outcome != "ok" {
		t.Errorf("latest attempt = %+v", attempts)
	}
}

func TestDB_DaemonEvents(t *testing.T) {
	db := openTestDB(t)

	if err := db.LogDaemonEvent("start", "service started"); err != nil {
		t.Fatalf("Failed to log daemon event: %v", err)
	}
	if err := db.LogDaemonEvent("relaunch", "systemctl --user restart keepalive.service"); err != nil {
		t.Fatalf("Failed to log daemon event: %v", err)
	}

	events, err := db.GetRecentDaemonEvents(5)
	if err != nil {
		t.Fatalf("Failed to query daemon events: %v", err)
	}
	if len(events) != 2 || events[0].EventType != "relaunch" {
		t.Errorf("events = %+v", events)
	}
}

func TestDB_SharedBetweenHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")

	service, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer service.Close()

	daemon, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open second handle: %v", err)
	}
	defer daemon.Close()

	if err := daemon.LogDaemonEvent("stale_exit", "token 3 superseded by 9"); err != nil {
		t.Fatalf("Failed to log from second handle: %v", err)
	}

	events, err := service.GetRecentDaemonEvents(1)
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "stale_exit" {
		t.Errorf("events = %+v", events)
	}
}

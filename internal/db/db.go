package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite journal shared by the service and its daemon
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection, so the pragmas below hold for every statement
	conn.SetMaxOpenConns(1)

	// WAL lets the daemon append while the service holds the database open
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=250"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

func (db *DB) initSchema() error {
	schema := `
	-- Rendezvous server cycle
	CREATE TABLE IF NOT EXISTS cycle_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		socket_name TEXT NOT NULL,
		token INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Daemon launch attempts
	CREATE TABLE IF NOT EXISTS launch_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		socket_name TEXT NOT NULL,
		token INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Service and daemon process lifecycle
	CREATE TABLE IF NOT EXISTS daemon_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cycle_events_timestamp ON cycle_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_launch_attempts_timestamp ON launch_attempts(timestamp);
	CREATE INDEX IF NOT EXISTS idx_daemon_events_timestamp ON daemon_events(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// execWithRetry retries briefly while another process holds the write lock.
// Best effort: journal writes must never stall a watchdog loop for long.
func (db *DB) execWithRetry(what, query string, args ...any) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(query, args...)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to log %s after %d retries: database locked", what, maxRetries)
}

// CycleEvent is one step of the rendezvous cycle
type CycleEvent struct {
	ID         int64
	SocketName string
	Token      int
	EventType  string
	Details    string
	Timestamp  time.Time
}

// LogCycleEvent records a rendezvous cycle event
func (db *DB) LogCycleEvent(socketName string, token int, eventType, details string) error {
	return db.execWithRetry("cycle event",
		`INSERT INTO cycle_events (socket_name, token, event_type, details, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		socketName, token, eventType, details, time.Now(),
	)
}

// LaunchAttempt is one run of the daemon launcher
type LaunchAttempt struct {
	ID         int64
	SocketName string
	Token      int
	Outcome    string
	Details    string
	Timestamp  time.Time
}

// LogLaunchAttempt records the outcome of a daemon launch
func (db *DB) LogLaunchAttempt(socketName string, token int, outcome, details string) error {
	return db.execWithRetry("launch attempt",
		`INSERT INTO launch_attempts (socket_name, token, outcome, details, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		socketName, token, outcome, details, time.Now(),
	)
}

// DaemonEvent represents a process lifecycle event
type DaemonEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogDaemonEvent logs a process lifecycle event to the database
func (db *DB) LogDaemonEvent(eventType, details string) error {
	return db.execWithRetry("daemon event",
		`INSERT INTO daemon_events (event_type, details, timestamp)
		 VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
}

// GetRecentCycleEvents retrieves recent cycle events, newest first
func (db *DB) GetRecentCycleEvents(limit int) ([]CycleEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, socket_name, token, event_type, COALESCE(details, ''), timestamp
		 FROM cycle_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CycleEvent
	for rows.Next() {
		var e CycleEvent
		if err := rows.Scan(&e.ID, &e.SocketName, &e.Token, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetRecentLaunchAttempts retrieves recent launch attempts, newest first
func (db *DB) GetRecentLaunchAttempts(limit int) ([]LaunchAttempt, error) {
	rows, err := db.conn.Query(
		`SELECT id, socket_name, token, outcome, COALESCE(details, ''), timestamp
		 FROM launch_attempts
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []LaunchAttempt
	for rows.Next() {
		var a LaunchAttempt
		if err := rows.Scan(&a.ID, &a.SocketName, &a.Token, &a.Outcome, &a.Details, &a.Timestamp); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetRecentDaemonEvents retrieves recent lifecycle events, newest first
func (db *DB) GetRecentDaemonEvents(limit int) ([]DaemonEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, COALESCE(details, ''), timestamp
		 FROM daemon_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []DaemonEvent
	for rows.Next() {
		var e DaemonEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLaunchCounts returns launch attempt totals per outcome
func (db *DB) GetLaunchCounts() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT outcome, COUNT(*) FROM launch_attempts GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

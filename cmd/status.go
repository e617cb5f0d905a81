package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"go.olrik.dev/keepalive/internal/core"
	"go.olrik.dev/keepalive/internal/daemon"
	"go.olrik.dev/keepalive/internal/db"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorDim   = "\033[2m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
)

// WatchdogStatus is the state reconstructed from the lock, token file and journal
type WatchdogStatus struct {
	ServiceRunning bool           `json:"service_running"`
	SocketName     string         `json:"socket_name,omitempty"`
	Token          int            `json:"token"`
	LastEvent      string         `json:"last_event,omitempty"`
	LastEventAt    time.Time      `json:"last_event_at,omitzero"`
	WatcherPID     int            `json:"watcher_pid,omitempty"`
	WatcherToken   int            `json:"watcher_token,omitempty"`
	Launches       map[string]int `json:"launches"`
}

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the watchdog state recorded in the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := collectStatus(core.Config)
			if err != nil {
				return err
			}

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				formatStatus(os.Stdout, status)
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}

func collectStatus(cfg *core.Configuration) (WatchdogStatus, error) {
	status := WatchdogStatus{Token: -1, Launches: map[string]int{}}

	// A lock we can take is a lock nobody holds
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err == nil {
		if locked {
			lock.Unlock()
		}
		status.ServiceRunning = !locked
	}

	if rec, err := daemon.NewTokenFile(cfg.TokenFilePath()).Read(); err == nil {
		status.WatcherPID = rec.PID
		status.WatcherToken = int(rec.Token)
	}

	if !core.ConfigExists(cfg.JournalPath()) {
		return status, nil
	}
	database, err := db.Open(cfg.JournalPath())
	if err != nil {
		return status, fmt.Errorf("failed to open journal: %w", err)
	}
	defer database.Close()

	events, err := database.GetRecentCycleEvents(1)
	if err != nil {
		return status, fmt.Errorf("failed to read cycle events: %w", err)
	}
	if len(events) > 0 {
		status.SocketName = events[0].SocketName
		status.Token = events[0].Token
		status.LastEvent = events[0].EventType
		status.LastEventAt = events[0].Timestamp
	}

	if status.Launches, err = database.GetLaunchCounts(); err != nil {
		return status, fmt.Errorf("failed to count launches: %w", err)
	}
	return status, nil
}

func formatStatus(w io.Writer, s WatchdogStatus) {
	if s.ServiceRunning {
		fmt.Fprintf(w, "Service:  %srunning%s\n", colorGreen, colorReset)
	} else {
		fmt.Fprintf(w, "Service:  %snot running%s\n", colorRed, colorReset)
	}

	if s.SocketName != "" {
		fmt.Fprintf(w, "Socket:   %s (token %d)\n", s.SocketName, s.Token)
		fmt.Fprintf(w, "Last:     %s %s(%s ago)%s\n", s.LastEvent, colorDim, time.Since(s.LastEventAt).Round(time.Second), colorReset)
	} else {
		fmt.Fprintln(w, "Socket:   no activity recorded")
	}

	if s.WatcherPID > 0 {
		fmt.Fprintf(w, "Watcher:  PID %d (token %d)\n", s.WatcherPID, s.WatcherToken)
	}

	fmt.Fprintf(w, "Launches: %d ok, %d failed\n", s.Launches["ok"], s.Launches["failed"])
}

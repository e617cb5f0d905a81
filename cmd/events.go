package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go.olrik.dev/keepalive/internal/core"
	"go.olrik.dev/keepalive/internal/db"
)

func NewEventsCommand() *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "List recent journal entries",
		Long:  `List recent rendezvous cycle events, launch attempts or daemon lifecycle events, newest first`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("lines")
			kind, _ := cmd.Flags().GetString("type")

			if !core.ConfigExists(core.Config.JournalPath()) {
				fmt.Fprintln(os.Stderr, "No journal yet")
				return nil
			}
			database, err := db.Open(core.Config.JournalPath())
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer database.Close()

			return printEvents(os.Stdout, database, kind, limit)
		},
	}
	eventsCmd.Flags().IntP("lines", "n", 20, "number of entries to show")
	eventsCmd.Flags().StringP("type", "t", "cycle", "entries to show (cycle/launch/daemon)")

	return eventsCmd
}

func printEvents(w io.Writer, database *db.DB, kind string, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("lines must be positive, got %d", limit)
	}

	switch kind {
	case "cycle":
		events, err := database.GetRecentCycleEvents(limit)
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Fprintf(w, "%s  %-14s %s token=%d%s\n", stamp(e.Timestamp), e.EventType, e.SocketName, e.Token, detailSuffix(e.Details))
		}
	case "launch":
		attempts, err := database.GetRecentLaunchAttempts(limit)
		if err != nil {
			return err
		}
		for _, a := range attempts {
			fmt.Fprintf(w, "%s  %-14s %s token=%d%s\n", stamp(a.Timestamp), a.Outcome, a.SocketName, a.Token, detailSuffix(a.Details))
		}
	case "daemon":
		events, err := database.GetRecentDaemonEvents(limit)
		if err != nil {
			return err
		}
		for _, e := range events {
			fmt.Fprintf(w, "%s  %-14s%s\n", stamp(e.Timestamp), e.EventType, detailSuffix(e.Details))
		}
	default:
		return fmt.Errorf("unknown event type %q (want cycle, launch or daemon)", kind)
	}
	return nil
}

func stamp(t time.Time) string {
	return t.Local().Format(time.DateTime)
}

func detailSuffix(details string) string {
	if details == "" {
		return ""
	}
	return "  " + colorDim + details + colorReset
}

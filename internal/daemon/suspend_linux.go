//go:build linux

package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

const prepareForSleep = "org.freedesktop.login1.Manager.PrepareForSleep"

// WatchLogind feeds logind's PrepareForSleep signal into h until ctx ends.
// Without a system bus h stays awake, which suits hosts that never suspend.
func WatchLogind(ctx context.Context, h *HostSuspend, logger *slog.Logger) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		logger.Debug("No system bus, suspend tracking disabled", "error", err)
		return
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/login1"),
		dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		conn.Close()
		logger.Warn("Failed to subscribe to logind sleep signals", "error", err)
		return
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)

	go func() {
		defer conn.Close()
		defer conn.RemoveSignal(signals)

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				if sig == nil {
					return
				}
				entering, ok := sleepTransition(sig)
				if !ok {
					continue
				}
				if entering {
					h.Suspend()
					logger.Info("Host suspending, liveness checks held")
				} else if h.Resume(time.Now()) {
					logger.Info("Host resumed", "grace", h.grace)
				}
			}
		}
	}()
}

// sleepTransition decodes a PrepareForSleep signal: true when the host is
// about to sleep, false when it has just woken.
func sleepTransition(sig *dbus.Signal) (entering, ok bool) {
	if sig.Name != prepareForSleep || len(sig.Body) < 1 {
		return false, false
	}
	entering, ok = sig.Body[0].(bool)
	return entering, ok
}

// Package platform resolves host capabilities once at startup so the rest of
// keepalive can take them as plain values.
package platform

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/godbus/dbus/v5"
)

// UserScopeEnv overrides the user-scope probe with a boolean.
const UserScopeEnv = "KEEPALIVE_USER_SCOPE"

const systemdBusName = "org.freedesktop.systemd1"

// Capabilities are host features the watchdog adapts to.
type Capabilities struct {
	// UserScope is true when services can be addressed per user, which
	// decides whether the relaunch directive carries its user qualifier.
	UserScope bool
}

// Detect probes the host. It never fails; an unanswerable probe reports the
// capability as missing.
func Detect(logger *slog.Logger) Capabilities {
	if logger == nil {
		logger = slog.Default()
	}

	caps := Capabilities{UserScope: probeUserScope(logger)}
	logger.Info("Host capabilities resolved", "user_scope", caps.UserScope)
	return caps
}

func probeUserScope(logger *slog.Logger) bool {
	if v := os.Getenv(UserScopeEnv); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		logger.Warn("Ignoring invalid capability override", "env", UserScopeEnv, "value", v)
	}

	// A systemd user manager owns its well-known name on the session bus
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		logger.Debug("Session bus unavailable, assuming no user scope", "error", err)
		return false
	}
	defer conn.Close()

	var hasOwner bool
	err = conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, systemdBusName).Store(&hasOwner)
	if err != nil {
		logger.Debug("NameHasOwner call failed, assuming no user scope", "error", err)
		return false
	}
	return hasOwner
}

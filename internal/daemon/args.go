// Package daemon is the far side of the keepalive contract: the process the
// service launches, which connects back to it and revives it when the
// connection or the service process goes away.
package daemon

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.olrik.dev/keepalive/internal/watchdog"
)

// LaunchArgs are the four positional arguments the launcher passes:
// socket name, liveness token, relaunch directive and heartbeat seconds.
type LaunchArgs struct {
	SocketName string
	Token      watchdog.Token
	Directive  string
	Heartbeat  time.Duration
}

func ParseLaunchArgs(args []string) (LaunchArgs, error) {
	if len(args) != 4 {
		return LaunchArgs{}, fmt.Errorf("expected 4 arguments (socket name, token, directive, heartbeat), got %d", len(args))
	}

	var la LaunchArgs
	la.SocketName = args[0]
	if la.SocketName == "" || strings.ContainsAny(la.SocketName, "/\x00") {
		return LaunchArgs{}, fmt.Errorf("invalid socket name %q", args[0])
	}

	token, err := strconv.Atoi(args[1])
	if err != nil {
		return LaunchArgs{}, fmt.Errorf("invalid token %q: %w", args[1], err)
	}
	la.Token = watchdog.Token(token)

	la.Directive = strings.TrimSpace(args[2])
	if la.Directive == "" {
		return LaunchArgs{}, errors.New("relaunch directive is empty")
	}

	seconds, err := strconv.Atoi(args[3])
	if err != nil || seconds <= 0 {
		return LaunchArgs{}, fmt.Errorf("invalid heartbeat %q: must be a positive number of seconds", args[3])
	}
	la.Heartbeat = time.Duration(seconds) * time.Second

	return la, nil
}

// Strings is the inverse of ParseLaunchArgs.
func (la LaunchArgs) Strings() []string {
	return []string{
		la.SocketName,
		strconv.Itoa(int(la.Token)),
		la.Directive,
		strconv.Itoa(int(la.Heartbeat / time.Second)),
	}
}

//go:build !linux

package daemon

import (
	"errors"
	"net"
)

// peerPID is Linux only; elsewhere the service passes its PID in the
// environment.
func peerPID(net.Conn) (int, error) {
	return 0, errors.New("SO_PEERCRED is not supported on this platform")
}

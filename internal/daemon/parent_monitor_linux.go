//go:build linux

package daemon

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// peerPID asks the kernel who is on the other end of a unix socket
// (SO_PEERCRED). The answer is the process that created the socket, which
// the service cannot forge.
func peerPID(conn net.Conn) (int, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, errors.New("peer credentials need a unix socket")
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("failed to get raw connection: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, fmt.Errorf("failed to access socket: %w", err)
	}
	if credErr != nil {
		return 0, fmt.Errorf("getsockopt(SO_PEERCRED) failed: %w", credErr)
	}
	return int(cred.Pid), nil
}

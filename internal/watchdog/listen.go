package watchdog

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ListenFunc binds a listener on a unix socket address.
type ListenFunc func(address string) (net.Listener, error)

// ListenUnix binds address. Abstract addresses (leading "@") are handed to
// the kernel as is. For filesystem sockets a leftover file that nobody
// answers on is removed before one more attempt.
func ListenUnix(address string) (net.Listener, error) {
	if strings.HasPrefix(address, "@") {
		return net.Listen("unix", address)
	}

	if err := os.MkdirAll(filepath.Dir(address), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", address)
	if err == nil {
		return listener, nil
	}
	if !errors.Is(err, syscall.EADDRINUSE) {
		return nil, err
	}

	// Someone still answering means the name is really taken
	if conn, dialErr := net.Dial("unix", address); dialErr == nil {
		conn.Close()
		return nil, err
	}
	if removeErr := os.Remove(address); removeErr != nil {
		return nil, fmt.Errorf("failed to remove stale socket %s: %w", address, removeErr)
	}
	return net.Listen("unix", address)
}

package daemon

import (
	"errors"
	"net"
	"os"
	"strconv"
	"testing"

	"go.olrik.dev/keepalive/internal/core"
)

// connectedPair returns both ends of a unix socket connection
func connectedPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("unix", shortSocketDir(t)+"/p.sock")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client, err = net.Dial("unix", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server = <-accepted
	if server == nil {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestServiceMonitorResolvesPeer(t *testing.T) {
	logger := quietLogger(t)
	// Peer credentials name this process on Linux; elsewhere the env does
	t.Setenv(core.ServicePIDEnv, strconv.Itoa(os.Getpid()))

	client, _ := connectedPair(t)

	sm, err := NewServiceMonitor(client, nil, logger)
	if err != nil {
		t.Fatalf("NewServiceMonitor failed: %v", err)
	}
	if sm.PID() != os.Getpid() {
		t.Errorf("PID = %d, want %d", sm.PID(), os.Getpid())
	}
	if err := sm.Check(); err != nil {
		t.Errorf("Check on a live process failed: %v", err)
	}
}

func TestServiceMonitorEnvFallback(t *testing.T) {
	logger := quietLogger(t)
	t.Setenv(core.ServicePIDEnv, "4242")

	// A pipe has no peer credentials
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var checked int
	sm, err := NewServiceMonitor(client, func(pid int) error {
		checked = pid
		return ErrServiceStopped
	}, logger)
	if err != nil {
		t.Fatalf("NewServiceMonitor failed: %v", err)
	}
	if sm.PID() != 4242 {
		t.Errorf("PID = %d, want 4242", sm.PID())
	}
	if err := sm.Check(); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("Check = %v, want ErrServiceStopped", err)
	}
	if checked != 4242 {
		t.Errorf("checker saw pid %d", checked)
	}
}

func TestServiceMonitorWithoutPID(t *testing.T) {
	logger := quietLogger(t)
	t.Setenv(core.ServicePIDEnv, "")

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	if _, err := NewServiceMonitor(client, nil, logger); err == nil {
		t.Error("expected an error without peer credentials or env PID")
	}
}

package daemon

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"go.olrik.dev/keepalive/internal/core"
)

// ServiceMonitor watches the process on the other end of the rendezvous
// connection. The socket closing already covers a clean exit; the monitor
// catches a service that is still around but stopped, and platforms where
// a dead peer's socket lingers.
type ServiceMonitor struct {
	pid    int
	source string
	check  ProcessChecker
	logger *slog.Logger
}

// NewServiceMonitor resolves the service PID for conn. Peer credentials
// win; the PID the service put in our environment is the fallback.
func NewServiceMonitor(conn net.Conn, check ProcessChecker, logger *slog.Logger) (*ServiceMonitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if check == nil {
		check = ValidateServiceProcess
	}

	sm := &ServiceMonitor{check: check, logger: logger}

	if pid, err := peerPID(conn); err == nil && pid > 0 {
		sm.pid, sm.source = pid, "peercred"
	} else {
		if err != nil {
			logger.Debug("Peer credentials unavailable", "error", err)
		}
		pidStr := os.Getenv(core.ServicePIDEnv)
		pid, convErr := strconv.Atoi(pidStr)
		if convErr != nil || pid <= 0 {
			return nil, fmt.Errorf("cannot determine service pid: no peer credentials and %s=%q", core.ServicePIDEnv, pidStr)
		}
		sm.pid, sm.source = pid, "env"
	}

	logger.Info("Monitoring service process", "pid", sm.pid, "source", sm.source)
	return sm, nil
}

func (sm *ServiceMonitor) PID() int {
	return sm.pid
}

// Check returns nil while the service process is alive and runnable.
func (sm *ServiceMonitor) Check() error {
	if err := sm.check(sm.pid); err != nil {
		return err
	}
	sm.logger.Debug("Service process check passed", "pid", sm.pid)
	return nil
}

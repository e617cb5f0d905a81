package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shirou/gopsutil/v3/process"
)

var (
	// ErrServiceGone means the service process no longer exists
	ErrServiceGone = errors.New("service process is gone")
	// ErrServiceStopped means the service process exists but cannot run
	ErrServiceStopped = errors.New("service process is stopped")
)

// ProcessChecker reports whether the service process is still usable.
type ProcessChecker func(pid int) error

// ValidateServiceProcess checks that pid exists and is neither stopped
// (SIGSTOP, ptrace) nor a zombie waiting to be reaped.
func ValidateServiceProcess(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("%w: invalid pid %d", ErrServiceGone, pid)
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceGone, err)
	}

	running, err := proc.IsRunning()
	if err != nil || !running {
		return fmt.Errorf("%w: pid %d", ErrServiceGone, pid)
	}

	status, err := proc.Status()
	if err != nil {
		// Status is not available everywhere; existence is enough then
		slog.Debug("Process status unavailable", "pid", pid, "error", err)
		return nil
	}
	if slices.Contains(status, process.Zombie) {
		return fmt.Errorf("%w: pid %d is a zombie", ErrServiceGone, pid)
	}
	if slices.Contains(status, process.Stop) {
		return fmt.Errorf("%w: pid %d", ErrServiceStopped, pid)
	}
	return nil
}

//go:build linux

package watchdog

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// lowestPriority pins the calling goroutine to its own OS thread and drops
// that thread to nice 19. The thread is never unlocked, so it is discarded
// together with its priority when the goroutine returns.
func lowestPriority(logger *slog.Logger, name string) {
	runtime.LockOSThread()

	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, 19); err != nil {
		logger.Debug("Failed to lower thread priority", "thread", name, "tid", tid, "error", err)
		return
	}
	logger.Debug("Thread priority lowered", "thread", name, "tid", tid, "nice", 19)
}

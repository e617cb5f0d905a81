//go:build !linux

package watchdog

import (
	"log/slog"
	"runtime"
)

// lowestPriority pins the goroutine to its own OS thread. Per-thread nice
// values are a Linux feature, so the priority itself is left alone here.
func lowestPriority(logger *slog.Logger, name string) {
	runtime.LockOSThread()
	logger.Debug("Thread priority unchanged on this platform", "thread", name)
}

//go:build !linux

package daemon

import (
	"context"
	"log/slog"
)

// WatchLogind does nothing where logind is not available.
func WatchLogind(ctx context.Context, h *HostSuspend, logger *slog.Logger) {}

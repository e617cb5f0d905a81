package daemon

import (
	"math"
	"sync/atomic"
	"time"
)

// SuspendGrace is how long liveness checks stay held after the host resumes.
const SuspendGrace = 10 * time.Second

const asleep = math.MaxInt64

// HostSuspend tracks whether the host is, or just was, suspended. The
// service is frozen with everything else, so a stopped or silent service
// says nothing until the host has been awake for a while.
//
// resumeAt is 0 while awake, asleep while suspended, and otherwise the
// unix nano time from which checks run again.
type HostSuspend struct {
	resumeAt atomic.Int64
	grace    time.Duration
}

func NewHostSuspend(grace time.Duration) *HostSuspend {
	return &HostSuspend{grace: grace}
}

// Suspend marks the host asleep.
func (h *HostSuspend) Suspend() {
	h.resumeAt.Store(asleep)
}

// Resume starts the grace period at now. It reports false when the host
// was not marked asleep.
func (h *HostSuspend) Resume(now time.Time) bool {
	return h.resumeAt.CompareAndSwap(asleep, now.Add(h.grace).UnixNano())
}

// Hold reports whether checks are held at now and, once the host is awake
// again, for how much longer. A nil HostSuspend never holds.
func (h *HostSuspend) Hold(now time.Time) (bool, time.Duration) {
	if h == nil {
		return false, 0
	}
	v := h.resumeAt.Load()
	switch v {
	case 0:
		return false, 0
	case asleep:
		return true, 0
	}

	remaining := time.Unix(0, v).Sub(now)
	if remaining <= 0 {
		h.resumeAt.CompareAndSwap(v, 0)
		return false, 0
	}
	return true, remaining
}

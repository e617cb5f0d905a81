package watchdog

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsObserver(t *testing.T) {
	var m MetricsObserver

	bindBefore := testutil.ToFloat64(bindFailures)
	acceptsBefore := testutil.ToFloat64(accepts)
	disconnectsBefore := testutil.ToFloat64(disconnects)
	okBefore := testutil.ToFloat64(launchAttempts.WithLabelValues("ok"))
	failedBefore := testutil.ToFloat64(launchAttempts.WithLabelValues("failed"))

	m.Observe(Event{Kind: EventListening, Token: InitialToken})
	if got := testutil.ToFloat64(livenessToken); got != -1 {
		t.Errorf("liveness token = %v, want -1", got)
	}

	m.Observe(Event{Kind: EventBindFailed, Err: errors.New("address in use")})
	m.Observe(Event{Kind: EventLaunchFailed})
	m.Observe(Event{Kind: EventLaunchOK})
	m.Observe(Event{Kind: EventAccepted})
	if got := testutil.ToFloat64(connected); got != 1 {
		t.Errorf("connected = %v after accept", got)
	}

	m.Observe(Event{Kind: EventDisconnected})
	m.Observe(Event{Kind: EventTokenAdvanced, Token: 6})
	if got := testutil.ToFloat64(connected); got != 0 {
		t.Errorf("connected = %v after disconnect", got)
	}
	if got := testutil.ToFloat64(livenessToken); got != 6 {
		t.Errorf("liveness token = %v, want 6", got)
	}

	deltas := []struct {
		name   string
		before float64
		after  float64
	}{
		{"bind failures", bindBefore, testutil.ToFloat64(bindFailures)},
		{"accepts", acceptsBefore, testutil.ToFloat64(accepts)},
		{"disconnects", disconnectsBefore, testutil.ToFloat64(disconnects)},
		{"launch ok", okBefore, testutil.ToFloat64(launchAttempts.WithLabelValues("ok"))},
		{"launch failed", failedBefore, testutil.ToFloat64(launchAttempts.WithLabelValues("failed"))},
	}
	for _, d := range deltas {
		if d.after-d.before != 1 {
			t.Errorf("%s increased by %v, want 1", d.name, d.after-d.before)
		}
	}
}

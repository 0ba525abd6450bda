package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatsUpdateObservesDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	WithClockFreq(1_000_000)

	m.StatsUpdate(1_000_000, 1_500_000)

	count, err := testutil.GatherAndCount(reg, "tickcore_task_run_duration_seconds")
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Fatal("expected tickcore_task_run_duration_seconds to have an observation")
	}

	uptime := testutil.ToFloat64(m.uptimeSeconds)
	if uptime != 1.5 {
		t.Fatalf("uptimeSeconds = %v, want 1.5", uptime)
	}
}

func TestStatsUpdateHandlesTickWrap(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	WithClockFreq(1_000_000)

	// start is near the uint32 max, cur has wrapped past zero.
	m.StatsUpdate(0xFFFFFFFF-500_000, 500_000)

	count, err := testutil.GatherAndCount(reg, "tickcore_task_run_duration_seconds")
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Fatal("expected an observation even when the tick range wraps")
	}
}

func TestRecordShutdownIncrementsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordShutdown("timer_too_close")
	m.RecordShutdown("timer_too_close")
	m.RecordShutdown("sentinel_called")

	got := testutil.ToFloat64(m.shutdownsTotal.WithLabelValues("timer_too_close"))
	if got != 2 {
		t.Fatalf("timer_too_close count = %v, want 2", got)
	}
	got = testutil.ToFloat64(m.shutdownsTotal.WithLabelValues("sentinel_called"))
	if got != 1 {
		t.Fatalf("sentinel_called count = %v, want 1", got)
	}
}

func TestRecordHeartbeatIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordHeartbeat()
	m.RecordHeartbeat()

	got := testutil.ToFloat64(m.heartbeatBeats)
	if got != 2 {
		t.Fatalf("heartbeatBeats = %v, want 2", got)
	}
}

func TestSetDispatchBacklog(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetDispatchBacklog(42)

	got := testutil.ToFloat64(m.dispatchBacklog)
	if got != 42 {
		t.Fatalf("dispatchBacklog = %v, want 42", got)
	}
}

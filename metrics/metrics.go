// Package metrics exports the scheduler core's stats_update hook and
// shutdown events as Prometheus series, following the control plane's own
// metrics wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by the Task Runner's hooks.
type Metrics struct {
	uptimeSeconds   prometheus.Gauge
	taskRunDuration prometheus.Histogram
	shutdownsTotal  *prometheus.CounterVec
	heartbeatBeats  prometheus.Counter
	dispatchBacklog prometheus.Gauge
}

// New creates a Metrics instance and registers its collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickcore_uptime_seconds",
			Help: "Current tick counter value converted to seconds, sampled at the end of each task run.",
		}),
		taskRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tickcore_task_run_duration_seconds",
			Help:    "Wall-clock duration of each run_taskfuncs invocation, derived from stats_update(start, cur).",
			Buckets: prometheus.DefBuckets,
		}),
		shutdownsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickcore_shutdowns_total",
			Help: "Total number of times the shutdown controller has fired, by reason.",
		}, []string{"reason"}),
		heartbeatBeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickcore_heartbeat_beats_total",
			Help: "Total number of heartbeat subsystem beats delivered.",
		}),
		dispatchBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickcore_dispatch_backlog_ticks",
			Help: "Ticks between now and the timer queue's next waketime, sampled by the task loop after each heartbeat beat.",
		}),
	}

	reg.MustRegister(m.uptimeSeconds, m.taskRunDuration, m.shutdownsTotal, m.heartbeatBeats, m.dispatchBacklog)
	return m
}

// clockFreq is the divisor used to turn a tick delta into seconds. It is
// package-wide and set via WithClockFreq; tickcored sets it to
// core.ClockFreq right after New.
var clockFreq uint32 = 1

// WithClockFreq sets the tick frequency StatsUpdate uses to convert ticks
// into seconds.
func WithClockFreq(freq uint32) {
	if freq > 0 {
		clockFreq = freq
	}
}

// StatsUpdate is wired to core.Hooks.StatsUpdate: start and cur are the
// tick values core.ReadTime() returned bracketing the most recent
// run_taskfuncs call. Ticks are unsigned and wrap, so the delta is computed
// with the same wrap-aware subtraction the scheduler itself uses.
func (m *Metrics) StatsUpdate(start, cur uint32) {
	delta := cur - start // wraps correctly: unsigned subtraction mod 2^32
	m.taskRunDuration.Observe(float64(delta) / float64(clockFreq))
	m.uptimeSeconds.Set(float64(cur) / float64(clockFreq))
}

// RecordShutdown increments the shutdown counter for the given reason name.
func (m *Metrics) RecordShutdown(reason string) {
	m.shutdownsTotal.WithLabelValues(reason).Inc()
}

// RecordHeartbeat increments the heartbeat beat counter.
func (m *Metrics) RecordHeartbeat() {
	m.heartbeatBeats.Inc()
}

// SetDispatchBacklog records how many ticks remain until the timer queue's
// next waketime.
func (m *Metrics) SetDispatchBacklog(ticks uint32) {
	m.dispatchBacklog.Set(float64(ticks))
}

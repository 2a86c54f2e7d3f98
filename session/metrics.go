package session

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts engine activity. All methods are safe for concurrent
// use and on a nil receiver, so callers may leave Config.Metrics unset.
type Metrics struct {
	connects         atomic.Int64
	connectFailures  atomic.Int64
	snapshotsApplied atomic.Int64
	snapshotsCorrupt atomic.Int64
	pushes           atomic.Int64
	pushFailures     atomic.Int64
	watchFailures    atomic.Int64
}

func (m *Metrics) addConnect() {
	if m != nil {
		m.connects.Add(1)
	}
}

func (m *Metrics) addConnectFailure() {
	if m != nil {
		m.connectFailures.Add(1)
	}
}

func (m *Metrics) addSnapshotApplied() {
	if m != nil {
		m.snapshotsApplied.Add(1)
	}
}

func (m *Metrics) addSnapshotCorrupt() {
	if m != nil {
		m.snapshotsCorrupt.Add(1)
	}
}

func (m *Metrics) addPush() {
	if m != nil {
		m.pushes.Add(1)
	}
}

func (m *Metrics) addPushFailure() {
	if m != nil {
		m.pushFailures.Add(1)
	}
}

func (m *Metrics) addWatchFailure() {
	if m != nil {
		m.watchFailures.Add(1)
	}
}

// Connects returns the number of Connect calls.
func (m *Metrics) Connects() int64 {
	if m == nil {
		return 0
	}
	return m.connects.Load()
}

// ConnectFailures returns the number of Connect calls that failed.
func (m *Metrics) ConnectFailures() int64 {
	if m == nil {
		return 0
	}
	return m.connectFailures.Load()
}

// SnapshotsApplied returns the number of remote snapshots delivered to
// the snapshot callback.
func (m *Metrics) SnapshotsApplied() int64 {
	if m == nil {
		return 0
	}
	return m.snapshotsApplied.Load()
}

// SnapshotsCorrupt returns the number of snapshots whose payload failed
// to parse.
func (m *Metrics) SnapshotsCorrupt() int64 {
	if m == nil {
		return 0
	}
	return m.snapshotsCorrupt.Load()
}

// Pushes returns the number of Push calls.
func (m *Metrics) Pushes() int64 {
	if m == nil {
		return 0
	}
	return m.pushes.Load()
}

// PushFailures returns the number of Push calls that failed.
func (m *Metrics) PushFailures() int64 {
	if m == nil {
		return 0
	}
	return m.pushFailures.Load()
}

// WatchFailures returns the number of watches that ended with an error.
func (m *Metrics) WatchFailures() int64 {
	if m == nil {
		return 0
	}
	return m.watchFailures.Load()
}

// MetricsCollector exposes engine counters to Prometheus.
type MetricsCollector struct {
	m *Metrics

	connects         *prometheus.Desc
	connectFailures  *prometheus.Desc
	snapshotsApplied *prometheus.Desc
	snapshotsCorrupt *prometheus.Desc
	pushes           *prometheus.Desc
	pushFailures     *prometheus.Desc
	watchFailures    *prometheus.Desc
}

// NewMetricsCollector returns a collector reading from m.
func NewMetricsCollector(m *Metrics) *MetricsCollector {
	return &MetricsCollector{
		m: m,

		connects: prometheus.NewDesc(
			"auditory_session_connects_total",
			"Total number of session connect attempts",
			nil, nil,
		),
		connectFailures: prometheus.NewDesc(
			"auditory_session_connect_failures_total",
			"Total number of failed session connect attempts",
			nil, nil,
		),
		snapshotsApplied: prometheus.NewDesc(
			"auditory_session_snapshots_applied_total",
			"Total number of remote snapshots applied locally",
			nil, nil,
		),
		snapshotsCorrupt: prometheus.NewDesc(
			"auditory_session_corrupt_snapshots_total",
			"Total number of snapshots with unparseable payloads",
			nil, nil,
		),
		pushes: prometheus.NewDesc(
			"auditory_session_pushes_total",
			"Total number of local snapshots pushed to the backend",
			nil, nil,
		),
		pushFailures: prometheus.NewDesc(
			"auditory_session_push_failures_total",
			"Total number of failed snapshot pushes",
			nil, nil,
		),
		watchFailures: prometheus.NewDesc(
			"auditory_session_watch_failures_total",
			"Total number of watches that ended with an error",
			nil, nil,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connects
	ch <- c.connectFailures
	ch <- c.snapshotsApplied
	ch <- c.snapshotsCorrupt
	ch <- c.pushes
	ch <- c.pushFailures
	ch <- c.watchFailures
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		c.connects,
		prometheus.CounterValue,
		float64(c.m.Connects()),
	)
	ch <- prometheus.MustNewConstMetric(
		c.connectFailures,
		prometheus.CounterValue,
		float64(c.m.ConnectFailures()),
	)
	ch <- prometheus.MustNewConstMetric(
		c.snapshotsApplied,
		prometheus.CounterValue,
		float64(c.m.SnapshotsApplied()),
	)
	ch <- prometheus.MustNewConstMetric(
		c.snapshotsCorrupt,
		prometheus.CounterValue,
		float64(c.m.SnapshotsCorrupt()),
	)
	ch <- prometheus.MustNewConstMetric(
		c.pushes,
		prometheus.CounterValue,
		float64(c.m.Pushes()),
	)
	ch <- prometheus.MustNewConstMetric(
		c.pushFailures,
		prometheus.CounterValue,
		float64(c.m.PushFailures()),
	)
	ch <- prometheus.MustNewConstMetric(
		c.watchFailures,
		prometheus.CounterValue,
		float64(c.m.WatchFailures()),
	)
}

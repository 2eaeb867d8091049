package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricCommits         = "commits_total"
	MetricCommitFailures  = "commit_failures_total"
	MetricRollbacks       = "rollbacks_total"
	MetricCommitSeconds   = "commit_duration_seconds"
	MetricLockWaitSeconds = "lock_wait_seconds"
	MetricOpenCursors     = "open_cursors"
	MetricCompacted       = "compacted_tuples_total"
	MetricStatements      = "statements"
)

// Metrics are the store's prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	commits        prometheus.Counter
	commitFailures prometheus.Counter
	rollbacks      prometheus.Counter
	commitSeconds  prometheus.Histogram
	lockWait       prometheus.Histogram
	openCursors    prometheus.Gauge
	compactedTotal prometheus.Counter
	statements     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCommits,
			Help:      "Committed write transactions.",
		}),
		commitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCommitFailures,
			Help:      "Commits that failed to persist.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRollbacks,
			Help:      "Rolled back write transactions.",
		}),
		commitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricCommitSeconds,
			Help:      "Time spent persisting and publishing a commit.",
			Buckets:   prometheus.DefBuckets,
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricLockWaitSeconds,
			Help:      "Time spent waiting for the write lock.",
			Buckets:   prometheus.DefBuckets,
		}),
		openCursors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricOpenCursors,
			Help:      "Statement cursors currently open.",
		}),
		compactedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCompacted,
			Help:      "Dead statement versions removed from the indexes.",
		}),
		statements: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricStatements,
			Help:      "Committed statements, explicit and inferred.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.commits, m.commitFailures, m.rollbacks, m.commitSeconds,
		m.lockWait, m.openCursors, m.compactedTotal, m.statements,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) committed(d time.Duration) {
	if m == nil {
		return
	}
	m.commits.Inc()
	m.commitSeconds.Observe(d.Seconds())
}

func (m *Metrics) commitFailed() {
	if m != nil {
		m.commitFailures.Inc()
	}
}

func (m *Metrics) rolledBack() {
	if m != nil {
		m.rollbacks.Inc()
	}
}

func (m *Metrics) observeLockWait(d time.Duration) {
	if m != nil {
		m.lockWait.Observe(d.Seconds())
	}
}

func (m *Metrics) cursorOpened() {
	if m != nil {
		m.openCursors.Inc()
	}
}

func (m *Metrics) cursorClosed() {
	if m != nil {
		m.openCursors.Dec()
	}
}

func (m *Metrics) compacted(n int) {
	if m != nil {
		m.compactedTotal.Add(float64(n))
	}
}

func (m *Metrics) setStatements(n int) {
	if m != nil {
		m.statements.Set(float64(n))
	}
}

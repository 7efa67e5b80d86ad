package lock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label constants for metrics.
const (
	LabelType   = "type"
	LabelStatus = "status"
	LabelReason = "reason"
)

// Status constants for lock operations.
const (
	StatusGranted   = "granted"
	StatusDenied    = "denied"
	StatusDeadlock  = "deadlock"
	StatusCancelled = "cancelled"
	StatusLimit     = "limit"
	StatusError     = "error"
)

// Reason constants for lock release.
const (
	ReasonExplicit = "explicit"
	ReasonOwner    = "owner_released"
	ReasonObject   = "object_released"
)

// Metrics provides Prometheus metrics for the lock manager.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	lockAcquireTotal *prometheus.CounterVec
	lockReleaseTotal *prometheus.CounterVec

	lockBlockedGauge prometheus.Gauge

	lockBlockingDuration prometheus.Histogram
	lockHoldDuration     *prometheus.HistogramVec

	lockTestTotal *prometheus.CounterVec

	deadlockDetected prometheus.Counter
}

// NewMetrics creates lock metrics and registers them with reg.
// If reg is nil, metrics are created but not registered (useful for testing).
// Registering twice against the same registry reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lockAcquireTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nfs4state",
				Subsystem: "locks",
				Name:      "acquire_total",
				Help:      "Total number of lock acquire attempts by outcome",
			},
			[]string{LabelType, LabelStatus},
		),
		lockReleaseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nfs4state",
				Subsystem: "locks",
				Name:      "release_total",
				Help:      "Total number of locks released",
			},
			[]string{LabelReason},
		),
		lockBlockedGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "nfs4state",
				Subsystem: "locks",
				Name:      "blocked",
				Help:      "Number of blocked lock requests waiting",
			},
		),
		lockBlockingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "nfs4state",
				Subsystem: "locks",
				Name:      "blocking_duration_seconds",
				Help:      "Time spent waiting for a blocking lock",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		lockHoldDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nfs4state",
				Subsystem: "locks",
				Name:      "hold_duration_seconds",
				Help:      "Time a lock was held before release",
				Buckets:   []float64{0.1, 1, 5, 10, 30, 60, 300, 600, 1800, 3600},
			},
			[]string{LabelType},
		),
		lockTestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nfs4state",
				Subsystem: "locks",
				Name:      "test_total",
				Help:      "Total number of lock tests by outcome",
			},
			[]string{LabelStatus},
		),
		deadlockDetected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nfs4state",
				Subsystem: "locks",
				Name:      "deadlock_detected_total",
				Help:      "Number of blocking requests refused because they would deadlock",
			},
		),
	}

	if reg != nil {
		m.lockAcquireTotal = registerOrReuse(reg, m.lockAcquireTotal).(*prometheus.CounterVec)
		m.lockReleaseTotal = registerOrReuse(reg, m.lockReleaseTotal).(*prometheus.CounterVec)
		m.lockBlockedGauge = registerOrReuse(reg, m.lockBlockedGauge).(prometheus.Gauge)
		m.lockBlockingDuration = registerOrReuse(reg, m.lockBlockingDuration).(prometheus.Histogram)
		m.lockHoldDuration = registerOrReuse(reg, m.lockHoldDuration).(*prometheus.HistogramVec)
		m.lockTestTotal = registerOrReuse(reg, m.lockTestTotal).(*prometheus.CounterVec)
		m.deadlockDetected = registerOrReuse(reg, m.deadlockDetected).(prometheus.Counter)
	}

	return m
}

// registerOrReuse registers a collector, returning the already registered
// one when an identical collector exists. Panics on other failures.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// ObserveLockAcquire records the outcome of a lock request.
func (m *Metrics) ObserveLockAcquire(lockType LockType, status string) {
	if m == nil {
		return
	}
	m.lockAcquireTotal.WithLabelValues(lockType.String(), status).Inc()
}

// ObserveLockRelease records released locks and how long each was held.
func (m *Metrics) ObserveLockRelease(reason string, locks []*Lock) {
	if m == nil || len(locks) == 0 {
		return
	}
	m.lockReleaseTotal.WithLabelValues(reason).Add(float64(len(locks)))
	now := time.Now()
	for _, l := range locks {
		if !l.AcquiredAt.IsZero() {
			m.lockHoldDuration.WithLabelValues(l.Type.String()).Observe(now.Sub(l.AcquiredAt).Seconds())
		}
	}
}

// ObserveLockTest records the outcome of a lock test.
func (m *Metrics) ObserveLockTest(conflict bool) {
	if m == nil {
		return
	}
	status := StatusGranted
	if conflict {
		status = StatusDenied
	}
	m.lockTestTotal.WithLabelValues(status).Inc()
}

// WaitStarted increments the blocked gauge.
func (m *Metrics) WaitStarted() {
	if m == nil {
		return
	}
	m.lockBlockedGauge.Inc()
}

// WaitFinished decrements the blocked gauge and records the wait time.
func (m *Metrics) WaitFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.lockBlockedGauge.Dec()
	m.lockBlockingDuration.Observe(d.Seconds())
}

// ObserveDeadlock records a detected deadlock.
func (m *Metrics) ObserveDeadlock() {
	if m == nil {
		return
	}
	m.deadlockDetected.Inc()
}

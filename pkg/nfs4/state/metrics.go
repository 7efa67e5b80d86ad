package state

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Client disposal reasons.
const (
	ReasonDestroyed = "destroyed"
	ReasonReplaced  = "replaced"
	ReasonExpired   = "lease_expired"
	ReasonShutdown  = "shutdown"
)

// Sequence error labels.
const (
	seqErrMisordered    = "seq_misordered"
	seqErrBadSlot       = "bad_slot"
	seqErrBadSession    = "bad_session"
	seqErrRetryUncached = "retry_uncached"
)

// Metrics provides Prometheus metrics for clients, sessions and slot
// processing. All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// ClientsActive tracks the number of registered clients.
	ClientsActive prometheus.Gauge

	// ClientsCreatedTotal counts client registrations.
	ClientsCreatedTotal prometheus.Counter

	// ClientsDisposedTotal counts disposed clients by reason.
	ClientsDisposedTotal *prometheus.CounterVec

	// SessionsActive tracks the number of live sessions.
	SessionsActive prometheus.Gauge

	// SessionsCreatedTotal counts created sessions.
	SessionsCreatedTotal prometheus.Counter

	// SessionsDestroyedTotal counts destroyed sessions by reason.
	SessionsDestroyedTotal *prometheus.CounterVec

	// SessionDuration observes session lifetimes in seconds.
	SessionDuration prometheus.Histogram

	// SequenceTotal counts processed slot requests by decision.
	SequenceTotal *prometheus.CounterVec

	// SequenceErrorsTotal counts rejected slot requests by error type.
	SequenceErrorsTotal *prometheus.CounterVec

	// StatesActive tracks live state objects by kind.
	StatesActive *prometheus.GaugeVec

	// LeaseSweepsTotal counts lease sweeper passes.
	LeaseSweepsTotal prometheus.Counter

	// GraceActive is 1 while the grace period is in effect.
	GraceActive prometheus.Gauge

	// ReclaimsTotal counts granted reclaim lock requests.
	ReclaimsTotal prometheus.Counter
}

// NewMetrics creates state metrics and registers them with reg. A nil reg
// creates unregistered metrics. Registering twice on the same registry
// reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClientsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nfs4state",
			Subsystem: "clients",
			Name:      "active",
			Help:      "Current number of registered NFSv4 clients",
		}),
		ClientsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nfs4state",
			Subsystem: "clients",
			Name:      "created_total",
			Help:      "Total number of NFSv4 clients registered",
		}),
		ClientsDisposedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfs4state",
			Subsystem: "clients",
			Name:      "disposed_total",
			Help:      "Total number of NFSv4 clients disposed, by reason",
		}, []string{"reason"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nfs4state",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Current number of active NFSv4.1 sessions",
		}),
		SessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nfs4state",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total number of NFSv4.1 sessions created",
		}),
		SessionsDestroyedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfs4state",
			Subsystem: "sessions",
			Name:      "destroyed_total",
			Help:      "Total number of NFSv4.1 sessions destroyed, by reason",
		}, []string{"reason"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nfs4state",
			Subsystem: "sessions",
			Name:      "duration_seconds",
			Help:      "Lifetime of NFSv4.1 sessions in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 20), // 1s to ~145 hours
		}),
		SequenceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfs4state",
			Subsystem: "slots",
			Name:      "requests_total",
			Help:      "Total number of slot requests accepted, by decision",
		}, []string{"decision"}),
		SequenceErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nfs4state",
			Subsystem: "slots",
			Name:      "errors_total",
			Help:      "Total number of slot requests rejected, by error type",
		}, []string{"error_type"}),
		StatesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nfs4state",
			Subsystem: "states",
			Name:      "active",
			Help:      "Current number of state objects, by kind",
		}, []string{"kind"}),
		LeaseSweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nfs4state",
			Subsystem: "clients",
			Name:      "lease_sweeps_total",
			Help:      "Total number of lease sweeper passes",
		}),
		GraceActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nfs4state",
			Subsystem: "grace",
			Name:      "active",
			Help:      "Whether the grace period is in effect (1) or not (0)",
		}),
		ReclaimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nfs4state",
			Subsystem: "grace",
			Name:      "reclaims_total",
			Help:      "Total number of reclaim lock requests granted",
		}),
	}

	if reg != nil {
		m.ClientsActive = registerOrReuse(reg, m.ClientsActive).(prometheus.Gauge)
		m.ClientsCreatedTotal = registerOrReuse(reg, m.ClientsCreatedTotal).(prometheus.Counter)
		m.ClientsDisposedTotal = registerOrReuse(reg, m.ClientsDisposedTotal).(*prometheus.CounterVec)
		m.SessionsActive = registerOrReuse(reg, m.SessionsActive).(prometheus.Gauge)
		m.SessionsCreatedTotal = registerOrReuse(reg, m.SessionsCreatedTotal).(prometheus.Counter)
		m.SessionsDestroyedTotal = registerOrReuse(reg, m.SessionsDestroyedTotal).(*prometheus.CounterVec)
		m.SessionDuration = registerOrReuse(reg, m.SessionDuration).(prometheus.Histogram)
		m.SequenceTotal = registerOrReuse(reg, m.SequenceTotal).(*prometheus.CounterVec)
		m.SequenceErrorsTotal = registerOrReuse(reg, m.SequenceErrorsTotal).(*prometheus.CounterVec)
		m.StatesActive = registerOrReuse(reg, m.StatesActive).(*prometheus.GaugeVec)
		m.LeaseSweepsTotal = registerOrReuse(reg, m.LeaseSweepsTotal).(prometheus.Counter)
		m.GraceActive = registerOrReuse(reg, m.GraceActive).(prometheus.Gauge)
		m.ReclaimsTotal = registerOrReuse(reg, m.ReclaimsTotal).(prometheus.Counter)
	}

	return m
}

// registerOrReuse registers a collector with the given registerer.
// If the collector is already registered, it returns the existing one
// so that metrics keep being exported after a restart within one process.
// Panics on non-AlreadyRegisteredError failures.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *Metrics) clientCreated() {
	if m == nil {
		return
	}
	m.ClientsCreatedTotal.Inc()
	m.ClientsActive.Inc()
}

func (m *Metrics) clientDisposed(reason string) {
	if m == nil {
		return
	}
	m.ClientsDisposedTotal.WithLabelValues(reason).Inc()
	m.ClientsActive.Dec()
}

func (m *Metrics) sessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreatedTotal.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) sessionDestroyed(reason string, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.SessionsDestroyedTotal.WithLabelValues(reason).Inc()
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(lifetime.Seconds())
}

func (m *Metrics) sequence(decision SlotDecision) {
	if m == nil {
		return
	}
	m.SequenceTotal.WithLabelValues(decision.String()).Inc()
}

func (m *Metrics) sequenceError(err error) {
	if m == nil {
		return
	}
	label := "other"
	switch StatusOf(err) {
	case ErrSeqMisordered.Status:
		label = seqErrMisordered
	case ErrBadSlot.Status:
		label = seqErrBadSlot
	case ErrBadSession.Status:
		label = seqErrBadSession
	case ErrRetryUncachedRep.Status:
		label = seqErrRetryUncached
	}
	m.SequenceErrorsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) stateAdded(kind StateKind) {
	if m == nil {
		return
	}
	m.StatesActive.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) stateRemoved(kind StateKind) {
	if m == nil {
		return
	}
	m.StatesActive.WithLabelValues(kind.String()).Dec()
}

func (m *Metrics) leaseSweep() {
	if m == nil {
		return
	}
	m.LeaseSweepsTotal.Inc()
}

func (m *Metrics) setGrace(active bool) {
	if m == nil {
		return
	}
	if active {
		m.GraceActive.Set(1)
	} else {
		m.GraceActive.Set(0)
	}
}

func (m *Metrics) reclaimGranted() {
	if m == nil {
		return
	}
	m.ReclaimsTotal.Inc()
}

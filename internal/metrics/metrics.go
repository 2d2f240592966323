// Package metrics registers the hub's prometheus instrumentation. It
// mirrors the stats the HTTP surface exposes in JSON (§6) as proper
// counters/gauges so an operator can scrape the same numbers instead of
// polling /api/stats.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every prometheus collector the hub registers.
type Metrics struct {
	ConnectedClients prometheus.Gauge
	EventsAppended   *prometheus.CounterVec // by tenant
	EventsDuplicate  prometheus.Counter
	EventsRejected   prometheus.Counter
	LockAcquires     *prometheus.CounterVec // by outcome: granted|denied|renewed
	LockReleases     *prometheus.CounterVec // by reason: manual|disconnect (sweep expiry is not counted)
	Lamport          prometheus.Gauge
}

// New constructs and registers a Metrics bundle against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry across parallel test binaries.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "posync_hub",
			Name:      "connected_clients",
			Help:      "Number of currently open client connections, registered or not.",
		}),
		EventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "posync_hub",
			Name:      "events_appended_total",
			Help:      "Events successfully appended to the store, by tenant.",
		}, []string{"tenant"}),
		EventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "posync_hub",
			Name:      "events_duplicate_total",
			Help:      "Appends rejected as idempotent no-ops (known eventId).",
		}),
		EventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "posync_hub",
			Name:      "events_rejected_total",
			Help:      "Appends rejected for validation or authorization failures.",
		}),
		LockAcquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "posync_hub",
			Name:      "lock_acquires_total",
			Help:      "Lock acquire attempts, by outcome.",
		}, []string{"outcome"}),
		LockReleases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "posync_hub",
			Name:      "lock_releases_total",
			Help:      "Locks released, by reason.",
		}, []string{"reason"}),
		Lamport: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "posync_hub",
			Name:      "lamport_clock",
			Help:      "Current value of the hub's Lamport clock.",
		}),
	}

	reg.MustRegister(
		m.ConnectedClients,
		m.EventsAppended,
		m.EventsDuplicate,
		m.EventsRejected,
		m.LockAcquires,
		m.LockReleases,
		m.Lamport,
	)
	return m
}

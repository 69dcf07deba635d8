package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iho/tripledger/internal/domain"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Remote ledger metrics
	SyncPushes        *prometheus.CounterVec
	SyncPulls         prometheus.Counter
	SyncPulledRecords prometheus.Counter
	SyncErrors        *prometheus.CounterVec

	// Reconciliation metrics
	ReconcileRuns      *prometheus.CounterVec
	ReconcileRecords   *prometheus.CounterVec
	ReconcileConflicts *prometheus.CounterVec
	ReconcileDuration  prometheus.Histogram

	// API metrics
	IdempotentReplays prometheus.Counter
	RateLimitHits     prometheus.Counter
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SyncPushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripledger_sync_pushes_total",
				Help: "Total pushed records by outcome",
			},
			[]string{"kind", "status"},
		),
		SyncPulls: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripledger_sync_pulls_total",
			Help: "Total pull pages served",
		}),
		SyncPulledRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripledger_sync_pulled_records_total",
			Help: "Total records and delete markers served by pulls",
		}),
		SyncErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripledger_sync_errors_total",
				Help: "Total failed sync requests by operation and error category",
			},
			[]string{"operation", "category"},
		),

		ReconcileRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripledger_reconcile_runs_total",
				Help: "Total reconciliation passes by result",
			},
			[]string{"result"},
		),
		ReconcileRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripledger_reconcile_records_total",
				Help: "Total records reconciled by direction",
			},
			[]string{"direction"},
		),
		ReconcileConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripledger_reconcile_conflicts_total",
				Help: "Total last-write-wins conflicts by resolution",
			},
			[]string{"resolution"},
		),
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripledger_reconcile_duration_seconds",
			Help:    "Duration of reconciliation cycles",
			Buckets: prometheus.DefBuckets,
		}),

		IdempotentReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripledger_idempotent_replays_total",
			Help: "Total responses replayed for a repeated idempotency key",
		}),
		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripledger_rate_limit_hits_total",
			Help: "Total requests rejected by the rate limiter",
		}),
	}
}

// ObservePush records the outcome of one push.
func (m *Metrics) ObservePush(kind domain.RecordKind, out domain.PushOutcome, err error) {
	if err != nil {
		m.SyncErrors.WithLabelValues("push", string(domain.KindOf(err))).Inc()
		return
	}
	m.SyncPushes.WithLabelValues(string(kind), string(out.Status)).Inc()
}

// ObservePull records one served pull page.
func (m *Metrics) ObservePull(res *domain.PullResult, err error) {
	if err != nil {
		m.SyncErrors.WithLabelValues("pull", string(domain.KindOf(err))).Inc()
		return
	}
	m.SyncPulls.Inc()
	m.SyncPulledRecords.Add(float64(len(res.Records) + len(res.DeleteMarkers)))
}

// ObserveReconcile records one reconciliation pass. A nil outcome is a pass
// that could not start.
func (m *Metrics) ObserveReconcile(out *domain.ReconcileOutcome) {
	switch {
	case out == nil:
		m.ReconcileRuns.WithLabelValues("error").Inc()
		return
	case len(out.Failed) > 0:
		m.ReconcileRuns.WithLabelValues("partial").Inc()
	default:
		m.ReconcileRuns.WithLabelValues("ok").Inc()
	}

	m.ReconcileRecords.WithLabelValues("push").Add(float64(out.Pushed))
	m.ReconcileRecords.WithLabelValues("pull").Add(float64(out.Pulled))
	m.ReconcileRecords.WithLabelValues("delete").Add(float64(out.Deleted))
	m.ReconcileRecords.WithLabelValues("failed").Add(float64(len(out.Failed)))
	for _, c := range out.Conflicts {
		m.ReconcileConflicts.WithLabelValues(string(c.Resolution)).Inc()
	}
}

// ObserveCycle records the duration of one reconciliation cycle.
func (m *Metrics) ObserveCycle(took time.Duration) {
	m.ReconcileDuration.Observe(took.Seconds())
}

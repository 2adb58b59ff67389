package rolesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultCompleted = "completed"
	resultPartial   = "partial"
	resultFailed    = "failed"
)

type metrics struct {
	runs         *prometheus.CounterVec
	rolesCreated *prometheus.CounterVec
	grantsAdded  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// newMetrics registers the engine collectors with reg. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rolesync_runs_total",
			Help: "Number of synchronization runs, by mapper and result.",
		}, []string{"realm", "mapper", "result"}),
		rolesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rolesync_roles_created_total",
			Help: "Number of local roles created by synchronization.",
		}, []string{"realm", "mapper"}),
		grantsAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rolesync_grants_added_total",
			Help: "Number of local grants added by synchronization.",
		}, []string{"realm", "mapper"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rolesync_run_duration_seconds",
			Help:    "Duration of synchronization runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"realm", "mapper"}),
	}
}

func (m *metrics) observe(r Result) {
	result := resultCompleted

	switch {
	case r.State == StateFailed:
		result = resultFailed
	case len(r.Failures) > 0:
		result = resultPartial
	}

	m.runs.WithLabelValues(r.RealmID, r.Mapper, result).Inc()
	m.rolesCreated.WithLabelValues(r.RealmID, r.Mapper).Add(float64(r.RolesCreated))
	m.grantsAdded.WithLabelValues(r.RealmID, r.Mapper).Add(float64(r.GrantsAdded))
	m.duration.WithLabelValues(r.RealmID, r.Mapper).Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
}

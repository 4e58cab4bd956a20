package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	WebhookEvents       *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	StaleApprovals      prometheus.Counter
	OrphanEvents        prometheus.Counter
	EnrollmentGrants    prometheus.Counter
	EnrollmentConflicts prometheus.Counter
	EnrollmentFailures  prometheus.Counter
	ExpiredOrders       prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "payments_webhook_events_total"}, []string{"event", "result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "payments_transitions_total"}, []string{"outcome", "disposition"})
	staleApprovals := prometheus.NewCounter(prometheus.CounterOpts{Name: "payments_stale_approvals_total"})
	orphanEvents := prometheus.NewCounter(prometheus.CounterOpts{Name: "payments_orphan_events_total"})
	enrollmentGrants := prometheus.NewCounter(prometheus.CounterOpts{Name: "payments_enrollment_grants_total"})
	enrollmentConflicts := prometheus.NewCounter(prometheus.CounterOpts{Name: "payments_enrollment_conflicts_total"})
	enrollmentFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "payments_enrollment_failures_total"})
	expiredOrders := prometheus.NewCounter(prometheus.CounterOpts{Name: "payments_expired_orders_total"})

	r.MustRegister(webhookEvents, transitions, staleApprovals, orphanEvents, enrollmentGrants, enrollmentConflicts, enrollmentFailures, expiredOrders)
	return &Registry{
		reg:                 r,
		WebhookEvents:       webhookEvents,
		Transitions:         transitions,
		StaleApprovals:      staleApprovals,
		OrphanEvents:        orphanEvents,
		EnrollmentGrants:    enrollmentGrants,
		EnrollmentConflicts: enrollmentConflicts,
		EnrollmentFailures:  enrollmentFailures,
		ExpiredOrders:       expiredOrders,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

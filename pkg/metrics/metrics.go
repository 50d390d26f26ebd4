package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PgErrCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicapi",
		Subsystem: "pg",
		Name:      "pg_err_count",
	}, []string{"method"})
	PgDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clinicapi",
		Subsystem: "pg",
		Name:      "pg_duration",
	}, []string{"method"})
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicapi",
		Subsystem: "telegram",
		Name:      "notifications_total",
	}, []string{"outcome"})
)

var (
	DispatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicconsole",
		Subsystem: "dispatch",
		Name:      "dispatch_total",
	}, []string{"outcome"})
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicconsole",
		Subsystem: "session",
		Name:      "transitions_total",
	}, []string{"reason"})
)

package cloudmetrics

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	transmissionsSubmitted *prometheus.CounterVec
	statusChanges          *prometheus.CounterVec
	notificationsReceived  *prometheus.CounterVec
	engineErrors           *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		transmissionsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scambio_transmissions_submitted_total",
			Help: "Invoice transmissions accepted into the pipeline, by channel.",
		}, []string{"org", "channel"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scambio_transmission_status_changes_total",
			Help: "Lifecycle transitions, by destination status.",
		}, []string{"org", "status"}),
		notificationsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scambio_sdi_notifications_total",
			Help: "Exchange-system notifications ingested, by type.",
		}, []string{"org", "type"}),
		engineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scambio_engine_errors_total",
			Help: "Engine failures outside the normal lifecycle, by operation.",
		}, []string{"org", "operation"}),
	}

	if registry != nil {
		registry.MustRegister(
			m.transmissionsSubmitted,
			m.statusChanges,
			m.notificationsReceived,
			m.engineErrors,
		)
	}
	return m
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Plan execution metrics
	PlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetadm_plans_total",
			Help: "Total number of executed plans by result",
		},
		[]string{"result"},
	)

	ProceduresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetadm_procedures_total",
			Help: "Total number of executed procedures by kind and result",
		},
		[]string{"kind", "result"},
	)

	ProcedureDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetadm_procedure_duration_seconds",
			Help:    "Procedure execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	ImageImportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetadm_image_imports_total",
			Help: "Total number of image imports by result",
		},
		[]string{"result"},
	)

	// Coordination metrics
	LockContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetadm_lock_contention_total",
			Help: "Total number of lock acquisitions refused because the lock was held",
		},
	)

	PollAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetadm_poll_attempts_total",
			Help: "Total number of bounded-wait poll attempts by wait name",
		},
		[]string{"wait"},
	)

	// ServiceUp is 1 when a control-plane service passed its last check
	ServiceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetadm_service_up",
			Help: "Whether a control-plane service passed its last health check",
		},
		[]string{"service", "check"},
	)

	RetryAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetadm_retry_attempts_total",
			Help: "Total number of retried invocations of idempotent operations",
		},
	)
)

func init() {
	prometheus.MustRegister(PlansTotal)
	prometheus.MustRegister(ProceduresTotal)
	prometheus.MustRegister(ProcedureDuration)
	prometheus.MustRegister(ImageImportsTotal)
	prometheus.MustRegister(LockContentionTotal)
	prometheus.MustRegister(PollAttemptsTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(ServiceUp)
}

// WriteTextfile dumps the default registry in the text exposition format
// for the node exporter's textfile collector
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

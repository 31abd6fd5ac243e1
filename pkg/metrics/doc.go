/*
Package metrics defines the Prometheus metrics of fleetadm.

All metrics are registered with the default registry at init. fleetadm is
a short-lived CLI rather than a daemon, so nothing is served over HTTP;
instead each run can dump the registry to a file for the node exporter's
textfile collector:

	metrics.WriteTextfile("/var/lib/node_exporter/fleetadm.prom")

# Metrics

Plan execution:
  - fleetadm_plans_total{result}
  - fleetadm_procedures_total{kind, result}
  - fleetadm_procedure_duration_seconds{kind}
  - fleetadm_image_imports_total{result}

Coordination and waits:
  - fleetadm_lock_contention_total
  - fleetadm_poll_attempts_total{wait}
  - fleetadm_retry_attempts_total

Health:
  - fleetadm_service_up{service,check}

# Timing

Timer measures an operation and records it into a histogram:

	timer := metrics.NewTimer()
	err := proc.Execute(ctx, gw)
	timer.ObserveDurationVec(metrics.ProcedureDuration, string(proc.Kind()))
*/
package metrics

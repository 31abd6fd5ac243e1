/*
Package log provides structured logging for fleetadm using zerolog.

The package wraps a single global zerolog.Logger, configured once by
Init from the CLI, and hands out child loggers tagged with the context
fleetadm operations care about: the component doing the work, the
service and instance being changed, the compute node a remote command
runs on, and the history entry recording the run.

# Usage

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	logger := log.WithComponent("executor")
	logger.Info().
		Str("proc", "reprovision-instance").
		Str("instance_uuid", inst.UUID).
		Msg("Reprovisioning instance")

Console output goes to stderr so that plan summaries and tables written
to stdout stay machine-readable.

# Fields

  - component: executor, planner, bootstrap, lock, history, gateway
  - service: service name
  - instance_uuid: instance being created or changed
  - server_uuid: compute node targeted by a remote command
  - history_uuid: history entry of the current run
*/
package log

/*
Package health holds the readiness probes used by the bootstrap state
machines and by "fleetadm check-health".

Three checkers implement Checker:

  - TCPChecker: a port accepts connections (postgres on a new data node)
  - ExecChecker: a script run on a compute node through the inventory
    service exits 0, optionally printing an expected marker
  - HTTPChecker: a control-plane service answers GET /ping with 2xx

A checker never fails hard; it returns an unhealthy Result with a
message. Condition turns any checker into a retry.Condition so waits go
through retry.PollUntil and time out loudly:

	chk := health.NewTCPChecker(vm.AdminIP(), 5432)
	err := retry.PollUntil(ctx, "postgres", 5*time.Second, 60, health.Condition(chk))
*/
package health

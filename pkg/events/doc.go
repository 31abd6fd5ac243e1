/*
Package events carries progress notifications from the plan executor and
the bootstrap state machines to whoever is watching, normally the CLI.

The broker is a small in-memory pub/sub bus. Publishing never blocks on a
slow subscriber: each subscriber has a 50-event buffer and events that do
not fit are dropped for that subscriber. Stop flushes what was already
queued before closing the subscriber channels, so a consumer ranging over
its channel sees every event published before Stop.

# Event Types

Plan execution:
  - plan.started, plan.completed, plan.failed
  - procedure.started, procedure.completed, procedure.failed

Cluster bootstrap:
  - bootstrap.step: a state transition ("creating second instance")
  - bootstrap.wait: a bounded wait began ("waiting for sync replication")

# Usage

	broker := events.NewBroker()
	broker.Start()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Message)
		}
	}()

	broker.Emit(events.EventBootstrapStep, "restarting sitter", "server", hn)
	broker.Stop()

A nil *Broker is valid and discards everything, so libraries publish
without checking whether anyone listens.
*/
package events

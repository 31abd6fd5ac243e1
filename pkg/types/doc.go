/*
Package types defines the data structures shared by every fleetadm package.

The types fall into two groups. Read-only projections of remote state
(Service, Instance, Image, Server, VM, Package, Nic, ShardStatus, ZkMember)
are always fetched fresh from the control-plane gateway and are never
mutated locally; every mutation goes through the gateway. Operator intent
and its audit trail (Change, HistoryEntry) are produced by fleetadm itself.

# Core Types

Registry projections:
  - Application: A named group of services with shared metadata
  - Service: A platform component type and its deployment parameters
  - Instance: One deployment of a service on a compute node
  - ServiceType: "vm" for zone-based services, "agent" for node agents
  - Mode: The registry's operational mode ("proto" or "full")

Inventory and artifacts:
  - Server: A compute node, its status and boot platform
  - Image: An image manifest, local or offered by the update channel
  - Package: A billing/sizing template used for new instances
  - VM, Nic, NicTag, NetworkPool: VM control and network registry views

Intent and audit:
  - Change: One unit of operator intent (service or instance target,
    optional image or version pin)
  - HistoryEntry: The durable record of a confirmed change set

Cluster topology:
  - ShardStatus: Replication topology of a data-tier shard; the primary's
    Repl.SyncState is the authoritative HA readiness signal
  - ZkMember: One entry of the coordination ensemble membership list
  - ZkStat: A member's self-reported role and epoch

# Change Targets

A Change names its target by exactly one of Service or Instance:

	types.Change{Type: types.ChangeUpdateService, Service: "cnapi"}
	types.Change{Type: types.ChangeReprovision, Instance: "3c1d..."}
	types.Change{Type: types.ChangeAddInstance, Service: "moray", Server: "headnode"}

Image and Version are mutually exclusive pins. When neither is set the
planner picks the latest available image for the service.

# Serialization

All types carry JSON tags. HistoryEntry is persisted by the history
journal in this form; the other types use it on the wire to the control
plane.
*/
package types

// Package bootstrap grows single-node platform services into clusters:
// a coordination ensemble of 3 or 5 members, and an HA data shard of 3
// nodes. Every step runs through the plan executor, and every wait is a
// bounded retry.PollUntil whose timeout is fatal.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/events"
	"github.com/cuemby/fleetadm/pkg/executor"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/health"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/plan"
	"github.com/cuemby/fleetadm/pkg/procedure"
	"github.com/cuemby/fleetadm/pkg/retry"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/rs/zerolog"
)

// WaitOptions bound the waits between bootstrap steps
type WaitOptions struct {
	// Interval separates poll attempts
	Interval time.Duration
	// Attempts caps every poll; Interval*Attempts is the timeout
	Attempts int
	// SettleDelay precedes restarting dependent services
	SettleDelay time.Duration
	// RestartPause separates the two sitter restarts
	RestartPause time.Duration
}

// DefaultWaitOptions polls every 5s for up to 5 minutes
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		Interval:     5 * time.Second,
		Attempts:     60,
		SettleDelay:  30 * time.Second,
		RestartPause: 5 * time.Second,
	}
}

// Bootstrapper runs the cluster state machines
type Bootstrapper struct {
	exec   *executor.Executor
	gw     *gateway.Context
	events *events.Broker
	wait   WaitOptions
	logger zerolog.Logger

	// PostgresProbe builds the readiness check of a data node; the
	// default dials postgres on the node's admin address
	PostgresProbe func(inst *types.Instance, vm *types.VM) health.Checker

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Bootstrapper driving exec
func New(exec *executor.Executor, wait WaitOptions) *Bootstrapper {
	return &Bootstrapper{
		exec:   exec,
		gw:     exec.Gateway(),
		events: exec.Events(),
		wait:   wait,
		logger: log.WithComponent("bootstrap"),
		PostgresProbe: func(_ *types.Instance, vm *types.VM) health.Checker {
			return health.NewTCPChecker(vm.AdminIP(), postgresPort)
		},
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bootstrapper) step(state, msg string) {
	b.logger.Info().Str("state", state).Msg(msg)
	b.events.Emit(events.EventBootstrapStep, msg, "state", state)
}

// poll waits for cond with the configured bounds
func (b *Bootstrapper) poll(ctx context.Context, what string, cond retry.Condition) error {
	b.logger.Info().Str("wait", what).Int("attempts", b.wait.Attempts).Dur("interval", b.wait.Interval).Msg("Waiting")
	b.events.Emit(events.EventBootstrapWait, what)
	if err := retry.PollUntil(ctx, what, b.wait.Interval, b.wait.Attempts, cond); err != nil {
		b.logger.Error().Err(err).Str("wait", what).Msg("Wait failed")
		return err
	}
	return nil
}

// run executes a script in a zone's server and fails on non-zero exit
func (b *Bootstrapper) run(ctx context.Context, inst *types.Instance, script string) (*types.CommandResult, error) {
	res, err := b.gw.Exec(ctx, inst.ServerUUID, script)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", inst.Alias, inst.ServerUUID, err)
	}
	return res, nil
}

// resolveServers maps UUIDs or hostnames onto running servers
func (b *Bootstrapper) resolveServers(ctx context.Context, refs []string) ([]*types.Server, error) {
	all, err := b.gw.Inventory.ListServers(ctx, gateway.ServerFilter{})
	if err != nil {
		return nil, errs.Client("cnapi", err)
	}
	out := make([]*types.Server, 0, len(refs))
	for _, ref := range refs {
		var found *types.Server
		for _, s := range all {
			if s.UUID == ref || s.Hostname == ref {
				found = s
				break
			}
		}
		if found == nil {
			return nil, errs.Usagef("unknown server %q", ref)
		}
		if !found.Running() {
			return nil, errs.Updatef("server %s (%s) is not set up and running", found.UUID, found.Hostname)
		}
		out = append(out, found)
	}
	return out, nil
}

// addInstances plans and executes one new instance of service per server.
// meta, when set, supplies the metadata of the i-th new instance.
func (b *Bootstrapper) addInstances(ctx context.Context, service string, servers []*types.Server, meta func(i int) map[string]any) ([]*types.Instance, error) {
	if len(servers) == 0 {
		return nil, nil
	}
	state, err := plan.LoadState(ctx, b.gw)
	if err != nil {
		return nil, err
	}
	changes := make([]types.Change, 0, len(servers))
	for _, s := range servers {
		changes = append(changes, types.Change{Type: types.ChangeAddInstance, Service: service, Server: s.UUID})
	}
	p, err := plan.Generate(changes, state, plan.Options{AllowDuplicateServers: true})
	if err != nil {
		return nil, err
	}

	var aliases []string
	for _, proc := range p.Procs {
		add, ok := proc.(*procedure.AddInstance)
		if !ok {
			continue
		}
		if meta != nil {
			add.Metadata = meta(len(aliases))
		}
		aliases = append(aliases, add.Alias)
	}
	if err := b.exec.Exec(ctx, p); err != nil {
		return nil, err
	}

	svc, err := b.gw.ServiceByName(ctx, service)
	if err != nil {
		return nil, err
	}
	insts, err := b.gw.InstancesOf(ctx, svc)
	if err != nil {
		return nil, err
	}
	var created []*types.Instance
	for _, alias := range aliases {
		for _, inst := range insts {
			if inst.Alias == alias {
				created = append(created, inst)
			}
		}
	}
	if len(created) != len(aliases) {
		return nil, errs.Internalf("created %d %s instance(s), found %d", len(aliases), service, len(created))
	}
	return created, nil
}

// instancesOf returns a service and its instances
func (b *Bootstrapper) instancesOf(ctx context.Context, service string) (*types.Service, []*types.Instance, error) {
	svc, err := b.gw.ServiceByName(ctx, service)
	if gateway.IsNotFound(err) {
		return nil, nil, errs.Updatef("service %q is not installed", service)
	}
	if err != nil {
		return nil, nil, err
	}
	insts, err := b.gw.InstancesOf(ctx, svc)
	if err != nil {
		return nil, nil, err
	}
	return svc, insts, nil
}

func hostingServers(insts []*types.Instance) map[string]bool {
	out := make(map[string]bool, len(insts))
	for _, inst := range insts {
		out[inst.ServerUUID] = true
	}
	return out
}

func distinct(refs []string) bool {
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		if seen[r] {
			return false
		}
		seen[r] = true
	}
	return true
}

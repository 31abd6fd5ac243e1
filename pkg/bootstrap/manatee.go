package bootstrap

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/health"
	"github.com/cuemby/fleetadm/pkg/types"
)

const (
	manateeService = "manatee"
	morayService   = "moray"
	shardSize      = 3
)

// PromoteHA turns a single-node data shard into a primary with a
// synchronous and an asynchronous peer, placed on the two given servers.
// A shard that already has three nodes is left alone, and a shard with
// two resumes where it stopped.
func (b *Bootstrapper) PromoteHA(ctx context.Context, servers []string) error {
	if len(servers) != shardSize-1 {
		return errs.Usagef("must specify %d servers, got %d", shardSize-1, len(servers))
	}
	if !distinct(servers) {
		return errs.Usagef("shard servers must be distinct")
	}

	b.step("single", "Checking the data shard")
	svc, insts, err := b.instancesOf(ctx, manateeService)
	if err != nil {
		return err
	}
	switch {
	case len(insts) == 0:
		return errs.Updatef("no %s instance to promote", manateeService)
	case len(insts) >= shardSize:
		b.logger.Info().Int("instances", len(insts)).Msg("Shard is already HA")
		return nil
	}

	targets, err := b.resolveServers(ctx, servers)
	if err != nil {
		return err
	}
	hosting := hostingServers(insts)
	var pending []*types.Server
	for _, s := range targets {
		if !hosting[s.UUID] {
			pending = append(pending, s)
		}
	}
	if total := len(insts) + len(pending); total != shardSize {
		return errs.Updatef("shard would have %d nodes, want %d", total, shardSize)
	}

	var primary, second *types.Instance
	if len(insts) == 1 {
		primary = insts[0]
		b.step("second-joining", "Creating the second shard node")
		created, err := b.addInstances(ctx, manateeService, pending[:1], func(int) map[string]any {
			return map[string]any{"DISABLE_SITTER": true}
		})
		if err != nil {
			return err
		}
		second, pending = created[0], pending[1:]
	} else {
		st, err := b.shardStatus(ctx, insts[0])
		if err != nil {
			return err
		}
		for _, inst := range insts {
			if inst.UUID == st.Primary.ZoneID {
				primary = inst
			} else {
				second = inst
			}
		}
		if primary == nil || second == nil {
			return errs.Updatef("shard primary %s is not a %s instance", st.Primary.ZoneID, manateeService)
		}
	}

	st, err := b.shardStatus(ctx, primary)
	if err != nil {
		return err
	}
	if st.PrimarySyncState() != types.SyncStateSync {
		if err := b.switchMode(ctx, svc, primary, second); err != nil {
			return err
		}
	}
	b.step("stable", "Shard has a synchronous peer")

	b.step("third-joining", "Creating the third shard node")
	if _, err := b.addInstances(ctx, manateeService, pending, nil); err != nil {
		return err
	}
	if err := b.poll(ctx, "manatee async replication", func(ctx context.Context) (bool, error) {
		st, err := b.shardStatus(ctx, primary)
		if err != nil {
			return false, err
		}
		if st.Async == nil || !st.Async.Online {
			return false, fmt.Errorf("async peer not online")
		}
		return true, nil
	}); err != nil {
		return err
	}

	b.step("stable", "Letting the shard settle")
	if err := b.sleep(ctx, b.wait.SettleDelay); err != nil {
		return err
	}
	return b.restartMoray(ctx)
}

// switchMode leaves one-node-write mode and brings the second node's
// sitter up as the synchronous peer
func (b *Bootstrapper) switchMode(ctx context.Context, svc *types.Service, primary, second *types.Instance) error {
	b.step("mode-switch", "Leaving one-node-write mode")
	if _, err := b.gw.Registry.UpdateService(ctx, svc.UUID, gateway.ServicePatch{
		Metadata: map[string]any{"ONE_NODE_WRITE_MODE": false},
	}); err != nil {
		return errs.Client("sapi", err)
	}
	if _, err := b.run(ctx, primary, onwmOffScript(primary.UUID)); err != nil {
		return err
	}

	// the sitter only rereads its mode on the second restart
	for i := 0; i < 2; i++ {
		if i > 0 {
			if err := b.sleep(ctx, b.wait.RestartPause); err != nil {
				return err
			}
		}
		if _, err := b.run(ctx, primary, sitterScript(primary.UUID, "restart")); err != nil {
			return err
		}
	}

	vm, err := b.gw.VMs.GetVM(ctx, primary.UUID)
	if err != nil {
		return errs.Client("vmapi", err)
	}
	if err := b.poll(ctx, "manatee postgres", health.Condition(b.PostgresProbe(primary, vm))); err != nil {
		return err
	}

	if _, err := b.gw.Registry.UpdateInstance(ctx, second.UUID, gateway.InstancePatch{
		Metadata: map[string]any{"DISABLE_SITTER": false},
	}); err != nil {
		return errs.Client("sapi", err)
	}
	if _, err := b.run(ctx, second, sitterScript(second.UUID, "enable")); err != nil {
		return err
	}

	return b.poll(ctx, "manatee sync replication", func(ctx context.Context) (bool, error) {
		st, err := b.shardStatus(ctx, primary)
		if err != nil {
			return false, err
		}
		if s := st.PrimarySyncState(); s != types.SyncStateSync {
			return false, fmt.Errorf("primary sync state is %q", s)
		}
		return true, nil
	})
}

func (b *Bootstrapper) shardStatus(ctx context.Context, inst *types.Instance) (*types.ShardStatus, error) {
	res, err := b.run(ctx, inst, shardStatusScript(inst.UUID))
	if err != nil {
		return nil, err
	}
	return ParseShardStatus(res.Stdout)
}

func (b *Bootstrapper) restartMoray(ctx context.Context) error {
	svc, err := b.gw.ServiceByName(ctx, morayService)
	if gateway.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	insts, err := b.gw.InstancesOf(ctx, svc)
	if err != nil {
		return err
	}
	b.step("stable", fmt.Sprintf("Restarting %d %s instance(s)", len(insts), morayService))
	for _, inst := range insts {
		if _, err := b.run(ctx, inst, morayRestartScript(inst.UUID)); err != nil {
			return err
		}
	}
	return nil
}

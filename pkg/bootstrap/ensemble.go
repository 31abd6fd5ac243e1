package bootstrap

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/health"
	"github.com/cuemby/fleetadm/pkg/types"
)

const binderService = "binder"

// zkDependents are the services whose configuration embeds the
// ensemble membership
var zkDependents = []string{"manatee", "moray"}

// FormEnsemble grows the single coordination node into an ensemble of
// members+1 nodes, one new member on each of servers. members must be 2
// or 4 so the ensemble stays odd-sized. Servers already hosting a member
// count as done, so an interrupted run can be repeated.
func (b *Bootstrapper) FormEnsemble(ctx context.Context, members int, servers []string) error {
	if members != 2 && members != 4 {
		return errs.Usagef("members must be 2 or 4 (for an ensemble of 3 or 5 nodes), got %d", members)
	}
	if len(servers) != members {
		return errs.Usagef("must specify %d servers, got %d", members, len(servers))
	}
	if !distinct(servers) {
		return errs.Usagef("ensemble servers must be distinct")
	}

	b.step("seed", "Checking the existing coordination node")
	svc, existing, err := b.instancesOf(ctx, binderService)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return errs.Updatef("no %s instance to seed the ensemble", binderService)
	}
	targets, err := b.resolveServers(ctx, servers)
	if err != nil {
		return err
	}
	hosting := hostingServers(existing)
	var pending []*types.Server
	for _, s := range targets {
		if !hosting[s.UUID] {
			pending = append(pending, s)
		}
	}
	if total := len(existing) + len(pending); total != members+1 {
		return errs.Updatef("ensemble would have %d nodes, want %d", total, members+1)
	}
	ids, err := memberIDs(existing)
	if err != nil {
		return err
	}

	if len(pending) > 0 {
		b.step("provisioning", fmt.Sprintf("Creating %d %s instance(s)", len(pending), binderService))
		base := 0
		for _, id := range ids {
			base = max(base, id)
		}
		if _, err := b.addInstances(ctx, binderService, pending, func(i int) map[string]any {
			return map[string]any{"ZK_ID": base + i + 1}
		}); err != nil {
			return err
		}
	}

	_, insts, err := b.instancesOf(ctx, binderService)
	if err != nil {
		return err
	}
	insts, hosts, err := b.memberHosts(ctx, insts)
	if err != nil {
		return err
	}
	byID := make(map[int]string, len(insts))
	for i, inst := range insts {
		id, _ := zkID(inst)
		byID[id] = hosts[i]
	}
	zk := Members(byID)

	b.step("converging", "Publishing membership to the ensemble")
	if _, err := b.gw.Registry.UpdateService(ctx, svc.UUID, gateway.ServicePatch{
		Metadata: map[string]any{"ZK_SERVERS": zk},
	}); err != nil {
		return errs.Client("sapi", err)
	}
	for _, inst := range insts {
		if _, err := b.run(ctx, inst, configSyncScript(inst.UUID)); err != nil {
			return err
		}
	}
	if err := b.poll(ctx, "zookeeper ensemble", func(ctx context.Context) (bool, error) {
		return b.ensembleConverged(ctx, insts, hosts)
	}); err != nil {
		return err
	}

	b.step("stable", "Publishing membership to the platform")
	if _, err := b.gw.Registry.UpdateApplication(ctx, svc.ApplicationUUID, map[string]any{"ZK_SERVERS": zk}); err != nil {
		return errs.Client("sapi", err)
	}
	return b.reloadDependents(ctx)
}

// memberIDs maps instance UUIDs to member ids, rejecting duplicates
func memberIDs(insts []*types.Instance) (map[string]int, error) {
	ids := make(map[string]int, len(insts))
	seen := make(map[int]string, len(insts))
	for _, inst := range insts {
		id, err := zkID(inst)
		if err != nil {
			return nil, err
		}
		if other, dup := seen[id]; dup {
			return nil, errs.Updatef("%s and %s both claim member id %d", other, inst.Alias, id)
		}
		seen[id] = inst.Alias
		ids[inst.UUID] = id
	}
	return ids, nil
}

// memberHosts orders insts by member id and returns the admin address of
// each. The registry listing order says nothing about membership.
func (b *Bootstrapper) memberHosts(ctx context.Context, insts []*types.Instance) ([]*types.Instance, []string, error) {
	ids, err := memberIDs(insts)
	if err != nil {
		return nil, nil, err
	}
	sorted := slices.Clone(insts)
	slices.SortFunc(sorted, func(a, c *types.Instance) int {
		return cmp.Compare(ids[a.UUID], ids[c.UUID])
	})

	hosts := make([]string, len(sorted))
	for i, inst := range sorted {
		vm, err := b.gw.VMs.GetVM(ctx, inst.UUID)
		if err != nil {
			return nil, nil, errs.Client("vmapi", err)
		}
		if hosts[i] = vm.AdminIP(); hosts[i] == "" {
			return nil, nil, errs.Updatef("%s has no admin address", inst.Alias)
		}
	}
	return sorted, hosts, nil
}

// ensembleConverged is true once there is exactly one leader, every other
// member follows it, and all members agree on the epoch
func (b *Bootstrapper) ensembleConverged(ctx context.Context, insts []*types.Instance, hosts []string) (bool, error) {
	leaders := 0
	var epoch int64
	for i, inst := range insts {
		res, err := b.run(ctx, inst, zkStatScript(inst.UUID))
		if err != nil {
			return false, err
		}
		stat, err := ParseZkStat(hosts[i], res.Stdout)
		if err != nil {
			return false, err
		}
		switch stat.Mode {
		case types.ZkModeLeader:
			leaders++
		case types.ZkModeFollower:
		default:
			return false, fmt.Errorf("%s is in mode %q", stat.Host, stat.Mode)
		}
		if i == 0 {
			epoch = stat.Epoch
		} else if stat.Epoch != epoch {
			return false, fmt.Errorf("%s is at epoch %d, %s at %d", stat.Host, stat.Epoch, hosts[0], epoch)
		}
	}
	if leaders != 1 {
		return false, fmt.Errorf("%d leaders", leaders)
	}
	return true, nil
}

// reloadDependents waits for every dependent instance to pick up the new
// membership
func (b *Bootstrapper) reloadDependents(ctx context.Context) error {
	for _, name := range zkDependents {
		svc, err := b.gw.ServiceByName(ctx, name)
		if gateway.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		insts, err := b.gw.InstancesOf(ctx, svc)
		if err != nil {
			return err
		}
		for _, inst := range insts {
			check := health.NewExecChecker(b.gw.Inventory, inst.ServerUUID, configSyncScript(inst.UUID))
			if err := b.poll(ctx, name+" config reload", health.Condition(check)); err != nil {
				return err
			}
		}
	}
	return nil
}

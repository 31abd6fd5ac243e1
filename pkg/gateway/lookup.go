package gateway

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/types"
)

// ServiceByName returns the named service or a wrapped ErrNotFound
func (g *Context) ServiceByName(ctx context.Context, name string) (*types.Service, error) {
	svcs, err := g.Registry.ListServices(ctx, ServiceFilter{Name: name})
	if err != nil {
		return nil, errs.Client("sapi", err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("service %q: %w", name, ErrNotFound)
	}
	return svcs[0], nil
}

// InstancesOf lists the instances of the named service
func (g *Context) InstancesOf(ctx context.Context, svc *types.Service) ([]*types.Instance, error) {
	insts, err := g.Registry.ListInstances(ctx, InstanceFilter{ServiceUUID: svc.UUID})
	if err != nil {
		return nil, errs.Client("sapi", err)
	}
	return insts, nil
}

// Headnode returns the headnode server
func (g *Context) Headnode(ctx context.Context) (*types.Server, error) {
	yes := true
	servers, err := g.Inventory.ListServers(ctx, ServerFilter{Headnode: &yes})
	if err != nil {
		return nil, errs.Client("cnapi", err)
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("headnode: %w", ErrNotFound)
	}
	return servers[0], nil
}

// DomainFor returns the DNS name a service registers under
func (g *Context) DomainFor(service string) string {
	return fmt.Sprintf("%s.%s.%s", service, g.Datacenter, g.DNSDomain)
}

// Exec runs script on a server and fails on a non-zero exit status
func (g *Context) Exec(ctx context.Context, serverUUID, script string) (*types.CommandResult, error) {
	res, err := g.Inventory.CommandExecute(ctx, serverUUID, script)
	if err != nil {
		return nil, errs.Client("cnapi", err)
	}
	if res.ExitStatus != 0 {
		return res, fmt.Errorf("command on server %s exited %d: %s", serverUUID, res.ExitStatus, res.Stderr)
	}
	return res, nil
}

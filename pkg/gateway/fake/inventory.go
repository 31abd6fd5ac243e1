package fake

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// --- gateway.Inventory ---

func (p *Platform) ListServers(ctx context.Context, filter gateway.ServerFilter) ([]*types.Server, error) {
	p.record("ListServers", filter)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListServers"); err != nil {
		return nil, err
	}
	var out []*types.Server
	for _, id := range p.order["server"] {
		s := p.servers[id]
		if filter.Hostname != "" && s.Hostname != filter.Hostname {
			continue
		}
		if filter.Setup != nil && s.Setup != *filter.Setup {
			continue
		}
		if filter.Headnode != nil && s.Headnode != *filter.Headnode {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (p *Platform) GetServer(ctx context.Context, id string) (*types.Server, error) {
	p.record("GetServer", id)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("GetServer"); err != nil {
		return nil, err
	}
	s, ok := p.servers[id]
	if !ok {
		return nil, fmt.Errorf("server %s: %w", id, gateway.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (p *Platform) GetBootParams(ctx context.Context, serverUUID string) (*types.BootParams, error) {
	p.record("GetBootParams", serverUUID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("GetBootParams"); err != nil {
		return nil, err
	}
	bp, ok := p.bootParams[serverUUID]
	if !ok {
		return nil, fmt.Errorf("boot params %s: %w", serverUUID, gateway.ErrNotFound)
	}
	cp := *bp
	return &cp, nil
}

func (p *Platform) SetBootParams(ctx context.Context, serverUUID string, params types.BootParams) error {
	p.record("SetBootParams", serverUUID, params)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("SetBootParams"); err != nil {
		return err
	}
	p.bootParams[serverUUID] = &params
	if s, ok := p.servers[serverUUID]; ok {
		s.BootPlatform = params.Platform
	}
	return nil
}

// AddPlatform seeds a bootable platform
func (p *Platform) AddPlatform(version string, plat *types.Platform) {
	p.mu.Lock()
	defer p.mu.Unlock()
	plat.Version = version
	p.platforms[version] = plat
}

func (p *Platform) ListPlatforms(ctx context.Context) (map[string]*types.Platform, error) {
	p.record("ListPlatforms")
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListPlatforms"); err != nil {
		return nil, err
	}
	out := make(map[string]*types.Platform, len(p.platforms))
	for k, v := range p.platforms {
		cp := *v
		out[k] = &cp
	}
	return out, nil
}

func (p *Platform) CommandExecute(ctx context.Context, serverUUID, script string) (*types.CommandResult, error) {
	p.record("CommandExecute", serverUUID, script)
	p.mu.Lock()
	if err := p.failure("CommandExecute"); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	handler := p.Commands
	p.mu.Unlock()

	if handler == nil {
		return &types.CommandResult{}, nil
	}
	return handler(serverUUID, script)
}

// Scripts returns the scripts run on serverUUID, or on any server when
// serverUUID is ""
func (p *Platform) Scripts(serverUUID string) []string {
	var out []string
	for _, c := range p.Calls("CommandExecute") {
		if serverUUID == "" || c.Args[0] == serverUUID {
			out = append(out, c.Args[1].(string))
		}
	}
	return out
}

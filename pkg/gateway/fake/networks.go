package fake

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// --- gateway.NetworkRegistry ---

// AddNetworkPool seeds a network pool
func (p *Platform) AddNetworkPool(pool *types.NetworkPool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools = append(p.pools, pool)
}

func (p *Platform) ListNetworkPools(ctx context.Context) ([]*types.NetworkPool, error) {
	p.record("ListNetworkPools")
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListNetworkPools"); err != nil {
		return nil, err
	}
	out := make([]*types.NetworkPool, 0, len(p.pools))
	for _, pool := range p.pools {
		cp := *pool
		out = append(out, &cp)
	}
	return out, nil
}

func (p *Platform) ListNics(ctx context.Context, belongsToUUID string) ([]*types.Nic, error) {
	p.record("ListNics", belongsToUUID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListNics"); err != nil {
		return nil, err
	}
	var out []*types.Nic
	for _, nic := range p.nics[belongsToUUID] {
		cp := *nic
		out = append(out, &cp)
	}
	return out, nil
}

func (p *Platform) GetNicTag(ctx context.Context, name string) (*types.NicTag, error) {
	p.record("GetNicTag", name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("GetNicTag"); err != nil {
		return nil, err
	}
	tag, ok := p.nicTags[name]
	if !ok {
		return nil, fmt.Errorf("nic tag %s: %w", name, gateway.ErrNotFound)
	}
	cp := *tag
	return &cp, nil
}

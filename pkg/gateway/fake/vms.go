package fake

import (
	"context"
	"fmt"
	"maps"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
)

// --- gateway.VMControl ---

func (p *Platform) GetVM(ctx context.Context, id string) (*types.VM, error) {
	p.record("GetVM", id)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("GetVM"); err != nil {
		return nil, err
	}
	vm, ok := p.vms[id]
	if !ok {
		return nil, fmt.Errorf("vm %s: %w", id, gateway.ErrNotFound)
	}
	cp := *vm
	cp.Tags = maps.Clone(vm.Tags)
	return &cp, nil
}

func (p *Platform) ListVMs(ctx context.Context, filter gateway.VMFilter) ([]*types.VM, error) {
	p.record("ListVMs", filter)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListVMs"); err != nil {
		return nil, err
	}
	var out []*types.VM
	for _, id := range p.order["instance"] {
		vm, ok := p.vms[id]
		if !ok {
			continue
		}
		if filter.ServerUUID != "" && vm.ServerUUID != filter.ServerUUID {
			continue
		}
		if filter.Alias != "" && vm.Alias != filter.Alias {
			continue
		}
		if filter.State != "" && vm.State != filter.State {
			continue
		}
		cp := *vm
		out = append(out, &cp)
	}
	return out, nil
}

func (p *Platform) UpdateVM(ctx context.Context, id string, update gateway.VMUpdate) error {
	p.record("UpdateVM", id, update)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("UpdateVM"); err != nil {
		return err
	}
	vm, ok := p.vms[id]
	if !ok {
		return fmt.Errorf("vm %s: %w", id, gateway.ErrNotFound)
	}
	if update.BillingID != "" {
		vm.BillingID = update.BillingID
	}
	if update.RAM != 0 {
		vm.RAM = update.RAM
	}
	if update.Tags != nil {
		if vm.Tags == nil {
			vm.Tags = make(map[string]string)
		}
		maps.Copy(vm.Tags, update.Tags)
	}
	return nil
}

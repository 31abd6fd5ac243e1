package fake

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/google/uuid"
)

// --- gateway.Registry ---

func (p *Platform) GetMode(ctx context.Context) (types.Mode, error) {
	p.record("GetMode")
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("GetMode"); err != nil {
		return "", err
	}
	return p.mode, nil
}

func (p *Platform) ListApplications(ctx context.Context, name string) ([]*types.Application, error) {
	p.record("ListApplications", name)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListApplications"); err != nil {
		return nil, err
	}
	var out []*types.Application
	for _, id := range p.order["app"] {
		app := p.apps[id]
		if name == "" || app.Name == name {
			cp := *app
			cp.Metadata = maps.Clone(app.Metadata)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (p *Platform) UpdateApplication(ctx context.Context, id string, metadata map[string]any) (*types.Application, error) {
	p.record("UpdateApplication", id, metadata)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("UpdateApplication"); err != nil {
		return nil, err
	}
	app, ok := p.apps[id]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", id, gateway.ErrNotFound)
	}
	if app.Metadata == nil {
		app.Metadata = make(map[string]any)
	}
	maps.Copy(app.Metadata, metadata)
	cp := *app
	return &cp, nil
}

func (p *Platform) ListServices(ctx context.Context, filter gateway.ServiceFilter) ([]*types.Service, error) {
	p.record("ListServices", filter)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListServices"); err != nil {
		return nil, err
	}
	var out []*types.Service
	for _, id := range p.order["service"] {
		svc := p.services[id]
		if filter.Name != "" && svc.Name != filter.Name {
			continue
		}
		if filter.ApplicationUUID != "" && svc.ApplicationUUID != filter.ApplicationUUID {
			continue
		}
		if filter.Type != "" && svc.Type != filter.Type {
			continue
		}
		cp := *svc
		cp.Metadata = maps.Clone(svc.Metadata)
		out = append(out, &cp)
	}
	return out, nil
}

func (p *Platform) ListInstances(ctx context.Context, filter gateway.InstanceFilter) ([]*types.Instance, error) {
	p.record("ListInstances", filter)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ListInstances"); err != nil {
		return nil, err
	}
	var out []*types.Instance
	for _, id := range p.order["instance"] {
		inst := p.instances[id]
		if filter.ServiceUUID != "" && inst.ServiceUUID != filter.ServiceUUID {
			continue
		}
		if filter.Type != "" && inst.Type != filter.Type {
			continue
		}
		cp := *inst
		cp.Metadata = maps.Clone(inst.Metadata)
		out = append(out, &cp)
	}
	if p.ReverseInstances {
		slices.Reverse(out)
	}
	return out, nil
}

func (p *Platform) CreateService(ctx context.Context, name, appUUID string, spec gateway.ServiceSpec) (*types.Service, error) {
	p.record("CreateService", name, appUUID, spec)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("CreateService"); err != nil {
		return nil, err
	}
	for _, svc := range p.services {
		if svc.Name == name {
			return nil, fmt.Errorf("service %q already exists", name)
		}
	}
	svc := &types.Service{
		UUID:            uuid.NewString(),
		Name:            name,
		ApplicationUUID: appUUID,
		Type:            spec.Type,
		Params:          spec.Params,
		Metadata:        maps.Clone(spec.Metadata),
	}
	p.services[svc.UUID] = svc
	p.track("service", svc.UUID)
	cp := *svc
	return &cp, nil
}

func (p *Platform) CreateInstance(ctx context.Context, serviceUUID string, spec gateway.InstanceSpec) (*types.Instance, error) {
	p.record("CreateInstance", serviceUUID, spec)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("CreateInstance"); err != nil {
		return nil, err
	}
	svc, ok := p.services[serviceUUID]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", serviceUUID, gateway.ErrNotFound)
	}
	inst := p.createInstanceLocked(svc, spec)
	cp := *inst
	return &cp, nil
}

func (p *Platform) createInstanceLocked(svc *types.Service, spec gateway.InstanceSpec) *types.Instance {
	image := spec.ImageUUID
	if image == "" {
		image = svc.Params.ImageUUID
	}
	server := spec.ServerUUID
	if server == "" && len(p.order["server"]) > 0 {
		server = p.order["server"][0]
	}
	inst := &types.Instance{
		UUID:        uuid.NewString(),
		ServiceUUID: svc.UUID,
		Service:     svc.Name,
		Type:        svc.Type,
		Alias:       spec.Alias,
		ServerUUID:  server,
		ImageUUID:   image,
		Metadata:    maps.Clone(spec.Metadata),
	}
	if img, ok := p.images[image]; ok {
		inst.Version = img.Version
	}
	p.instances[inst.UUID] = inst
	p.track("instance", inst.UUID)

	if svc.Type == types.ServiceTypeVM {
		nic := &types.Nic{
			MAC:           fmt.Sprintf("90:b8:d0:00:00:%02x", p.nextIP%256),
			IP:            p.allocIP(),
			NicTag:        "admin",
			BelongsToUUID: inst.UUID,
			BelongsToType: "zone",
		}
		p.nics[inst.UUID] = append(p.nics[inst.UUID], nic)
		p.vms[inst.UUID] = &types.VM{
			UUID:       inst.UUID,
			Alias:      inst.Alias,
			ServerUUID: server,
			ImageUUID:  image,
			BillingID:  svc.Params.BillingID,
			State:      "running",
			Nics:       []*types.Nic{nic},
			Tags:       map[string]string{"smartdc_role": svc.Name},
		}
	}
	return inst
}

func (p *Platform) UpdateService(ctx context.Context, id string, patch gateway.ServicePatch) (*types.Service, error) {
	p.record("UpdateService", id, patch)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("UpdateService"); err != nil {
		return nil, err
	}
	svc, ok := p.services[id]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", id, gateway.ErrNotFound)
	}
	if patch.ImageUUID != nil {
		svc.Params.ImageUUID = *patch.ImageUUID
	}
	if patch.BillingID != nil {
		svc.Params.BillingID = *patch.BillingID
	}
	if patch.Metadata != nil {
		if svc.Metadata == nil {
			svc.Metadata = make(map[string]any)
		}
		maps.Copy(svc.Metadata, patch.Metadata)
	}
	cp := *svc
	return &cp, nil
}

func (p *Platform) UpdateInstance(ctx context.Context, id string, patch gateway.InstancePatch) (*types.Instance, error) {
	p.record("UpdateInstance", id, patch)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("UpdateInstance"); err != nil {
		return nil, err
	}
	inst, ok := p.instances[id]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", id, gateway.ErrNotFound)
	}
	if patch.ImageUUID != nil {
		p.setImageLocked(inst, *patch.ImageUUID)
	}
	if patch.Metadata != nil {
		if inst.Metadata == nil {
			inst.Metadata = make(map[string]any)
		}
		maps.Copy(inst.Metadata, patch.Metadata)
	}
	cp := *inst
	return &cp, nil
}

func (p *Platform) setImageLocked(inst *types.Instance, image string) {
	inst.ImageUUID = image
	if img, ok := p.images[image]; ok {
		inst.Version = img.Version
	}
	if vm, ok := p.vms[inst.UUID]; ok {
		vm.ImageUUID = image
	}
}

func (p *Platform) ReprovisionInstance(ctx context.Context, id, imageUUID string) error {
	p.record("ReprovisionInstance", id, imageUUID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("ReprovisionInstance"); err != nil {
		return err
	}
	inst, ok := p.instances[id]
	if !ok {
		return fmt.Errorf("instance %s: %w", id, gateway.ErrNotFound)
	}
	if _, ok := p.images[imageUUID]; !ok {
		return fmt.Errorf("image %s is not imported: %w", imageUUID, gateway.ErrNotFound)
	}
	p.setImageLocked(inst, imageUUID)
	return nil
}

func (p *Platform) DeleteInstance(ctx context.Context, id string) error {
	p.record("DeleteInstance", id)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("DeleteInstance"); err != nil {
		return err
	}
	if _, ok := p.instances[id]; !ok {
		return fmt.Errorf("instance %s: %w", id, gateway.ErrNotFound)
	}
	delete(p.instances, id)
	delete(p.vms, id)
	p.untrack("instance", id)
	return nil
}

func (p *Platform) DeleteService(ctx context.Context, id string) error {
	p.record("DeleteService", id)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failure("DeleteService"); err != nil {
		return err
	}
	if _, ok := p.services[id]; !ok {
		return fmt.Errorf("service %s: %w", id, gateway.ErrNotFound)
	}
	delete(p.services, id)
	p.untrack("service", id)
	return nil
}
